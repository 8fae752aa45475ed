package extraction

import (
	"github.com/shopspring/decimal"

	"github.com/garyjia/receipt-ledger/internal/domain/entity"
)

// LineItemMismatch describes a line item whose amount does not follow from
// its quantity, unit price and discount
type LineItemMismatch struct {
	ItemID   string `json:"itemId"`
	Amount   string `json:"amount"`
	Expected string `json:"expected"`
}

// LineItemMismatches checks each item against quantity × unit price, with and
// without the discount applied. Amounts are compared to the cent. Items with
// neither quantity nor unit price are skipped.
func LineItemMismatches(items []entity.LineItem) []LineItemMismatch {
	var mismatches []LineItemMismatch
	for _, item := range items {
		if item.Quantity == 0 && item.UnitPrice == 0 {
			continue
		}

		gross := decimal.NewFromFloat(item.Quantity).Mul(decimal.NewFromFloat(item.UnitPrice)).Round(2)
		net := gross.Sub(decimal.NewFromFloat(item.Discount)).Round(2)
		amount := decimal.NewFromFloat(item.Amount).Round(2)

		if amount.Equal(gross) || amount.Equal(net) {
			continue
		}
		mismatches = append(mismatches, LineItemMismatch{
			ItemID:   item.ID,
			Amount:   amount.StringFixed(2),
			Expected: net.StringFixed(2),
		})
	}
	return mismatches
}
