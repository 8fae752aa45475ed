package entity

// AccountNode is one line of a chart-of-accounts ledger text
type AccountNode struct {
	ID       string         `json:"id"`
	Label    string         `json:"label"`
	Code     string         `json:"code,omitempty"`
	Level    int            `json:"level"`
	Children []*AccountNode `json:"children,omitempty"`
}

// HasChildren reports whether the node is a category header
func (n *AccountNode) HasChildren() bool {
	return len(n.Children) > 0
}

// Value returns the value a selection of this node resolves to:
// the account code when present, otherwise the synthesized ID
func (n *AccountNode) Value() string {
	if n.Code != "" {
		return n.Code
	}
	return n.ID
}
