package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/receipt-ledger/internal/accounts"
	"github.com/garyjia/receipt-ledger/internal/domain/entity"
)

var (
	categoryStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	codeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func accountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Inspect a chart-of-accounts ledger",
	}
	cmd.AddCommand(accountsTreeCmd())
	cmd.AddCommand(accountsResolveCmd())
	return cmd
}

func accountsTreeCmd() *cobra.Command {
	var search string

	cmd := &cobra.Command{
		Use:     "tree <ledger-file>",
		Short:   "Print the account hierarchy",
		Example: "  receiptctl accounts tree configs/accounts.txt --search salaries",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, err := loadLedger(args[0])
			if err != nil {
				return err
			}
			if search != "" {
				tree = accounts.Search(tree, search)
			}
			if len(tree) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "no accounts found")
				return nil
			}
			renderTree(cmd.OutOrStdout(), tree)
			return nil
		},
	}

	cmd.Flags().StringVarP(&search, "search", "s", "", "only show branches matching this label or code")
	return cmd
}

func accountsResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <ledger-file> <value>",
		Short: "Resolve an account code or node id to its account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, err := loadLedger(args[0])
			if err != nil {
				return err
			}
			node, ok := accounts.Resolve(tree, args[1])
			if !ok {
				return fmt.Errorf("account %q not found", args[1])
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(node)
		},
	}
}

func loadLedger(path string) ([]*entity.AccountNode, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	tree := accounts.Parse(string(content))
	logger.Debug("Ledger parsed",
		zap.String("path", path),
		zap.Int("root_count", len(tree)))
	return tree, nil
}

// renderTree prints one node per line, indented by level. Category headers
// are highlighted and codes are shown dimmed after the label.
func renderTree(w io.Writer, nodes []*entity.AccountNode) {
	for _, node := range nodes {
		label := node.Label
		if node.HasChildren() {
			label = categoryStyle.Render(label)
		}
		line := strings.Repeat("  ", node.Level) + label
		if node.Code != "" {
			line += " " + codeStyle.Render("["+node.Code+"]")
		}
		fmt.Fprintln(w, line)
		renderTree(w, node.Children)
	}
}
