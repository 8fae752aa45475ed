package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cc "github.com/ivanpirog/coloredcobra"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/receipt-ledger/pkg/utils"
)

var (
	cfgFile string
	verbose bool
	logger  = zap.NewNop()
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "receiptctl",
		Short: "Receipt extraction and chart-of-accounts tools",
		Long: `receiptctl runs the receipt extraction pipeline against local files
and inspects chart-of-accounts ledgers without starting the server.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			l, err := utils.NewCLILogger(verbose)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			logger = l
			return nil
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "configs/config.yaml", "config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(accountsCmd())
	root.AddCommand(extractCmd())

	cc.Init(&cc.Config{
		RootCmd:         root,
		Headings:        cc.HiCyan + cc.Bold + cc.Underline,
		Commands:        cc.HiYellow + cc.Bold,
		Example:         cc.Italic,
		ExecName:        cc.Bold,
		Flags:           cc.Bold,
		NoExtraNewlines: true,
	})

	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd().ExecuteContext(ctx)
	stop()
	_ = logger.Sync()

	if err != nil {
		os.Exit(1)
	}
}
