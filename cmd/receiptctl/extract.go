package main

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hako/durafmt"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/receipt-ledger/internal/application/port"
	"github.com/garyjia/receipt-ledger/internal/config"
	"github.com/garyjia/receipt-ledger/internal/container"
	"github.com/garyjia/receipt-ledger/internal/domain/entity"
	"github.com/garyjia/receipt-ledger/internal/extraction"
)

// fileResult is one line of the extract command output
type fileResult struct {
	File    string                `json:"file"`
	Receipt *entity.ReceiptRecord `json:"receipt,omitempty"`
	Error   string                `json:"error,omitempty"`
}

func extractCmd() *cobra.Command {
	var (
		basic       bool
		noLineItems bool
		noCustomer  bool
		noTax       bool
	)

	cmd := &cobra.Command{
		Use:     "extract <file>...",
		Short:   "Extract receipt data from image or PDF files",
		Example: "  receiptctl extract --basic scans/*.jpg",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			model, err := container.ProvideModelInvoker(ctx, cfg, logger)
			if err != nil {
				return err
			}
			extCfg, err := container.ProvideExtractionConfig(cfg.Extraction)
			if err != nil {
				return err
			}
			orchestrator := extraction.NewOrchestrator(
				model,
				container.ProvidePreparer(cfg.Extraction.Image, logger),
				extCfg,
				logger,
			)

			opts := &entity.ExtractionOptions{
				BasicFieldsOnly:     boolFlag(cmd, "basic", basic),
				ExtractLineItems:    negatedFlag(cmd, "no-line-items", noLineItems),
				ExtractCustomerInfo: negatedFlag(cmd, "no-customer", noCustomer),
				ExtractTaxInfo:      negatedFlag(cmd, "no-tax", noTax),
			}

			bar := newProgressBar(len(args))
			started := time.Now()
			results := make([]fileResult, 0, len(args))
			failed := 0

			for _, path := range args {
				if err := ctx.Err(); err != nil {
					return err
				}

				result := fileResult{File: path}
				doc, err := readDocument(path)
				if err == nil {
					result.Receipt, err = orchestrator.Extract(ctx, doc, opts)
				}
				if err != nil {
					failed++
					result.Error = err.Error()
					logger.Warn("Extraction failed",
						zap.String("file", path),
						zap.Error(err))
				}
				results = append(results, result)
				_ = bar.Add(1)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(results); err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d files extracted in %s\n",
				len(args)-failed, len(args),
				durafmt.Parse(time.Since(started).Round(time.Millisecond)).LimitFirstN(2))

			if failed > 0 {
				return fmt.Errorf("%d file(s) failed", failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&basic, "basic", false, "extract only vendor, date and totals")
	cmd.Flags().BoolVar(&noLineItems, "no-line-items", false, "skip line items")
	cmd.Flags().BoolVar(&noCustomer, "no-customer", false, "skip customer details")
	cmd.Flags().BoolVar(&noTax, "no-tax", false, "skip tax details")
	return cmd
}

// boolFlag returns a pointer to value when the flag was set explicitly
func boolFlag(cmd *cobra.Command, name string, value bool) *bool {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}

// negatedFlag maps a --no-x flag onto the positive option
func negatedFlag(cmd *cobra.Command, name string, value bool) *bool {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	enabled := !value
	return &enabled
}

func readDocument(path string) (port.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return port.Document{}, fmt.Errorf("failed to read file: %w", err)
	}
	return port.Document{
		Name:      filepath.Base(path),
		MediaType: mediaTypeFor(path, data),
		Data:      data,
	}, nil
}

func mediaTypeFor(path string, data []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		if mediaType, _, err := mime.ParseMediaType(t); err == nil {
			return mediaType
		}
	}
	return http.DetectContentType(data)
}

// newProgressBar writes to stderr, and stays silent when stderr is not a terminal
func newProgressBar(total int) *progressbar.ProgressBar {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		return progressbar.DefaultSilent(int64(total))
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Extracting receipts...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
	)
}
