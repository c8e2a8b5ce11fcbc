package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"options-analytics/database"
	"options-analytics/services"
)

var (
	processUnderlyings   []string
	processPrint         bool
	processRefreshStocks bool
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Snapshot every option contract of one or more underlyings",
	Long: `Fetches the option catalog and quotes for each underlying, computes implied
volatility and Greeks, and stores one snapshot per contract. Without
--underlying the configured target underlyings (TARGET_UNDERLYINGS) are used.
With --refresh-stocks the stock catalog is refreshed first and underlyings
without a listed stock or index are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}

		underlyings := processUnderlyings
		if len(underlyings) == 0 {
			underlyings = a.cfg.Catalog.TargetUnderlyings
		}
		if len(underlyings) == 0 {
			return fmt.Errorf("no underlyings given and catalog.target_underlyings is empty")
		}

		store, err := a.openStorage()
		if err != nil {
			return err
		}
		defer store.Close()

		if processRefreshStocks {
			underlyings, err = a.listedUnderlyings(cmd.Context(), store, underlyings)
			if err != nil {
				return err
			}
		}

		journal := services.NewRunJournal(a.cfg.Journal.Dir, a.logger)
		options, err := a.optionsService(store, journal)
		if err != nil {
			return err
		}

		results, runErr := options.ProcessUnderlyings(cmd.Context(), underlyings)

		if processPrint && len(results) > 0 {
			printProcessResults(results)
		}
		return runErr
	},
}

func init() {
	processCmd.Flags().StringSliceVarP(&processUnderlyings, "underlying", "u", nil, "Underlying to process, e.g. NIFTY or \"NIFTY BANK\". Repeatable.")
	processCmd.Flags().BoolVar(&processPrint, "print", false, "Print a summary table of each run.")
	processCmd.Flags().BoolVar(&processRefreshStocks, "refresh-stocks", false, "Refresh the stock catalog and skip underlyings it does not list.")
}

// listedUnderlyings refreshes the stock catalog and keeps the underlyings that
// resolve to a listed stock or index
func (a *app) listedUnderlyings(ctx context.Context, store *database.LocalStorage, underlyings []string) ([]string, error) {
	provider, err := a.provider()
	if err != nil {
		return nil, err
	}

	stocks := services.NewStockService(provider, store, a.cfg.Catalog.StockExchanges, a.logger)
	if _, err := stocks.Refresh(ctx); err != nil {
		return nil, err
	}

	known, unknown := stocks.FilterUnderlyings(underlyings)
	if len(unknown) > 0 {
		a.logger.WithField("underlyings", unknown).Warn("Skipping underlyings missing from the stock catalog")
	}
	if len(known) == 0 {
		return nil, fmt.Errorf("none of %v is listed in the stock catalog", underlyings)
	}
	return known, nil
}

func printProcessResults(results []*services.ProcessResult) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Underlying", "Contracts", "Snapshots", "Saved", "Skipped", "Run ID"})

	for _, r := range results {
		table.Append([]string{
			r.Underlying,
			fmt.Sprintf("%d", r.Contracts),
			fmt.Sprintf("%d", r.Snapshots),
			fmt.Sprintf("%d", r.Saved),
			formatSkipped(r.Skipped),
			r.RunID,
		})
	}

	table.Render()
}

func formatSkipped(skipped map[string]int) string {
	if len(skipped) == 0 {
		return "-"
	}

	reasons := make([]string, 0, len(skipped))
	for reason := range skipped {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)

	parts := make([]string, len(reasons))
	for i, reason := range reasons {
		parts[i] = fmt.Sprintf("%s=%d", reason, skipped[reason])
	}
	return strings.Join(parts, " ")
}
