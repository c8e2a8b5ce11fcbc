package cmd

import (
	"fmt"
	"os"

	"github.com/gocarina/gocsv"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"options-analytics/interfaces"
	"options-analytics/services"
)

var (
	chainUnderlying string
	chainCSVPath    string
)

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Show the latest stored option chain of an underlying",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}

		underlying := services.NormalizeUnderlying(chainUnderlying)
		if underlying == "" {
			return interfaces.ErrEmptyUnderlying
		}

		store, err := a.openStorage()
		if err != nil {
			return err
		}
		defer store.Close()

		rows, err := store.LatestOptionChain(underlying)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return fmt.Errorf("no stored snapshots for %s", underlying)
		}

		if chainCSVPath != "" {
			return writeChainCSV(chainCSVPath, rows)
		}

		printChain(underlying, rows)
		return nil
	},
}

func init() {
	chainCmd.Flags().StringVarP(&chainUnderlying, "underlying", "u", "", "Underlying whose chain to show. This flag is required.")
	chainCmd.Flags().StringVar(&chainCSVPath, "csv", "", "Write the chain to this CSV file instead of printing it.")
	chainCmd.MarkFlagRequired("underlying")
}

func writeChainCSV(path string, rows []interfaces.ChainRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create csv file: %w", err)
	}
	defer file.Close()

	if err := gocsv.MarshalFile(&rows, file); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

func printChain(underlying string, rows []interfaces.ChainRow) {
	fmt.Printf("%s option chain as of %s\n", underlying, rows[0].SnapshotTime.Format("2006-01-02 15:04:05"))

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Symbol", "Expiry", "Strike", "Type", "Spot", "LTP", "IV", "Delta", "Gamma", "Theta", "Vega", "OI"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	for _, r := range rows {
		table.Append([]string{
			r.TradingSymbol,
			r.Expiry.Format("2006-01-02"),
			fmt.Sprintf("%.2f", r.Strike),
			r.InstrumentType,
			formatFloat(r.UnderlyingPrice, "%.2f"),
			formatFloat(r.LastPrice, "%.2f"),
			formatFloat(r.ImpliedVolatility, "%.4f"),
			formatFloat(r.Delta, "%.4f"),
			formatFloat(r.Gamma, "%.6f"),
			formatFloat(r.Theta, "%.2f"),
			formatFloat(r.Vega, "%.2f"),
			formatInt(r.OpenInterest),
		})
	}

	table.Render()
}

func formatFloat(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}

func formatInt(v *int64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}
