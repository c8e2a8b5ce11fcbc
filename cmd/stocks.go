package cmd

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"options-analytics/services"
)

var (
	searchSegment string
	searchLimit   int
)

var stocksCmd = &cobra.Command{
	Use:   "stocks",
	Short: "Manage the equity and index catalog",
}

var stocksRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Download the cash-market catalogs and store new stocks and indices",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}

		store, err := a.openStorage()
		if err != nil {
			return err
		}
		defer store.Close()

		provider, err := a.provider()
		if err != nil {
			return err
		}

		stocks := services.NewStockService(provider, store, a.cfg.Catalog.StockExchanges, a.logger)
		count, err := stocks.Refresh(cmd.Context())
		if err != nil {
			return err
		}

		total, err := stocks.Count()
		if err != nil {
			return err
		}
		fmt.Printf("Extracted %d instruments covering %d underlyings, %d stored\n", count, len(stocks.UnderlyingTokens()), total)
		return nil
	},
}

var stocksSearchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Search stored stocks by partial name or symbol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}

		store, err := a.openStorage()
		if err != nil {
			return err
		}
		defer store.Close()

		stocks := services.NewStockService(nil, store, nil, a.logger)
		matches, err := stocks.Search(args[0], searchSegment, searchLimit)
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			fmt.Printf("No stocks found matching '%s'.\n", args[0])
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Symbol", "Name", "Exchange", "Segment", "Token"})
		for _, s := range matches {
			name, segment := "", ""
			if s.Name != nil {
				name = *s.Name
			}
			if s.Segment != nil {
				segment = *s.Segment
			}
			table.Append([]string{s.TradingSymbol, name, s.Exchange, segment, fmt.Sprintf("%d", s.InstrumentToken)})
		}
		table.Render()
		return nil
	},
}

func init() {
	stocksSearchCmd.Flags().StringVar(&searchSegment, "segment", "", "Only match this segment, e.g. NSE or INDICES.")
	stocksSearchCmd.Flags().IntVar(&searchLimit, "limit", 10, "Maximum number of matches.")

	stocksCmd.AddCommand(stocksRefreshCmd, stocksSearchCmd)
}
