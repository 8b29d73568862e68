package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Rahwulkumar/trading-journal/config"
	"github.com/Rahwulkumar/trading-journal/internal/portfolio"
	"github.com/Rahwulkumar/trading-journal/internal/quote"
)

func newMigrateCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.config()
			if err != nil {
				return err
			}
			ledger, err := openLedger(cfg, toolLogger(cmd.ErrOrStderr(), cfg))
			if err != nil {
				return err
			}
			defer ledger.Close()
			if err := ledger.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date: %s\n", cfg.SQLitePath)
			return nil
		},
	}
}

func openQuotes(cfg *config.Config, cmd *cobra.Command) (*quote.CandleCache, error) {
	return quote.New(quote.Settings{
		Kind:    cfg.QuoteSource,
		APIKey:  cfg.TraderMadeAPIKey,
		BaseURL: cfg.TraderMadeURL,
		Timeout: cfg.QuoteTimeout,
	}, nil, nil, toolLogger(cmd.ErrOrStderr(), cfg))
}

func newQuoteCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "quote SYMBOL...",
		Short: "Print quotes from the configured source",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.config()
			if err != nil {
				return err
			}
			quotes, err := openQuotes(cfg, cmd)
			if err != nil {
				return err
			}
			defer quotes.Close()

			results := quotes.GetQuotes(cmd.Context(), args)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SYMBOL\tBID\tASK\tMID\tTIMESTAMP")
			failed := 0
			for _, r := range results {
				if !r.OK() {
					failed++
					fmt.Fprintf(w, "%s\t-\t-\t-\t%s: %v\n", r.Symbol, quote.Kind(r.Err), r.Err)
					continue
				}
				q := r.Quote
				fmt.Fprintf(w, "%s\t%.5f\t%.5f\t%.5f\t%s\n", q.Symbol, q.Bid, q.Ask, q.Mid, q.Timestamp)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if failed == len(results) {
				return fmt.Errorf("no quotes resolved")
			}
			return nil
		},
	}
}

func newPnLCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pnl",
		Short: "Print live P&L for all open positions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.config()
			if err != nil {
				return err
			}
			log := toolLogger(cmd.ErrOrStderr(), cfg)
			ledger, err := openLedger(cfg, log)
			if err != nil {
				return err
			}
			defer ledger.Close()
			quotes, err := openQuotes(cfg, cmd)
			if err != nil {
				return err
			}
			defer quotes.Close()

			positions, err := ledger.ListOpenPositions(cmd.Context())
			if err != nil {
				return err
			}
			if len(positions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No active live trades found")
				return nil
			}

			rows := portfolio.NewEngine(quotes, nil, log).ComputeLivePnL(cmd.Context(), positions)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tINSTRUMENT\tDIR\tENTRY\tPRICE\tSIZE\tPNL\tOPEN")
			total := 0.0
			for _, r := range rows {
				price := "n/a"
				if r.CurrentPrice != nil {
					price = fmt.Sprintf("%.5f", *r.CurrentPrice)
				}
				open := time.Duration(r.DurationMinutes * float64(time.Minute)).Round(time.Minute)
				fmt.Fprintf(w, "%d\t%s\t%s\t%.5f\t%s\t%g\t%.2f\t%s\n",
					r.TradeID, r.Instrument, r.Direction, r.EntryPrice, price, r.Size, r.LivePnL, open)
				total += r.LivePnL
			}
			fmt.Fprintf(w, "\t\t\t\t\tTOTAL\t%.2f\t\n", portfolio.Round2(total))
			return w.Flush()
		},
	}
}
