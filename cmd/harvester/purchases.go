package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/digital-asset-harvester/internal/common"
	"github.com/Veraticus/digital-asset-harvester/internal/model"
	"github.com/Veraticus/digital-asset-harvester/internal/storage"
)

func purchasesCmd() *cobra.Command {
	var (
		from, to, vendor, symbol, format string
		limit                            int
	)

	cmd := &cobra.Command{
		Use:   "purchases",
		Short: "List purchases stored in the ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := storage.PurchaseFilter{Vendor: vendor, Symbol: symbol, Limit: limit}
			var err error
			if filter.From, err = parseDateFlag("from", from); err != nil {
				return err
			}
			if filter.To, err = parseDateFlag("to", to); err != nil {
				return err
			}
			if !filter.To.IsZero() {
				// Inclusive end date.
				filter.To = filter.To.Add(24*time.Hour - time.Nanosecond)
			}

			ctx := cmd.Context()
			store, err := openStorage(ctx, settings.Current())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			purchases, err := store.GetPurchases(ctx, filter)
			if err != nil {
				return err
			}
			return writePurchases(cmd.OutOrStdout(), purchases, format)
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Only purchases on or after this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Only purchases on or before this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&vendor, "vendor", "", "Filter by exchange")
	cmd.Flags().StringVar(&symbol, "symbol", "", "Filter by asset symbol")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of purchases to show")
	cmd.Flags().StringVar(&format, "format", "table", "Output format (table, json)")

	return cmd
}

func parseDateFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, ok := common.ParseTimestamp(value)
	if !ok {
		return time.Time{}, fmt.Errorf("invalid --%s date %q", name, value)
	}
	return t, nil
}

func writePurchases(out io.Writer, purchases []model.Purchase, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if purchases == nil {
			purchases = []model.Purchase{}
		}
		return enc.Encode(purchases)
	case "table", "":
		if len(purchases) == 0 {
			fmt.Fprintln(out, "No purchases found.")
			return nil
		}
		writePurchaseTable(out, purchases)
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func runsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent harvest runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := openStorage(ctx, settings.Current())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			runs, err := store.GetRuns(ctx, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tSTARTED\tDURATION\tEMAILS\tACCEPTED\tREJECTED\tFILTERED")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
					r.ID,
					r.StartedAt.Local().Format("2006-01-02 15:04"),
					r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
					r.Metrics.EmailsTotal,
					r.Metrics.Accepted,
					r.Metrics.Rejected,
					r.Metrics.FilteredOut)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to show")
	return cmd
}
