package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Veraticus/digital-asset-harvester/internal/cli"
	"github.com/Veraticus/digital-asset-harvester/internal/common"
	"github.com/Veraticus/digital-asset-harvester/internal/config"
	"github.com/Veraticus/digital-asset-harvester/internal/engine"
	"github.com/Veraticus/digital-asset-harvester/internal/ingest"
	"github.com/Veraticus/digital-asset-harvester/internal/metrics"
	"github.com/Veraticus/digital-asset-harvester/internal/model"
	"github.com/Veraticus/digital-asset-harvester/internal/storage"
)

type harvestOptions struct {
	metricsAddr   string
	skipProcessed bool
	noSave        bool
	noLLM         bool
	noProgress    bool
}

func harvestCmd() *cobra.Command {
	var opts harvestOptions

	cmd := &cobra.Command{
		Use:   "harvest <path>...",
		Short: "Extract purchases from .eml files, mbox archives or directories",
		Long: `Run every message through the extraction pipeline and store the accepted
purchases in the ledger.

Paths may be .eml files, mbox archives, or directories containing either.
Log level and format changes made to the config file during a run take
effect immediately.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHarvest(cmd.Context(), cmd.OutOrStdout(), args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.skipProcessed, "skip-processed", false, "Skip messages recorded by earlier runs")
	cmd.Flags().BoolVar(&opts.noSave, "dry-run", false, "Do not write to the ledger")
	cmd.Flags().BoolVar(&opts.noLLM, "no-llm", false, "Disable model extraction; only exchange patterns are used")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Disable the progress bar")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	return cmd
}

func runHarvest(ctx context.Context, out io.Writer, paths []string, opts harvestOptions) error {
	m := metrics.New()
	logger := slog.Default()

	interrupts := cli.NewInterruptHandler(os.Stderr, "Resume with: harvester harvest --skip-processed "+strings.Join(paths, " "))
	ctx = interrupts.HandleInterrupts(ctx)

	if opts.metricsAddr != "" {
		shutdown := serveMetrics(opts.metricsAddr, m, logger)
		defer shutdown()
	}

	var store *storage.SQLiteStorage
	if !opts.noSave || opts.skipProcessed {
		var err error
		store, err = openStorage(ctx, settings.Current())
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
	}

	if v.ConfigFileUsed() != "" {
		settings.OnChange(applyLogging)
		settings.Watch()
	}

	_, err := harvestOnce(ctx, out, paths, settings.Current(), m, store, opts)
	if err == nil && interrupts.WasInterrupted() {
		return common.NewUserError("harvest interrupted; finished emails were saved", context.Canceled)
	}
	return err
}

func harvestOnce(
	ctx context.Context,
	out io.Writer,
	paths []string,
	s config.Settings,
	m *metrics.ProcessingMetrics,
	store *storage.SQLiteStorage,
	opts harvestOptions,
) (*engine.BatchResult, error) {
	logger := slog.Default()

	emails, err := ingest.ReadPaths(paths, logger)
	if err != nil {
		return nil, err
	}

	if opts.skipProcessed && store != nil {
		before := len(emails)
		emails, err = store.FilterUnprocessed(ctx, emails)
		if err != nil {
			return nil, fmt.Errorf("failed to filter processed emails: %w", err)
		}
		if skipped := before - len(emails); skipped > 0 {
			logger.Info("Skipping processed emails", "count", skipped)
		}
	}

	driver, err := buildDriver(s, m, !opts.noLLM, logger)
	if err != nil {
		return nil, err
	}

	var bar *progressbar.ProgressBar
	if !opts.noProgress && len(emails) > 0 {
		bar = progressbar.NewOptions(len(emails),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Extracting"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
		driver.OnOutcome(func(engine.Outcome) { _ = bar.Add(1) })
	}

	result := driver.RunBatch(ctx, emails)
	if bar != nil {
		_ = bar.Finish()
	}

	if store != nil && !opts.noSave {
		// Record what finished even when the run was interrupted.
		if err := persist(context.WithoutCancel(ctx), store, result); err != nil {
			return result, err
		}
	}

	printSummary(out, result)
	return result, nil
}

func persist(ctx context.Context, store *storage.SQLiteStorage, result *engine.BatchResult) error {
	inserted, err := store.SavePurchases(ctx, result.RunID, result.Purchases)
	if err != nil {
		return fmt.Errorf("failed to save purchases: %w", err)
	}

	records := make([]storage.ProcessedEmail, 0, len(result.Outcomes))
	for _, o := range result.Outcomes {
		// Interrupted emails are retried by the next run.
		if errors.Is(o.Err, context.Canceled) {
			continue
		}
		records = append(records, storage.ProcessedEmail{
			MessageID: o.MessageID,
			State:     string(o.State),
			Reason:    string(o.Reason),
		})
	}
	if err := store.MarkProcessed(ctx, result.RunID, records); err != nil {
		return fmt.Errorf("failed to record processed emails: %w", err)
	}

	err = store.SaveRun(ctx, storage.RunRecord{
		ID:         result.RunID,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
		Metrics:    result.Metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	slog.Info("Ledger updated",
		"run_id", result.RunID,
		"new_purchases", inserted,
		"already_known", len(result.Purchases)-inserted)
	return nil
}

func printSummary(out io.Writer, result *engine.BatchResult) {
	snap := result.Metrics
	counts := result.Counts()

	lines := []string{
		cli.FormatStat("Emails", snap.EmailsTotal),
		cli.FormatStat("Accepted", counts[engine.StateAccepted]),
		cli.FormatStat("Rejected", counts[engine.StateRejected]),
		cli.FormatStat("Filtered", counts[engine.StateFiltered]),
		cli.FormatStat("Duplicates", snap.Duplicates),
		cli.FormatStat("Regex hits", snap.RegexHits),
		cli.FormatStat("LLM hits", snap.LLMHits),
	}
	if snap.LLMCalls > 0 {
		lines = append(lines, cli.FormatStat("LLM latency (avg)", snap.AverageLLMLatency().Round(time.Millisecond)))
	}
	if snap.LLMFallbackTriggered > 0 {
		lines = append(lines, cli.FormatStat("Fallbacks", snap.LLMFallbackTriggered))
	}
	for _, reason := range snap.SortedReasons() {
		lines = append(lines, cli.FormatStat("  "+reason, snap.RejectReasons[reason]))
	}

	title := fmt.Sprintf("Run %s (%s)", result.RunID, result.Duration().Round(time.Millisecond))
	fmt.Fprintln(out, cli.RenderBox(cli.CoinIcon+" "+title, strings.Join(lines, "\n")))

	for _, warning := range snap.Warnings {
		fmt.Fprintln(out, cli.FormatWarning(warning))
	}

	if len(result.Purchases) > 0 {
		fmt.Fprintln(out)
		writePurchaseTable(out, result.Purchases)
	}
}

func writePurchaseTable(out io.Writer, purchases []model.Purchase) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tVENDOR\tASSET\tAMOUNT\tFIAT\tSOURCE\tWARNINGS")
	for _, p := range purchases {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s %s\t%s\t%d\n",
			p.PurchaseDate.Format("2006-01-02"),
			p.Vendor,
			p.CryptoSymbol,
			p.CryptoAmount.String(),
			p.FiatAmount.StringFixed(2),
			p.FiatCurrency,
			p.Source,
			len(p.Warnings))
	}
	_ = w.Flush()
}

func serveMetrics(addr string, m *metrics.ProcessingMetrics, logger *slog.Logger) func() {
	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics.NewCollector(m))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func openStorage(ctx context.Context, s config.Settings) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(s.Database.Path)
	if err != nil {
		return nil, common.NewUserError("could not open the purchase ledger at "+s.Database.Path, err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		if errors.Is(err, storage.ErrSchemaTooNew) {
			return nil, common.NewUserError("the purchase ledger was written by a newer harvester; upgrade first", err)
		}
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}
