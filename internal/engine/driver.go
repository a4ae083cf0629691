package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/digital-asset-harvester/internal/metrics"
	"github.com/Veraticus/digital-asset-harvester/internal/model"
)

// BatchResult is everything a batch run produced. Purchases holds each
// accepted record once, in input order.
type BatchResult struct {
	StartedAt  time.Time
	FinishedAt time.Time
	RunID      string
	Purchases  []model.Purchase
	Outcomes   []Outcome
	Metrics    metrics.Snapshot
}

// Counts tallies outcomes by terminal state.
func (r *BatchResult) Counts() map[State]int {
	counts := make(map[State]int, 3)
	for _, o := range r.Outcomes {
		counts[o.State]++
	}
	return counts
}

// Duration is the wall time of the run.
func (r *BatchResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Driver fans a batch of emails out over a bounded worker pool.
type Driver struct {
	orchestrator *Orchestrator
	metrics      *metrics.ProcessingMetrics
	logger       *slog.Logger
	onOutcome    func(Outcome)
	workers      int
	mu           sync.Mutex
}

// NewDriver creates a driver with the given pool size; values below one run
// sequentially.
func NewDriver(o *Orchestrator, m *metrics.ProcessingMetrics, workers int, logger *slog.Logger) *Driver {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{orchestrator: o, metrics: m, workers: workers, logger: logger}
}

// OnOutcome registers a callback invoked once per finished email. Calls are
// made from a single goroutine.
func (d *Driver) OnOutcome(fn func(Outcome)) {
	d.onOutcome = fn
}

type job struct {
	email model.RawEmail
	index int
}

type jobResult struct {
	outcome Outcome
	index   int
}

// RunBatch processes every email to exactly one terminal outcome. Metrics are
// reset at the start of the batch, so batches on one driver are serialized.
func (d *Driver) RunBatch(ctx context.Context, emails []model.RawEmail) *BatchResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.metrics.Reset()
	result := &BatchResult{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Outcomes:  make([]Outcome, len(emails)),
	}

	workers := d.workers
	if workers > len(emails) {
		workers = len(emails)
	}

	d.logger.Info("Starting batch",
		"run_id", result.RunID,
		"emails", len(emails),
		"workers", workers)

	jobs := make(chan job, len(emails))
	for i, email := range emails {
		jobs <- job{index: i, email: email}
	}
	close(jobs)

	results := make(chan jobResult, len(emails))

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(workerID int) {
			defer wg.Done()
			for j := range jobs {
				results <- jobResult{index: j.index, outcome: d.processSafely(ctx, workerID, j.email)}
			}
		}(i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		result.Outcomes[r.index] = r.outcome
		if d.onOutcome != nil {
			d.onOutcome(r.outcome)
		}
	}

	result.Purchases = d.collectPurchases(result.Outcomes)

	if d.metrics.Get(metrics.LLMUnreachable) > 0 &&
		d.metrics.Get(metrics.LLMHits) == 0 &&
		d.metrics.Get(metrics.RegexHits) == 0 {
		msg := fmt.Sprintf("no model provider was reachable for %d email(s) and no regex profile matched",
			d.metrics.Get(metrics.LLMUnreachable))
		d.metrics.AddWarning(msg)
		d.logger.Warn("Batch produced nothing", "run_id", result.RunID, "warning", msg)
	}

	result.FinishedAt = time.Now().UTC()
	result.Metrics = d.metrics.Snapshot()

	d.logger.Info("Batch complete",
		"run_id", result.RunID,
		"emails", result.Metrics.EmailsTotal,
		"accepted", len(result.Purchases),
		"filtered", result.Metrics.FilteredOut,
		"rejected", result.Metrics.Rejected,
		"duplicates", result.Metrics.Duplicates,
		"duration", result.Duration())

	return result
}

// processSafely is the second safety net: a panic that escapes the
// orchestrator still yields a REJECTED outcome.
func (d *Driver) processSafely(ctx context.Context, workerID int, email model.RawEmail) (out Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			d.metrics.Inc(metrics.Exceptions)
			d.metrics.RecordRejection(string(ReasonInternalError))
			d.logger.Error("Worker recovered from panic",
				"worker_id", workerID,
				"message_id", email.MessageID,
				"panic", rec)
			out = Outcome{
				MessageID: email.MessageID,
				State:     StateRejected,
				Path:      []State{StateRejected},
				Reason:    ReasonInternalError,
				ErrorKind: kindPanic,
				Err:       fmt.Errorf("worker panic: %v", rec),
			}
		}
	}()
	return d.orchestrator.Process(ctx, email)
}

// collectPurchases keeps the first of each set of accepted records that
// share a hash.
func (d *Driver) collectPurchases(outcomes []Outcome) []model.Purchase {
	seen := make(map[string]struct{})
	var purchases []model.Purchase
	for i := range outcomes {
		o := &outcomes[i]
		if o.State != StateAccepted || o.Purchase == nil {
			continue
		}
		hash := o.Purchase.GenerateHash()
		if _, dup := seen[hash]; dup {
			o.Duplicate = true
			d.metrics.Inc(metrics.Duplicates)
			d.logger.Debug("Duplicate purchase dropped",
				"message_id", o.MessageID,
				"vendor", o.Purchase.Vendor,
				"transaction_id", o.Purchase.TransactionID)
			continue
		}
		seen[hash] = struct{}{}
		purchases = append(purchases, *o.Purchase)
	}
	return purchases
}
