package sync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/dkoenig/discosync/internal/discogs"
)

const (
	// EnabledKey is the metadata key controlling whether enrichment runs.
	// Absent or any value other than "false" means enabled.
	EnabledKey = "enrichment_enabled"

	metricEnriched   = "discosync.enrich.items"
	metricEnrichErr  = "discosync.enrich.failures"
	metricEnrichSkip = "discosync.enrich.skipped"
)

// defaultFetchAttempts is how often a single master fetch is tried before
// the item is given up for this run.
const defaultFetchAttempts = 3

// Progress is a snapshot of the state of the current (or last) enrichment
// run. Completed starts at the count of items already enriched when the run
// began and grows by one per successful store write.
type Progress struct {
	Total      int
	Completed  int
	InProgress bool
}

// Enricher fills in the original release year for stored items that
// reference a master record. One long-lived instance exists per process; at
// most one run is active at a time, a second start is dropped, and a stopped
// or crashed run resumes from the store on the next start since the work
// list is re-derived from the store every time.
type Enricher struct {
	store   Store
	catalog Catalog
	log     *slog.Logger

	maxAttempts int
	retryBase   time.Duration

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	progress Progress

	tracer     trace.Tracer
	cntItems   metric.Int64Counter
	cntErrs    metric.Int64Counter
	cntSkipped metric.Int64Counter
}

// NewEnricher creates the engine. retryBase seeds the per-item retry backoff
// and should match the catalog client's request interval.
func NewEnricher(store Store, catalog Catalog, retryBase time.Duration, logger *slog.Logger) *Enricher {
	meter := otel.Meter(otelScope)
	return &Enricher{
		store:       store,
		catalog:     catalog,
		log:         logger,
		maxAttempts: defaultFetchAttempts,
		retryBase:   retryBase,

		tracer:     otel.Tracer(otelScope),
		cntItems:   mustCounter(meter, logger, metricEnriched, "Number of releases enriched with master data"),
		cntErrs:    mustCounter(meter, logger, metricEnrichErr, "Number of releases whose master fetch failed"),
		cntSkipped: mustCounter(meter, logger, metricEnrichSkip, "Number of releases skipped for lacking a master reference"),
	}
}

// Start begins a background enrichment run and returns immediately. It is a
// no-op when a run is already active or when enrichment is disabled via the
// persisted setting.
func (e *Enricher) Start() {
	if !e.enabled(context.Background()) {
		e.log.Info("enrichment is disabled, not starting")
		return
	}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		e.log.Info("enrichment already running, ignoring start")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.running = true
	e.cancel = cancel
	e.done = done
	e.progress = Progress{InProgress: true}
	e.mu.Unlock()

	go func() {
		defer close(done)
		e.run(ctx, done)
	}()
}

// ResumeIfNeeded starts a run if enrichment is enabled and the store still
// holds unenriched items. Intended to be called once at process startup;
// this is what makes the pipeline resumable across restarts. The store
// itself is the queue, no cursor is persisted.
func (e *Enricher) ResumeIfNeeded(ctx context.Context) {
	if !e.enabled(ctx) {
		e.log.Debug("enrichment is disabled, nothing to resume")
		return
	}

	pending, err := e.store.GetReleasesNeedingMasterData(ctx)
	if err != nil {
		e.log.Error("checking for pending enrichment", "error", err)
		return
	}
	if len(pending) == 0 {
		e.log.Debug("no releases need enrichment")
		return
	}

	e.log.Info("resuming enrichment", "pending", len(pending))
	e.Start()
}

// Stop requests cancellation of the active run. The engine reports idle
// immediately; the loop observes the cancelled context at its next
// iteration, and the in-flight request (aborted at the transport level by
// the context) has its result discarded.
func (e *Enricher) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	cancel := e.cancel
	e.cancel = nil
	e.running = false
	e.progress.InProgress = false
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.log.Info("enrichment stop requested")
}

// Progress returns a snapshot of the current run's progress. Safe to call at
// any time, including mid-run.
func (e *Enricher) Progress() Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress
}

// Done returns a channel that is closed when the current run finishes. If no
// run is active the returned channel is already closed.
func (e *Enricher) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done != nil {
		return e.done
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// run is the fetch loop. done identifies this run: once Stop (or a newer
// Start) has taken over the engine state, a stale goroutine may no longer
// touch progress or flags.
func (e *Enricher) run(ctx context.Context, done chan struct{}) {
	defer e.finish(done)

	ctx, span := e.tracer.Start(ctx, spanEnrich)
	defer span.End()

	pending, err := e.store.GetReleasesNeedingMasterData(ctx)
	if err != nil {
		e.log.Error("loading enrichment work list", "error", err)
		return
	}
	alreadyDone, err := e.store.GetReleasesWithOriginalYearCount(ctx)
	if err != nil {
		e.log.Error("counting enriched releases", "error", err)
		return
	}

	if len(pending) == 0 {
		e.log.Info("no releases need enrichment")
		return
	}

	e.setProgress(done, Progress{
		Total:      len(pending) + alreadyDone,
		Completed:  alreadyDone,
		InProgress: true,
	})
	e.log.Info("enrichment starting", "pending", len(pending), "already_done", alreadyDone)

	for _, item := range pending {
		if ctx.Err() != nil {
			e.log.Info("enrichment cancelled, remaining items stay pending")
			return
		}

		if item.MasterID == 0 {
			e.log.Debug("release has no master reference, skipping", "id", item.ID)
			e.cntSkipped.Add(ctx, 1)
			continue
		}

		master, err := e.fetchMaster(ctx, item.MasterID)
		if err != nil {
			// Non-fatal: the item stays unenriched and is retried on the
			// next run.
			e.cntErrs.Add(ctx, 1)
			continue
		}

		if err := e.store.SetOriginalYear(ctx, item.ID, master.Year); err != nil {
			e.log.Error("storing original year", "id", item.ID, "error", err)
			e.cntErrs.Add(ctx, 1)
			continue
		}

		// Count only after the write succeeded, and only while this run
		// still owns the engine: a result arriving after Stop is discarded.
		if ctx.Err() == nil {
			e.incrementCompleted(done)
			e.cntItems.Add(ctx, 1)
		}
	}

	e.log.Info("enrichment finished", "progress", e.Progress().Completed)
}

// fetchMaster retrieves one master record with exponential backoff. The
// attempt schedule is retryBase × 2^attempt; each retry is logged with its
// wait, and the final failure identifies the master.
func (e *Enricher) fetchMaster(ctx context.Context, masterID int64) (*discogs.Master, error) {
	var master *discogs.Master
	err := retry(ctx, e.maxAttempts, e.retryBase,
		func(attempt int, wait time.Duration) {
			e.log.Warn("master fetch failed, retrying",
				"master_id", masterID,
				"attempt", attempt,
				"wait", wait,
			)
		},
		func() error {
			m, err := e.catalog.Master(ctx, masterID)
			if err != nil {
				return err
			}
			master = m
			return nil
		},
	)
	if err != nil {
		e.log.Error("master fetch failed",
			"master_id", masterID,
			"attempts", e.maxAttempts,
			"error", err,
		)
		return nil, err
	}
	return master, nil
}

// enabled reads the persisted enrichment flag. Store errors are logged and
// treated as enabled so a flaky read cannot silently disable the pipeline.
func (e *Enricher) enabled(ctx context.Context) bool {
	value, err := e.store.GetMetadata(ctx, EnabledKey)
	if err != nil {
		e.log.Warn("reading enrichment flag", "error", err)
		return true
	}
	return value != "false"
}

// finish returns the engine to idle, unless a newer run already owns the
// state (Stop followed by an immediate Start).
func (e *Enricher) finish(done chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done != done {
		return
	}
	e.running = false
	e.progress.InProgress = false
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

func (e *Enricher) setProgress(done chan struct{}, p Progress) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done != done {
		return
	}
	e.progress = p
}

func (e *Enricher) incrementCompleted(done chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done != done {
		return
	}
	e.progress.Completed++
}
