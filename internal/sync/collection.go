package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/dkoenig/discosync/internal/discogs"
	"github.com/dkoenig/discosync/internal/model"
)

const (
	otelScope     = "discosync/sync"
	spanSync      = "sync.collection"
	spanEnrich    = "sync.enrich"
	metricPages   = "discosync.sync.pages"
	metricItems   = "discosync.sync.items"
	metricSyncErr = "discosync.sync.errors"
)

// mustCounter creates an OTel counter, falling back to a no-op instrument
// when the meter refuses (telemetry stays optional).
func mustCounter(meter metric.Meter, logger *slog.Logger, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		logger.Error("creating OTel counter", "name", name, "error", err)
		return noop.Int64Counter{}
	}
	return c
}

// Syncer performs one full collection sync: every page of the remote
// collection is fetched in ascending order and reconciled into the store.
// Create one with [NewSyncer]; it is stateless between runs.
type Syncer struct {
	store   Store
	catalog Catalog
	log     *slog.Logger

	tracer   trace.Tracer
	cntPages metric.Int64Counter
	cntItems metric.Int64Counter
	cntErrs  metric.Int64Counter
}

// NewSyncer creates a Syncer wired to the given store and catalog client.
func NewSyncer(store Store, catalog Catalog, logger *slog.Logger) *Syncer {
	meter := otel.Meter(otelScope)
	return &Syncer{
		store:   store,
		catalog: catalog,
		log:     logger,

		tracer:   otel.Tracer(otelScope),
		cntPages: mustCounter(meter, logger, metricPages, "Number of collection pages fetched"),
		cntItems: mustCounter(meter, logger, metricItems, "Number of releases reconciled"),
		cntErrs:  mustCounter(meter, logger, metricSyncErr, "Number of failed sync runs"),
	}
}

// Run fetches the full remote collection and merges it into the store. It
// returns a coarse per-run outcome: any failure aborts the run immediately.
// Pages reconciled before the failure stay merged; a later retry re-applies
// them idempotently.
func (s *Syncer) Run(ctx context.Context) model.SyncOutcome {
	ctx, span := s.tracer.Start(ctx, spanSync)
	defer span.End()

	outcome := s.run(ctx)
	if !outcome.Success {
		s.cntErrs.Add(ctx, 1)
		span.SetAttributes(attribute.String("sync.error", outcome.Error))
	}
	span.SetAttributes(attribute.Int("sync.total", outcome.TotalSynced))
	return outcome
}

func (s *Syncer) run(ctx context.Context) model.SyncOutcome {
	empty, err := s.store.IsEmpty(ctx)
	if err != nil {
		return s.fail(err)
	}
	if empty {
		s.log.Info("collection sync starting", "first_run", true)
	} else {
		s.log.Info("collection sync starting")
	}

	first, err := s.catalog.CollectionPage(ctx, 1)
	if err != nil {
		return s.fail(err)
	}
	s.cntPages.Add(ctx, 1)

	if err := s.reconcilePage(ctx, first); err != nil {
		return s.fail(err)
	}

	totalPages := first.Pagination.Pages
	for page := 2; page <= totalPages; page++ {
		pg, err := s.catalog.CollectionPage(ctx, page)
		if err != nil {
			return s.fail(err)
		}
		s.cntPages.Add(ctx, 1)

		if err := s.reconcilePage(ctx, pg); err != nil {
			return s.fail(err)
		}
	}

	if err := s.store.SetLastSyncDate(ctx, time.Now().UTC()); err != nil {
		return s.fail(fmt.Errorf("recording sync timestamp: %w", err))
	}

	count, err := s.store.GetCollectionCount(ctx)
	if err != nil {
		return s.fail(err)
	}

	s.log.Info("collection sync complete", "pages", totalPages, "total", count)
	return model.SyncOutcome{Success: true, TotalSynced: count}
}

// reconcilePage merges one page of remote releases into the store. New items
// are inserted with "never played" defaults; known items get only their
// catalog-owned fields overwritten.
func (s *Syncer) reconcilePage(ctx context.Context, pg *discogs.CollectionPage) error {
	for i := range pg.Releases {
		item := discogs.ToCollectionItem(pg.Releases[i])

		existing, err := s.store.GetRelease(ctx, item.ID)
		if err != nil {
			return err
		}

		if existing == nil {
			if err := s.store.AddRelease(ctx, item); err != nil {
				return err
			}
		} else {
			if err := s.store.UpdateCatalogFields(ctx, item); err != nil {
				return err
			}
		}
		s.cntItems.Add(ctx, 1)
	}

	s.log.Debug("page reconciled",
		"page", pg.Pagination.Page,
		"pages", pg.Pagination.Pages,
		"releases", len(pg.Releases),
	)
	return nil
}

// fail logs the failure and builds the error outcome. TotalSynced is zero on
// failure regardless of how many pages were merged before the abort.
func (s *Syncer) fail(err error) model.SyncOutcome {
	s.log.Error("collection sync failed", "error", err)
	return model.SyncOutcome{Success: false, TotalSynced: 0, Error: model.ErrorMessage(err)}
}
