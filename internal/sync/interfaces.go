// Package sync implements the two engines of the collection pipeline:
//
//   - [Syncer] pulls the user's full paginated Discogs collection and merges
//     it into the record store without touching locally-owned play state.
//   - [Enricher] runs a detached, resumable, cancellable background loop
//     that fills in the original release year for every stored item that
//     references a master record.
//
// Both engines issue their catalog requests strictly sequentially; pacing is
// enforced by the shared [discogs.Client] rate limiter.
package sync

import (
	"context"
	"time"

	"github.com/dkoenig/discosync/internal/discogs"
	"github.com/dkoenig/discosync/internal/model"
)

// Store provides access to the local record store.
// Implemented by [store.Store].
type Store interface {
	GetRelease(ctx context.Context, id int64) (*model.CollectionItem, error)
	AddRelease(ctx context.Context, item *model.CollectionItem) error
	UpdateCatalogFields(ctx context.Context, item *model.CollectionItem) error
	SetOriginalYear(ctx context.Context, id int64, year int) error
	GetCollectionCount(ctx context.Context) (int, error)
	GetReleasesNeedingMasterData(ctx context.Context) ([]*model.CollectionItem, error)
	GetReleasesWithOriginalYearCount(ctx context.Context) (int, error)
	IsEmpty(ctx context.Context) (bool, error)
	SetLastSyncDate(ctx context.Context, t time.Time) error
	GetMetadata(ctx context.Context, key string) (string, error)
}

// Catalog provides read access to the remote Discogs catalog.
// Implemented by [discogs.Client].
type Catalog interface {
	CollectionPage(ctx context.Context, page int) (*discogs.CollectionPage, error)
	Master(ctx context.Context, masterID int64) (*discogs.Master, error)
}
