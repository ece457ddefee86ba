package store

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/dkoenig/discosync/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-collection.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRelease(id int64) *model.CollectionItem {
	added := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	return &model.CollectionItem{
		ID:         id,
		InstanceID: id * 100,
		Title:      "Kind of Blue",
		Artists:    []string{"Miles Davis"},
		Year:       1997,
		MasterID:   5460,
		Formats:    []string{"Vinyl (LP, Album, Reissue)"},
		Labels:     []string{"Columbia"},
		Genres:     []string{"Jazz"},
		Styles:     []string{"Modal"},
		Thumb:      "https://img.discogs.com/thumb.jpg",
		CoverImage: "https://img.discogs.com/cover.jpg",
		DateAdded:  added,
		Notes:      "Near mint",
		Rating:     5,
	}
}

func TestOpen_CreatesSchema(t *testing.T) {
	s := openTestStore(t)
	empty, err := s.IsEmpty(context.Background())
	if err != nil {
		t.Fatalf("IsEmpty after open: %v", err)
	}
	if !empty {
		t.Error("expected empty store after open")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collection.db")
	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if err := s1.AddRelease(context.Background(), sampleRelease(1)); err != nil {
		t.Fatalf("AddRelease: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("s1.Close: %v", err)
	}

	// Re-opening the same file must not fail or wipe data.
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer func() { _ = s2.Close() }()

	count, err := s2.GetCollectionCount(context.Background())
	if err != nil {
		t.Fatalf("GetCollectionCount: %v", err)
	}
	if count != 1 {
		t.Errorf("count after reopen = %d, want 1", count)
	}
}

func TestAddAndGetRelease_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	want := sampleRelease(1234)
	if err := s.AddRelease(ctx, want); err != nil {
		t.Fatalf("AddRelease: %v", err)
	}

	got, err := s.GetRelease(ctx, 1234)
	if err != nil {
		t.Fatalf("GetRelease: %v", err)
	}
	if got == nil {
		t.Fatal("GetRelease returned nil for stored release")
	}
	if !got.DateAdded.Equal(want.DateAdded) {
		t.Errorf("date added = %v, want %v", got.DateAdded, want.DateAdded)
	}
	// Normalise times before the struct comparison; time.Time values are
	// compared with Equal above.
	got.DateAdded = want.DateAdded
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, want)
	}
}

func TestGetRelease_NotFound(t *testing.T) {
	s := openTestStore(t)
	got, err := s.GetRelease(context.Background(), 999)
	if err != nil {
		t.Fatalf("GetRelease: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing release, got %+v", got)
	}
}

func TestUpdateCatalogFields_PreservesLocalState(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	item := sampleRelease(7)
	if err := s.AddRelease(ctx, item); err != nil {
		t.Fatalf("AddRelease: %v", err)
	}
	if err := s.SetOriginalYear(ctx, 7, 1959); err != nil {
		t.Fatalf("SetOriginalYear: %v", err)
	}

	// Simulate play-tracking writes outside the sync core.
	played := time.Date(2026, 1, 15, 20, 0, 0, 0, time.UTC)
	if _, err := s.db.ExecContext(ctx,
		`UPDATE releases SET play_count = 9, last_played_at = ? WHERE id = 7`,
		formatTime(played),
	); err != nil {
		t.Fatalf("seeding play state: %v", err)
	}

	// A fresh sync pass delivers updated catalog data.
	updated := sampleRelease(7)
	updated.Title = "Kind of Blue (Remastered)"
	updated.Year = 2015
	updated.Rating = 4
	if err := s.UpdateCatalogFields(ctx, updated); err != nil {
		t.Fatalf("UpdateCatalogFields: %v", err)
	}

	got, err := s.GetRelease(ctx, 7)
	if err != nil {
		t.Fatalf("GetRelease: %v", err)
	}
	if got.Title != "Kind of Blue (Remastered)" || got.Year != 2015 || got.Rating != 4 {
		t.Errorf("catalog fields not updated: %+v", got)
	}
	if got.PlayCount != 9 {
		t.Errorf("play count = %d, want 9 (must survive sync)", got.PlayCount)
	}
	if got.LastPlayedAt == nil || !got.LastPlayedAt.Equal(played) {
		t.Errorf("last played = %v, want %v", got.LastPlayedAt, played)
	}
	if got.OriginalYear != 1959 {
		t.Errorf("original year = %d, want 1959 (must survive sync)", got.OriginalYear)
	}
}

func TestGetReleasesNeedingMasterData(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := sampleRelease(1)
	a.DateAdded = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b := sampleRelease(2)
	b.DateAdded = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	c := sampleRelease(3)
	c.DateAdded = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	c.MasterID = 0 // no master reference, still part of the work list

	for _, item := range []*model.CollectionItem{b, a, c} {
		if err := s.AddRelease(ctx, item); err != nil {
			t.Fatalf("AddRelease(%d): %v", item.ID, err)
		}
	}
	if err := s.SetOriginalYear(ctx, 1, 1959); err != nil {
		t.Fatalf("SetOriginalYear: %v", err)
	}

	pending, err := s.GetReleasesNeedingMasterData(ctx)
	if err != nil {
		t.Fatalf("GetReleasesNeedingMasterData: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d items, want 2", len(pending))
	}
	// Ordered by date added: b (Feb) before c (Mar); a is already enriched.
	if pending[0].ID != 2 || pending[1].ID != 3 {
		t.Errorf("pending order = [%d, %d], want [2, 3]", pending[0].ID, pending[1].ID)
	}

	done, err := s.GetReleasesWithOriginalYearCount(ctx)
	if err != nil {
		t.Fatalf("GetReleasesWithOriginalYearCount: %v", err)
	}
	if done != 1 {
		t.Errorf("enriched count = %d, want 1", done)
	}
}

func TestSetOriginalYear(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.AddRelease(ctx, sampleRelease(42)); err != nil {
		t.Fatalf("AddRelease: %v", err)
	}
	if err := s.SetOriginalYear(ctx, 42, 1959); err != nil {
		t.Fatalf("SetOriginalYear: %v", err)
	}

	got, err := s.GetRelease(ctx, 42)
	if err != nil {
		t.Fatalf("GetRelease: %v", err)
	}
	if got.OriginalYear != 1959 {
		t.Errorf("original year = %d, want 1959", got.OriginalYear)
	}
}

func TestMetadata_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	got, err := s.GetMetadata(ctx, "enrichment_enabled")
	if err != nil {
		t.Fatalf("GetMetadata on empty store: %v", err)
	}
	if got != "" {
		t.Errorf("missing key = %q, want empty string", got)
	}

	if err := s.SetMetadata(ctx, "enrichment_enabled", "false"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	if err := s.SetMetadata(ctx, "enrichment_enabled", "true"); err != nil {
		t.Fatalf("SetMetadata overwrite: %v", err)
	}

	got, err = s.GetMetadata(ctx, "enrichment_enabled")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if got != "true" {
		t.Errorf("value = %q, want %q", got, "true")
	}
}

func TestLastSyncDate_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	zero, err := s.GetLastSyncDate(ctx)
	if err != nil {
		t.Fatalf("GetLastSyncDate on empty store: %v", err)
	}
	if !zero.IsZero() {
		t.Errorf("expected zero time before first sync, got %v", zero)
	}

	want := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	if err := s.SetLastSyncDate(ctx, want); err != nil {
		t.Fatalf("SetLastSyncDate: %v", err)
	}
	got, err := s.GetLastSyncDate(ctx)
	if err != nil {
		t.Fatalf("GetLastSyncDate: %v", err)
	}
	if !got.Equal(want) {
		t.Errorf("last sync = %v, want %v", got, want)
	}
}

func TestGetAllReleases_OrderedByDateAdded(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	newer := sampleRelease(2)
	newer.DateAdded = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	older := sampleRelease(1)
	older.DateAdded = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := s.AddRelease(ctx, newer); err != nil {
		t.Fatalf("AddRelease: %v", err)
	}
	if err := s.AddRelease(ctx, older); err != nil {
		t.Fatalf("AddRelease: %v", err)
	}

	all, err := s.GetAllReleases(ctx)
	if err != nil {
		t.Fatalf("GetAllReleases: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len = %d, want 2", len(all))
	}
	if all[0].ID != 1 || all[1].ID != 2 {
		t.Errorf("order = [%d, %d], want [1, 2]", all[0].ID, all[1].ID)
	}
}
