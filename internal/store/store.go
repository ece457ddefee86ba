// Package store manages the SQLite database holding the mirrored collection
// and its key/value metadata.
//
// Only this package may open or query the database. All other packages
// receive a [*Store] and call its methods. Every write is a single-row
// statement keyed by release ID; the store has no multi-row transactions and
// the engines do not require any.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/dkoenig/discosync/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS releases (
    id             INTEGER PRIMARY KEY,
    instance_id    INTEGER NOT NULL DEFAULT 0,
    title          TEXT    NOT NULL,
    artists        TEXT    NOT NULL DEFAULT '[]',
    year           INTEGER NOT NULL DEFAULT 0,
    master_id      INTEGER NOT NULL DEFAULT 0,
    original_year  INTEGER NOT NULL DEFAULT 0,
    formats        TEXT    NOT NULL DEFAULT '[]',
    labels         TEXT    NOT NULL DEFAULT '[]',
    genres         TEXT    NOT NULL DEFAULT '[]',
    styles         TEXT    NOT NULL DEFAULT '[]',
    thumb          TEXT    NOT NULL DEFAULT '',
    cover_image    TEXT    NOT NULL DEFAULT '',
    date_added     TEXT    NOT NULL DEFAULT '',
    notes          TEXT    NOT NULL DEFAULT '',
    rating         INTEGER NOT NULL DEFAULT 0,
    play_count     INTEGER NOT NULL DEFAULT 0,
    last_played_at TEXT    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_releases_original_year ON releases (original_year);

CREATE TABLE IF NOT EXISTS metadata (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// lastSyncKey is the metadata key holding the last successful sync timestamp.
const lastSyncKey = "last_sync"

const releaseColumns = `
	id, instance_id, title, artists, year, master_id, original_year,
	formats, labels, genres, styles, thumb, cover_image,
	date_added, notes, rating, play_count, last_played_at`

// Store is the SQLite-backed collection repository.
type Store struct {
	db *sql.DB
}

// DefaultDBPath returns the default path for the collection database:
// ~/.local/share/discosync/collection.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "discosync", "collection.db"), nil
}

// Open opens (or creates) the SQLite database at path, applies the schema,
// and configures WAL mode for better concurrent read performance.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}

	// Single writer to avoid SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies the schema DDL idempotently (CREATE IF NOT EXISTS).
func migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// GetRelease returns the release with the given Discogs ID, or (nil, nil) if
// no such release is stored.
func (s *Store) GetRelease(ctx context.Context, id int64) (*model.CollectionItem, error) {
	q := `SELECT ` + releaseColumns + ` FROM releases WHERE id = ?`
	row := s.db.QueryRowContext(ctx, q, id)
	return scanRelease(row)
}

// GetAllReleases returns every stored release, ordered by date added.
func (s *Store) GetAllReleases(ctx context.Context) ([]*model.CollectionItem, error) {
	q := `SELECT ` + releaseColumns + ` FROM releases ORDER BY date_added, id`
	return s.queryReleases(ctx, q)
}

// AddRelease inserts a release seen for the first time. Locally-owned fields
// are written as given (a fresh sync insert carries "never played" defaults).
func (s *Store) AddRelease(ctx context.Context, item *model.CollectionItem) error {
	const q = `
		INSERT INTO releases
		    (id, instance_id, title, artists, year, master_id, original_year,
		     formats, labels, genres, styles, thumb, cover_image,
		     date_added, notes, rating, play_count, last_played_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		item.ID,
		item.InstanceID,
		item.Title,
		encodeList(item.Artists),
		item.Year,
		item.MasterID,
		item.OriginalYear,
		encodeList(item.Formats),
		encodeList(item.Labels),
		encodeList(item.Genres),
		encodeList(item.Styles),
		item.Thumb,
		item.CoverImage,
		formatTime(item.DateAdded),
		item.Notes,
		item.Rating,
		item.PlayCount,
		formatTimePtr(item.LastPlayedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting release %d: %w", item.ID, err)
	}
	return nil
}

// UpdateCatalogFields overwrites the catalog-owned columns of an existing
// release with fresh remote data. Play count, last-played date, and the
// enrichment result are left untouched.
func (s *Store) UpdateCatalogFields(ctx context.Context, item *model.CollectionItem) error {
	const q = `
		UPDATE releases SET
		    instance_id = ?,
		    title       = ?,
		    artists     = ?,
		    year        = ?,
		    master_id   = ?,
		    formats     = ?,
		    labels      = ?,
		    genres      = ?,
		    styles      = ?,
		    thumb       = ?,
		    cover_image = ?,
		    date_added  = ?,
		    notes       = ?,
		    rating      = ?
		WHERE id = ?`

	_, err := s.db.ExecContext(ctx, q,
		item.InstanceID,
		item.Title,
		encodeList(item.Artists),
		item.Year,
		item.MasterID,
		encodeList(item.Formats),
		encodeList(item.Labels),
		encodeList(item.Genres),
		encodeList(item.Styles),
		item.Thumb,
		item.CoverImage,
		formatTime(item.DateAdded),
		item.Notes,
		item.Rating,
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("updating release %d: %w", item.ID, err)
	}
	return nil
}

// SetOriginalYear records the enrichment result for a release. The value is
// never cleared once set.
func (s *Store) SetOriginalYear(ctx context.Context, id int64, year int) error {
	const q = `UPDATE releases SET original_year = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q, year, id); err != nil {
		return fmt.Errorf("setting original year for release %d: %w", id, err)
	}
	return nil
}

// GetCollectionCount returns the number of stored releases.
func (s *Store) GetCollectionCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM releases`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting releases: %w", err)
	}
	return count, nil
}

// GetReleasesNeedingMasterData returns the releases whose original year is
// still unknown, ordered by date added. This is the enrichment work list;
// re-deriving it here at the start of every run is what makes enrichment
// resumable without a persisted cursor.
func (s *Store) GetReleasesNeedingMasterData(ctx context.Context) ([]*model.CollectionItem, error) {
	q := `SELECT ` + releaseColumns + ` FROM releases WHERE original_year = 0 ORDER BY date_added, id`
	return s.queryReleases(ctx, q)
}

// GetReleasesWithOriginalYearCount returns how many releases have already
// been enriched.
func (s *Store) GetReleasesWithOriginalYearCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM releases WHERE original_year != 0`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting enriched releases: %w", err)
	}
	return count, nil
}

// IsEmpty reports whether no releases are stored yet. Used to detect a fresh
// database before the first sync.
func (s *Store) IsEmpty(ctx context.Context) (bool, error) {
	count, err := s.GetCollectionCount(ctx)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// SetLastSyncDate persists the timestamp of the last successful sync.
func (s *Store) SetLastSyncDate(ctx context.Context, t time.Time) error {
	return s.SetMetadata(ctx, lastSyncKey, formatTime(t))
}

// GetLastSyncDate returns the last successful sync timestamp, or the zero
// time if no sync has completed yet.
func (s *Store) GetLastSyncDate(ctx context.Context) (time.Time, error) {
	v, err := s.GetMetadata(ctx, lastSyncKey)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	return parseTime(v)
}

// GetMetadata returns the value stored under key, or "" if the key is absent.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading metadata %q: %w", key, err)
	}
	return value, nil
}

// SetMetadata stores value under key, replacing any existing value.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	const q = `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := s.db.ExecContext(ctx, q, key, value); err != nil {
		return fmt.Errorf("writing metadata %q: %w", key, err)
	}
	return nil
}

// --- helpers -----------------------------------------------------------------

func (s *Store) queryReleases(ctx context.Context, q string, args ...any) ([]*model.CollectionItem, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying releases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []*model.CollectionItem
	for rows.Next() {
		item, err := scanRelease(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// scanner matches both *sql.Row and *sql.Rows so scanRelease can be reused.
type scanner interface {
	Scan(dest ...any) error
}

func scanRelease(s scanner) (*model.CollectionItem, error) {
	var item model.CollectionItem
	var artists, formats, labels, genres, styles string
	var dateAdded, lastPlayed string

	err := s.Scan(
		&item.ID,
		&item.InstanceID,
		&item.Title,
		&artists,
		&item.Year,
		&item.MasterID,
		&item.OriginalYear,
		&formats,
		&labels,
		&genres,
		&styles,
		&item.Thumb,
		&item.CoverImage,
		&dateAdded,
		&item.Notes,
		&item.Rating,
		&item.PlayCount,
		&lastPlayed,
	)
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("scanning release row: %w", err)
	}

	item.Artists = decodeList(artists)
	item.Formats = decodeList(formats)
	item.Labels = decodeList(labels)
	item.Genres = decodeList(genres)
	item.Styles = decodeList(styles)
	item.DateAdded, _ = parseTime(dateAdded)
	if lastPlayed != "" {
		if t, err := parseTime(lastPlayed); err == nil {
			item.LastPlayedAt = &t
		}
	}

	return &item, nil
}

// encodeList stores a string slice as a JSON array column.
func encodeList(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeList(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil
	}
	return values
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
