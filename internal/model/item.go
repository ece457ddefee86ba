// Package model defines the shared types used across the sync engines, the
// Discogs adapter, and the record store.
package model

import "time"

// CollectionItem is the locally stored representation of a single release in
// the user's collection. The release ID assigned by Discogs is the primary
// key and the merge key between catalog data and local data.
type CollectionItem struct {
	// ID is the Discogs release ID. Stable across syncs.
	ID int64

	// InstanceID identifies this copy within the user's collection folder.
	// Informational only; never used as a merge key.
	InstanceID int64

	// Catalog-owned fields. Overwritten on every sync pass.
	Title        string
	Artists      []string
	Year         int
	MasterID     int64 // 0 when the release has no master
	OriginalYear int   // 0 until enrichment fills it in; never cleared once set
	Formats      []string
	Labels       []string
	Genres       []string
	Styles       []string
	Thumb        string
	CoverImage   string
	DateAdded    time.Time
	Notes        string
	Rating       int // 0 = unrated

	// Locally-owned fields. Initialised on first sight, never touched by
	// sync afterwards. Only the play-tracking layer writes them.
	PlayCount    int
	LastPlayedAt *time.Time
}

// NeedsMasterData reports whether enrichment still has work to do for this
// item: a master reference exists but the original year is not yet known.
func (c *CollectionItem) NeedsMasterData() bool {
	return c.MasterID != 0 && c.OriginalYear == 0
}

// SyncOutcome is the result of one full collection sync run. Created fresh
// per run, never persisted.
type SyncOutcome struct {
	Success     bool
	TotalSynced int

	// Error holds the failure message when Success is false, empty otherwise.
	Error string
}

// ErrorMessage extracts a display message from err. Errors that carry no
// usable text are reported as "Unknown error" so the outcome is never blank.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "Unknown error"
}
