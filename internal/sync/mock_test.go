package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dkoenig/discosync/internal/discogs"
	"github.com/dkoenig/discosync/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mock Store --------------------------------------------------------------

type mockStore struct {
	mu    sync.Mutex
	items map[int64]*model.CollectionItem
	order []int64 // insertion order, used as the work-list order
	meta  map[string]string

	lastSync time.Time

	// Error injection.
	addErr     error
	updateErr  error
	setYearErr error
}

func newMockStore(items ...*model.CollectionItem) *mockStore {
	m := &mockStore{
		items: make(map[int64]*model.CollectionItem),
		meta:  make(map[string]string),
	}
	for _, item := range items {
		m.put(item)
	}
	return m
}

// put seeds an item directly, bypassing error injection.
func (m *mockStore) put(item *model.CollectionItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *item
	if _, seen := m.items[item.ID]; !seen {
		m.order = append(m.order, item.ID)
	}
	m.items[item.ID] = &cp
}

func (m *mockStore) get(id int64) *model.CollectionItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return nil
	}
	cp := *item
	return &cp
}

func (m *mockStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *mockStore) GetRelease(_ context.Context, id int64) (*model.CollectionItem, error) {
	return m.get(id), nil
}

func (m *mockStore) AddRelease(_ context.Context, item *model.CollectionItem) error {
	m.mu.Lock()
	addErr := m.addErr
	m.mu.Unlock()
	if addErr != nil {
		return addErr
	}
	m.put(item)
	return nil
}

func (m *mockStore) UpdateCatalogFields(_ context.Context, item *model.CollectionItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	existing, ok := m.items[item.ID]
	if !ok {
		return fmt.Errorf("release %d not found", item.ID)
	}
	updated := *item
	updated.PlayCount = existing.PlayCount
	updated.LastPlayedAt = existing.LastPlayedAt
	updated.OriginalYear = existing.OriginalYear
	m.items[item.ID] = &updated
	return nil
}

func (m *mockStore) SetOriginalYear(ctx context.Context, id int64, year int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setYearErr != nil {
		return m.setYearErr
	}
	item, ok := m.items[id]
	if !ok {
		return fmt.Errorf("release %d not found", id)
	}
	item.OriginalYear = year
	return nil
}

func (m *mockStore) GetCollectionCount(_ context.Context) (int, error) {
	return m.count(), nil
}

func (m *mockStore) GetReleasesNeedingMasterData(_ context.Context) ([]*model.CollectionItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending []*model.CollectionItem
	for _, id := range m.order {
		if m.items[id].OriginalYear == 0 {
			cp := *m.items[id]
			pending = append(pending, &cp)
		}
	}
	return pending, nil
}

func (m *mockStore) GetReleasesWithOriginalYearCount(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, item := range m.items {
		if item.OriginalYear != 0 {
			count++
		}
	}
	return count, nil
}

func (m *mockStore) IsEmpty(_ context.Context) (bool, error) {
	return m.count() == 0, nil
}

func (m *mockStore) SetLastSyncDate(_ context.Context, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSync = t
	return nil
}

func (m *mockStore) GetMetadata(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meta[key], nil
}

func (m *mockStore) setMeta(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta[key] = value
}

func (m *mockStore) lastSyncDate() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSync
}

// --- Mock Catalog ------------------------------------------------------------

type mockCatalog struct {
	mu sync.Mutex

	pages    map[int]*discogs.CollectionPage
	pageErrs map[int]error

	masters map[int64]*discogs.Master
	// masterErrs[id] is consumed one error per call, letting tests script
	// "fail twice, then succeed".
	masterErrs map[int64][]error

	pageCalls   []int
	masterCalls []int64

	// When set, Master blocks until the channel is closed or ctx ends.
	masterGate chan struct{}
}

func newMockCatalog() *mockCatalog {
	return &mockCatalog{
		pages:      make(map[int]*discogs.CollectionPage),
		pageErrs:   make(map[int]error),
		masters:    make(map[int64]*discogs.Master),
		masterErrs: make(map[int64][]error),
	}
}

// setPages installs a paginated collection from the given release batches.
func (m *mockCatalog) setPages(batches ...[]discogs.Release) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := len(batches)
	for i, releases := range batches {
		m.pages[i+1] = &discogs.CollectionPage{
			Pagination: discogs.Pagination{Page: i + 1, Pages: total, PerPage: 100},
			Releases:   releases,
		}
	}
}

func (m *mockCatalog) CollectionPage(_ context.Context, page int) (*discogs.CollectionPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageCalls = append(m.pageCalls, page)
	if err := m.pageErrs[page]; err != nil {
		return nil, err
	}
	pg, ok := m.pages[page]
	if !ok {
		return nil, fmt.Errorf("no such page %d", page)
	}
	return pg, nil
}

func (m *mockCatalog) Master(ctx context.Context, masterID int64) (*discogs.Master, error) {
	m.mu.Lock()
	m.masterCalls = append(m.masterCalls, masterID)
	gate := m.masterGate
	var nextErr error
	if errs := m.masterErrs[masterID]; len(errs) > 0 {
		nextErr = errs[0]
		m.masterErrs[masterID] = errs[1:]
	}
	master := m.masters[masterID]
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if nextErr != nil {
		return nil, nextErr
	}
	if master == nil {
		return nil, fmt.Errorf("no such master %d", masterID)
	}
	return master, nil
}

func (m *mockCatalog) masterCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.masterCalls)
}

func (m *mockCatalog) masterCallsFor(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, call := range m.masterCalls {
		if call == id {
			count++
		}
	}
	return count
}

func (m *mockCatalog) recordedPageCalls() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.pageCalls...)
}
