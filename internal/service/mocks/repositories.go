// Package mocks provides in-memory repositories with the same semantics as
// the Postgres and Redis implementations.
package mocks

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/SergeiKhy/url-analytics/internal/models"
	"github.com/SergeiKhy/url-analytics/internal/repository"
)

// MockLinkRepository implements repository.LinkRepository for testing.
type MockLinkRepository struct {
	mu     sync.RWMutex
	links  map[string]*models.Link
	nextID int64

	// Delay is applied to GetByShortCode, honouring ctx cancellation.
	Delay time.Duration
	// Err, when set, is returned by every call.
	Err error
}

func NewMockLinkRepository() *MockLinkRepository {
	return &MockLinkRepository{
		links:  make(map[string]*models.Link),
		nextID: 1,
	}
}

func (m *MockLinkRepository) Create(ctx context.Context, link *models.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	if _, exists := m.links[link.ShortCode]; exists {
		return repository.ErrCodeExists
	}

	link.ID = m.nextID
	m.nextID++
	stored := *link
	m.links[link.ShortCode] = &stored
	return nil
}

func (m *MockLinkRepository) GetByShortCode(ctx context.Context, code string) (*models.Link, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	link, exists := m.links[code]
	if !exists || link.Deleted() {
		return nil, repository.ErrLinkNotFound
	}
	copied := *link
	return &copied, nil
}

func (m *MockLinkRepository) Delete(ctx context.Context, code, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	link, exists := m.links[code]
	if !exists || link.Deleted() || link.OwnerID != ownerID {
		return repository.ErrLinkNotFound
	}
	now := time.Now().UTC()
	link.DeletedAt = &now
	return nil
}

// live returns the owner's live links, newest first then by code.
func (m *MockLinkRepository) live(ownerID string) []models.Link {
	var out []models.Link
	for _, link := range m.links {
		if link.OwnerID == ownerID && !link.Deleted() {
			out = append(out, *link)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ShortCode < out[j].ShortCode
	})
	return out
}

func (m *MockLinkRepository) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	all := m.live(ownerID)
	if offset >= len(all) {
		return []models.Link{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *MockLinkRepository) CountByOwner(ctx context.Context, ownerID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return 0, m.Err
	}
	return int64(len(m.live(ownerID))), nil
}

func (m *MockLinkRepository) Summary(ctx context.Context, ownerID string, since time.Time) (*models.OwnerSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	summary := &models.OwnerSummary{}
	for _, link := range m.live(ownerID) {
		summary.TotalUrls++
		summary.TotalClicks += link.ClickCount
		if !link.CreatedAt.Before(since) {
			summary.UrlsSince++
		}
	}
	return summary, nil
}

func (m *MockLinkRepository) DailyCreated(ctx context.Context, ownerID string, from time.Time) ([]models.BucketCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	counts := map[string]int64{}
	for _, link := range m.live(ownerID) {
		if !link.CreatedAt.Before(from) {
			counts[link.CreatedAt.UTC().Format(models.DayLayout)]++
		}
	}
	return sortedBuckets(counts), nil
}

func (m *MockLinkRepository) TopByOwner(ctx context.Context, ownerID string, n int) ([]models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	all := m.live(ownerID)
	sort.SliceStable(all, func(i, j int) bool { return all[i].ClickCount > all[j].ClickCount })
	if len(all) > n {
		all = all[:n]
	}
	if all == nil {
		all = []models.Link{}
	}
	return all, nil
}

// incrementClicks bumps click_count including tombstoned rows, as the SQL does.
func (m *MockLinkRepository) incrementClicks(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if link, ok := m.links[code]; ok {
		link.ClickCount++
	}
}

func (m *MockLinkRepository) setClicks(counts map[string]int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for code, link := range m.links {
		link.ClickCount = counts[code]
	}
}

func (m *MockLinkRepository) ownerCodes(ownerID string) map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	codes := map[string]bool{}
	for code, link := range m.links {
		if link.OwnerID == ownerID && !link.Deleted() {
			codes[code] = true
		}
	}
	return codes
}

func (m *MockLinkRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = make(map[string]*models.Link)
	m.nextID = 1
}

// MockClickRepository implements repository.ClickRepository for testing.
type MockClickRepository struct {
	mu      sync.Mutex
	links   *MockLinkRepository
	events  map[string]models.ClickEvent
	rollups map[string]map[string]map[string]int64 // code -> dimension -> bucket -> count

	// FailTimes makes the next N ApplyClick calls fail with a transient error.
	FailTimes int
	// Delay is applied to every ApplyClick.
	Delay time.Duration
}

func NewMockClickRepository(links *MockLinkRepository) *MockClickRepository {
	return &MockClickRepository{
		links:   links,
		events:  make(map[string]models.ClickEvent),
		rollups: make(map[string]map[string]map[string]int64),
	}
}

func (m *MockClickRepository) ApplyClick(ctx context.Context, event *models.ClickEvent) (bool, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailTimes > 0 {
		m.FailTimes--
		return false, repository.ErrTransient
	}
	if _, seen := m.events[event.ID]; seen {
		return false, nil
	}

	m.events[event.ID] = *event
	m.addRollups(event)
	if m.links != nil {
		m.links.incrementClicks(event.ShortCode)
	}
	return true, nil
}

func (m *MockClickRepository) addRollups(event *models.ClickEvent) {
	dims, ok := m.rollups[event.ShortCode]
	if !ok {
		dims = make(map[string]map[string]int64)
		m.rollups[event.ShortCode] = dims
	}
	for dim, bucket := range event.Buckets() {
		if dims[dim] == nil {
			dims[dim] = make(map[string]int64)
		}
		dims[dim][bucket]++
	}
}

func (m *MockClickRepository) Rollups(ctx context.Context, q repository.RollupQuery) ([]models.BucketCount, error) {
	var codes map[string]bool
	if q.ShortCode != "" {
		codes = map[string]bool{q.ShortCode: true}
	} else if m.links != nil {
		codes = m.links.ownerCodes(q.OwnerID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	counts := map[string]int64{}
	for code := range codes {
		for bucket, n := range m.rollups[code][q.Dimension] {
			if q.Dimension == models.DimensionDay {
				if (q.From != "" && bucket < q.From) || (q.To != "" && bucket > q.To) {
					continue
				}
			}
			counts[bucket] += n
		}
	}

	buckets := sortedBuckets(counts)
	sort.SliceStable(buckets, func(i, j int) bool { return buckets[i].Count > buckets[j].Count })
	return buckets, nil
}

func (m *MockClickRepository) PurgeEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var purged int64
	for id, event := range m.events {
		if event.ClickedAt.Before(cutoff) {
			delete(m.events, id)
			purged++
		}
	}
	return purged, nil
}

func (m *MockClickRepository) RebuildRollups(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollups = make(map[string]map[string]map[string]int64)
	counts := map[string]int64{}
	for _, event := range m.events {
		event := event
		m.addRollups(&event)
		counts[event.ShortCode]++
	}
	if m.links != nil {
		m.links.setClicks(counts)
	}
	return nil
}

// EventCount is the number of retained raw events.
func (m *MockClickRepository) EventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func sortedBuckets(counts map[string]int64) []models.BucketCount {
	buckets := make([]models.BucketCount, 0, len(counts))
	for bucket, n := range counts {
		buckets = append(buckets, models.BucketCount{Bucket: bucket, Count: n})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Bucket < buckets[j].Bucket })
	return buckets
}

// MockCacheRepository implements repository.CacheRepository for testing.
// Values are stored serialized so callers never share pointers with the cache.
type MockCacheRepository struct {
	mu          sync.RWMutex
	cache       map[string][]byte
	subscribers []func(code string)

	// Err, when set, is returned by Get, Set and Delete.
	Err error
}

func NewMockCacheRepository() *MockCacheRepository {
	return &MockCacheRepository{
		cache: make(map[string][]byte),
	}
}

func (m *MockCacheRepository) Get(ctx context.Context, code string) (*models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	data, exists := m.cache[code]
	if !exists {
		return nil, repository.ErrCacheMiss
	}
	var link models.Link
	if err := json.Unmarshal(data, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

func (m *MockCacheRepository) Set(ctx context.Context, link *models.Link, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	data, err := json.Marshal(link)
	if err != nil {
		return err
	}
	m.cache[link.ShortCode] = data
	return nil
}

func (m *MockCacheRepository) Delete(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	delete(m.cache, code)
	return nil
}

func (m *MockCacheRepository) Has(code string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.cache[code]
	return ok
}

func (m *MockCacheRepository) PublishInvalidation(ctx context.Context, code string) error {
	m.mu.RLock()
	subs := append([]func(string){}, m.subscribers...)
	m.mu.RUnlock()

	for _, fn := range subs {
		fn(code)
	}
	return nil
}

func (m *MockCacheRepository) SubscribeInvalidations(ctx context.Context, fn func(code string)) error {
	m.mu.Lock()
	m.subscribers = append(m.subscribers, fn)
	m.mu.Unlock()

	<-ctx.Done()
	return nil
}

// Subscribers reports how many listeners are attached.
func (m *MockCacheRepository) Subscribers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers)
}

func (m *MockCacheRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = make(map[string][]byte)
}
