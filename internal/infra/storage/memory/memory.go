package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/boucer/prospek360-recovery-engine/internal/core/domain"
	"github.com/boucer/prospek360-recovery-engine/internal/infra/storage"
)

type MemoryStorage struct {
	findings map[string]*domain.Finding
	logs     map[string][]domain.LogEntry
	locks    map[string]time.Time
	mu       sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		findings: make(map[string]*domain.Finding),
		logs:     make(map[string][]domain.LogEntry),
		locks:    make(map[string]time.Time),
	}
}

// -----------------------------------------------------------------------------
// Finding Repository
// -----------------------------------------------------------------------------

type FindingRepo struct {
	store *MemoryStorage
}

func NewFindingRepo(store *MemoryStorage) *FindingRepo {
	return &FindingRepo{store: store}
}

func (r *FindingRepo) Save(ctx context.Context, f *domain.Finding) error {
	if err := f.Validate(); err != nil {
		return err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.findings[f.ID] = f.Clone()
	return nil
}

func (r *FindingRepo) Get(ctx context.Context, id string) (*domain.Finding, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	f, ok := r.store.findings[id]
	if !ok {
		return nil, storage.ErrFindingNotFound
	}
	return f.Clone(), nil
}

func (r *FindingRepo) ListUnhandled(ctx context.Context) ([]*domain.Finding, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var res []*domain.Finding
	for _, f := range r.store.findings {
		if !f.Handled {
			res = append(res, f.Clone())
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (r *FindingRepo) ListHandledAfter(ctx context.Context, after time.Time) ([]*domain.Finding, error) {
	return r.listHandled(func(at time.Time) bool { return at.After(after) }, 0), nil
}

func (r *FindingRepo) ListHandledBefore(ctx context.Context, before time.Time, limit int) ([]*domain.Finding, error) {
	return r.listHandled(func(at time.Time) bool { return !at.After(before) }, limit), nil
}

func (r *FindingRepo) listHandled(match func(time.Time) bool, limit int) []*domain.Finding {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var res []*domain.Finding
	for _, f := range r.store.findings {
		if f.Handled && f.HandledAt != nil && match(*f.HandledAt) {
			res = append(res, f.Clone())
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].HandledAt.Equal(*res[j].HandledAt) {
			return res[i].HandledAt.After(*res[j].HandledAt)
		}
		return res[i].ID < res[j].ID
	})
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res
}

func (r *FindingRepo) MarkHandled(ctx context.Context, id string, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	f, ok := r.store.findings[id]
	if !ok {
		return storage.ErrFindingNotFound
	}
	if f.Handled {
		return storage.ErrAlreadyHandled
	}
	f.MarkHandled(at)
	return nil
}

func (r *FindingRepo) Unhandle(ctx context.Context, id string, handledAfter time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	f, ok := r.store.findings[id]
	if !ok {
		return storage.ErrFindingNotFound
	}
	if !f.Handled {
		return storage.ErrNotHandled
	}
	if !handledAfter.IsZero() && !f.HandledAt.After(handledAfter) {
		return storage.ErrUndoExpired
	}
	f.Reopen()
	return nil
}

func (r *FindingRepo) Enqueue(ctx context.Context, ids []string, at time.Time) ([]*domain.Finding, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var res []*domain.Finding
	for _, id := range dedupe(ids) {
		f, ok := r.store.findings[id]
		if !ok || f.Handled {
			continue
		}
		f.Enqueue(at)
		res = append(res, f.Clone())
	}
	return res, nil
}

func (r *FindingRepo) Dequeue(ctx context.Context, ids []string) ([]string, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var res []string
	for _, id := range dedupe(ids) {
		f, ok := r.store.findings[id]
		if !ok || f.Handled || !f.AutopilotQueued {
			continue
		}
		f.Dequeue()
		res = append(res, id)
	}
	return res, nil
}

func (r *FindingRepo) ExecuteBatch(ctx context.Context, ids []string, at time.Time) ([]*domain.Finding, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var res []*domain.Finding
	for _, id := range dedupe(ids) {
		f, ok := r.store.findings[id]
		if !ok || f.Handled || !f.AutopilotQueued {
			continue
		}
		f.MarkHandled(at)
		res = append(res, f.Clone())
	}
	return res, nil
}

func (r *FindingRepo) RestoreBatch(ctx context.Context, ids []string, handledAfter time.Time) ([]string, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var res []string
	for _, id := range dedupe(ids) {
		f, ok := r.store.findings[id]
		if !ok || !f.Handled || !f.HandledAt.After(handledAfter) {
			continue
		}
		f.Reopen()
		res = append(res, id)
	}
	return res, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// -----------------------------------------------------------------------------
// Action Log
// -----------------------------------------------------------------------------

type ActionLog struct {
	store    *MemoryStorage
	capacity int
}

func NewActionLog(store *MemoryStorage, capacity int) *ActionLog {
	if capacity <= 0 {
		capacity = storage.DefaultLogCapacity
	}
	return &ActionLog{store: store, capacity: capacity}
}

func (l *ActionLog) Append(ctx context.Context, entry domain.LogEntry) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	entries := l.store.logs[entry.Key]
	if len(entries) >= l.capacity {
		// Shift elements left, drop oldest
		copy(entries, entries[len(entries)-l.capacity+1:])
		entries = entries[:l.capacity-1]
	}
	l.store.logs[entry.Key] = append(entries, entry)
	return nil
}

func (l *ActionLog) Entries(ctx context.Context, key string) ([]domain.LogEntry, error) {
	l.store.mu.RLock()
	defer l.store.mu.RUnlock()
	entries := l.store.logs[key]
	out := make([]domain.LogEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (l *ActionLog) LastSuccessfulSend(
	ctx context.Context,
	key string,
	findingType domain.FindingType,
) (*domain.LogEntry, error) {
	l.store.mu.RLock()
	defer l.store.mu.RUnlock()
	return storage.LastSuccessfulSend(l.store.logs[key], findingType), nil
}

// -----------------------------------------------------------------------------
// Locker
// -----------------------------------------------------------------------------

type Locker struct {
	store *MemoryStorage
	now   func() time.Time
}

func NewLocker(store *MemoryStorage) *Locker {
	return &Locker{store: store, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (l *Locker) WithClock(now func() time.Time) *Locker {
	l.now = now
	return l
}

func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	now := l.now()
	if expiresAt, ok := l.store.locks[key]; ok && now.Before(expiresAt) {
		return false, nil
	}
	l.store.locks[key] = now.Add(ttl)
	return true, nil
}

func (l *Locker) Release(ctx context.Context, key string) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	delete(l.store.locks, key)
	return nil
}
