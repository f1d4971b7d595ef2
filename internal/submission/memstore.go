package submission

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore keeps submissions in process memory. It backs local
// development (INTAKE_STORE=memory) and tests.
type MemStore struct {
	mu   sync.RWMutex
	subs []Submission
	now  func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{now: time.Now}
}

func (m *MemStore) Create(ctx context.Context, n New) (Submission, error) {
	if err := ctx.Err(); err != nil {
		return Submission{}, err
	}
	s := build(n, m.now())

	m.mu.Lock()
	m.subs = append(m.subs, s)
	m.mu.Unlock()

	return clone(s), nil
}

func (m *MemStore) ListNewestFirst(ctx context.Context) ([]Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]Submission, len(m.subs))
	for i, s := range m.subs {
		out[i] = clone(s)
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return newerFirst(out[i], out[j]) })
	return out, nil
}

func (m *MemStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs), nil
}

// clone copies the link slices so callers cannot mutate stored records.
func clone(s Submission) Submission {
	s.Documents = nonNil(s.Documents)
	s.Images = nonNil(s.Images)
	return s
}
