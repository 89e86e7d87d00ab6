package threads

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// InMemoryStore keeps threads for the lifetime of the process.
type InMemoryStore struct {
	mu      sync.Mutex
	threads map[string]Thread
	now     func() time.Time
}

var _ Store = &InMemoryStore{}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		threads: map[string]Thread{},
		now:     time.Now,
	}
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) Create(_ context.Context, ticker string) (Thread, error) {
	th := newThread(ticker, s.now())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[th.ID] = th
	return th, nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (Thread, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Thread{}, false, errors.New("in-memory thread store: id is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	th, ok := s.threads[id]
	return th, ok, nil
}

func (s *InMemoryStore) List(_ context.Context, limit int) ([]Thread, error) {
	s.mu.Lock()
	out := make([]Thread, 0, len(s.threads))
	for _, th := range s.threads {
		out = append(out, th)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastUsedAt.Equal(out[j].LastUsedAt) {
			return out[i].LastUsedAt.After(out[j].LastUsedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) Touch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	th, ok := s.threads[id]
	if !ok {
		return errors.Wrapf(ErrNotFound, "%q", id)
	}
	th.Turns++
	th.LastUsedAt = s.now()
	s.threads[id] = th
	return nil
}
