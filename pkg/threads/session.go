package threads

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Session hands out the conversation id of one client session. The id is
// created on first use (or resumed) and reused for every later turn.
type Session struct {
	store    Store
	ticker   string
	resumeID string

	mu sync.Mutex
	id string
}

// NewSession returns a session on store. A non-empty resumeID must name an
// existing thread; it is checked on first use.
func NewSession(store Store, resumeID, ticker string) *Session {
	return &Session{store: store, resumeID: resumeID, ticker: ticker}
}

// ThreadID returns the session's thread id and counts a turn on it.
func (s *Session) ThreadID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id == "" {
		id, err := s.resolve(ctx)
		if err != nil {
			return "", err
		}
		s.id = id
	}
	if err := s.store.Touch(ctx, s.id); err != nil {
		return "", err
	}
	return s.id, nil
}

// Current returns the thread id without resolving it. It is empty before the
// first turn.
func (s *Session) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session) resolve(ctx context.Context) (string, error) {
	if s.resumeID != "" {
		_, ok, err := s.store.Get(ctx, s.resumeID)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", errors.Wrapf(ErrNotFound, "resume %q", s.resumeID)
		}
		log.Debug().Str("component", "threads").Str("thread_id", s.resumeID).Msg("resuming thread")
		return s.resumeID, nil
	}
	th, err := s.store.Create(ctx, s.ticker)
	if err != nil {
		return "", err
	}
	log.Debug().Str("component", "threads").Str("thread_id", th.ID).Msg("created thread")
	return th.ID, nil
}
