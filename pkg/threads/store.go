package threads

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Thread is a backend conversation id and its local bookkeeping. Message
// content is never stored: the backend owns the conversation memory.
type Thread struct {
	ID         string    `json:"id" yaml:"id"`
	Ticker     string    `json:"ticker,omitempty" yaml:"ticker,omitempty"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
	LastUsedAt time.Time `json:"last_used_at" yaml:"last_used_at"`
	Turns      int       `json:"turns" yaml:"turns"`
}

// Store is the thread registry.
type Store interface {
	// Create registers a new thread with a fresh id.
	Create(ctx context.Context, ticker string) (Thread, error)
	Get(ctx context.Context, id string) (Thread, bool, error)
	// List returns threads by most recent use, at most limit (0 means all).
	List(ctx context.Context, limit int) ([]Thread, error)
	// Touch records one more turn on an existing thread.
	Touch(ctx context.Context, id string) error
	Close() error
}

var ErrNotFound = errors.New("thread not found")

func newThread(ticker string, now time.Time) Thread {
	return Thread{
		ID:         uuid.NewString(),
		Ticker:     strings.ToUpper(strings.TrimSpace(ticker)),
		CreatedAt:  now,
		LastUsedAt: now,
	}
}
