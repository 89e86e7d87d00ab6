package chat

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/stockchat/pkg/api"
	"github.com/go-go-golems/stockchat/pkg/events"
	"github.com/go-go-golems/stockchat/pkg/sse"
	"github.com/go-go-golems/stockchat/pkg/transcript"
)

// ErrTurnInFlight is returned by SendMessage while another turn is streaming.
var ErrTurnInFlight = errors.New("a chat turn is already in flight")

// Streamer opens the event stream for one turn.
type Streamer interface {
	StreamChat(ctx context.Context, req api.ChatRequest) (io.ReadCloser, error)
}

// ThreadSource yields the conversation id sent with each turn. It is called
// once per turn and is expected to return the same id for the session.
type ThreadSource interface {
	ThreadID(ctx context.Context) (string, error)
}

// Mirror receives every classified event after it was applied.
type Mirror interface {
	MirrorEvent(threadID string, ev events.Event)
}

// StaticThread is a ThreadSource with a fixed id.
type StaticThread string

func (s StaticThread) ThreadID(context.Context) (string, error) { return string(s), nil }

type State int

const (
	StateIdle State = iota
	// StateSending covers the time between the user message and the first byte
	// of the response.
	StateSending
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	}
	return "unknown"
}

// Update is what the host sees after every change.
type Update struct {
	Messages  transcript.Transcript
	Streaming bool
	State     State
	ThreadID  string
}

// Controller runs chat turns against the backend and owns the transcript.
// The transcript survives across turns; it is never persisted.
type Controller struct {
	streamer Streamer
	threads  ThreadSource
	mirror   Mirror
	onUpdate func(Update)
	logger   zerolog.Logger

	mu       sync.Mutex
	messages transcript.Transcript
	state    State
	threadID string
	cancel   context.CancelFunc
}

type Option func(*Controller)

func WithMirror(m Mirror) Option {
	return func(c *Controller) {
		c.mirror = m
	}
}

// WithOnUpdate sets the host callback. It is called from the goroutine
// running SendMessage, never while the controller's lock is held.
func WithOnUpdate(f func(Update)) Option {
	return func(c *Controller) {
		c.onUpdate = f
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

func NewController(streamer Streamer, threads ThreadSource, opts ...Option) *Controller {
	c := &Controller{
		streamer: streamer,
		threads:  threads,
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "chat").Logger()
	return c
}

// SendMessage runs one turn and blocks until it ends. Transport failures are
// recorded in the transcript as a connection error and also returned.
// Cancellation records nothing and returns nil.
func (c *Controller) SendMessage(ctx context.Context, text string) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrTurnInFlight
	}
	turnCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.state = StateSending
	c.messages = transcript.AppendUser(c.messages, text)
	u := c.snapshotLocked()
	c.mu.Unlock()

	defer c.finishTurn(cancel)
	c.emit(u)

	threadID, err := c.threads.ThreadID(turnCtx)
	if err != nil {
		return c.failTurn(turnCtx, errors.Wrap(err, "resolve thread"))
	}
	logger := c.logger.With().Str("thread_id", threadID).Logger()

	body, err := c.streamer.StreamChat(turnCtx, api.ChatRequest{Message: text, ThreadID: threadID})
	if err != nil {
		return c.failTurn(turnCtx, err)
	}
	defer func() { _ = body.Close() }()

	c.mu.Lock()
	c.state = StateStreaming
	c.threadID = threadID
	u = c.snapshotLocked()
	c.mu.Unlock()
	c.emit(u)
	logger.Debug().Msg("turn streaming")

	sc := sse.NewScanner(body)
	applied := 0
	for sc.Scan() {
		line := sc.Line()
		if ev, ok := events.ClassifyLine(line); ok {
			c.apply(ev)
			if c.mirror != nil {
				c.mirror.MirrorEvent(threadID, ev)
			}
			applied++
		} else if label, ok := events.ParseLabel(line); ok {
			logger.Trace().Str("label", string(label)).Msg("event label")
		}
		// a line already read is applied in full; cancellation stops before the next one
		if turnCtx.Err() != nil {
			break
		}
	}
	if turnCtx.Err() != nil {
		logger.Debug().Int("events", applied).Msg("turn cancelled")
		return nil
	}
	if err := sc.Err(); err != nil {
		return c.failTurn(turnCtx, err)
	}
	if tail := sc.Dropped(); tail != "" {
		logger.Debug().Int("bytes", len(tail)).Msg("discarded unterminated line at end of stream")
	}
	logger.Debug().Int("events", applied).Msg("turn finished")
	return nil
}

// Cancel aborts the turn in flight. It is a no-op when idle.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *Controller) Messages() transcript.Transcript {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages.Clone()
}

func (c *Controller) IsStreaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != StateIdle
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ThreadID is the id used by the last turn that reached the backend.
func (c *Controller) ThreadID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threadID
}

func (c *Controller) apply(ev events.Event) {
	c.mu.Lock()
	c.messages = transcript.Reduce(c.messages, ev)
	u := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(u)
}

// failTurn records err unless the turn was cancelled.
func (c *Controller) failTurn(turnCtx context.Context, err error) error {
	if turnCtx.Err() != nil {
		c.logger.Debug().Err(err).Msg("turn cancelled before completion")
		return nil
	}
	c.logger.Warn().Err(err).Msg("turn failed")

	c.mu.Lock()
	c.messages = transcript.AppendConnectionError(c.messages, errors.Cause(err))
	u := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(u)
	return err
}

func (c *Controller) finishTurn(cancel context.CancelFunc) {
	cancel()
	c.mu.Lock()
	c.state = StateIdle
	c.cancel = nil
	u := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(u)
}

func (c *Controller) snapshotLocked() Update {
	return Update{
		Messages:  c.messages.Clone(),
		Streaming: c.state != StateIdle,
		State:     c.state,
		ThreadID:  c.threadID,
	}
}

func (c *Controller) emit(u Update) {
	if c.onUpdate != nil {
		c.onUpdate(u)
	}
}
