package cmds

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/stockchat/pkg/chat"
	"github.com/go-go-golems/stockchat/pkg/eventbus"
	"github.com/go-go-golems/stockchat/pkg/events"
	"github.com/go-go-golems/stockchat/pkg/transcript"
)

// transcriptPrinter writes a transcript to a line terminal as it grows.
// Agent text is printed as deltas; when output switches between agents a
// header names the new speaker. Steps are printed once.
type transcriptPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	printed map[string]int
	last    string
}

func newTranscriptPrinter(w io.Writer) *transcriptPrinter {
	return &transcriptPrinter{w: w, printed: map[string]int{}}
}

// OnUpdate is meant for chat.WithOnUpdate.
func (p *transcriptPrinter) OnUpdate(u chat.Update) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, m := range u.Messages.CurrentTurn() {
		done, seen := p.printed[m.ID]
		switch m.Role {
		case transcript.RoleUser:
			p.printed[m.ID] = len(m.Content)
		case transcript.RoleStep:
			if !seen {
				p.switchTo("")
				_, _ = fmt.Fprintf(p.w, "· %s\n", m.Content)
				p.printed[m.ID] = len(m.Content)
			}
		case transcript.RoleAgent:
			if done >= len(m.Content) {
				continue
			}
			if p.last != m.ID {
				p.switchTo(m.ID)
				if m.AgentName != "" {
					_, _ = fmt.Fprintf(p.w, "[%s]\n", m.AgentName)
				}
			}
			_, _ = io.WriteString(p.w, m.Content[done:])
			p.printed[m.ID] = len(m.Content)
		}
	}
	if !u.Streaming {
		p.switchTo("")
	}
}

// switchTo ends the line of the message printed last.
func (p *transcriptPrinter) switchTo(id string) {
	if p.last != "" && p.last != id {
		_, _ = io.WriteString(p.w, "\n")
	}
	p.last = id
}

// rawPrinter prints every mirrored event as a JSON envelope line. Events go
// through an in-process bus, so the output is exactly what tail shows for a
// Redis-backed mirror.
type rawPrinter struct {
	*eventbus.Bus
	cancel context.CancelFunc
	done   chan struct{}
}

func startRawPrinter(ctx context.Context, w io.Writer) (*rawPrinter, error) {
	bus, err := eventbus.New(eventbus.Settings{})
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	envs, err := bus.Envelopes(ctx)
	if err != nil {
		cancel()
		_ = bus.Close()
		return nil, err
	}

	p := &rawPrinter{Bus: bus, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		for env := range envs {
			b, err := events.MarshalEnvelope(env)
			if err != nil {
				log.Warn().Err(err).Msg("could not encode event")
				continue
			}
			_, _ = fmt.Fprintln(w, string(b))
		}
	}()
	return p, nil
}

// Stop waits for the events already mirrored to be printed, then closes the
// bus.
func (p *rawPrinter) Stop() error {
	p.cancel()
	<-p.done
	return p.Bus.Close()
}

// mirrors fans an event out to several mirrors.
type mirrors []chat.Mirror

func (ms mirrors) MirrorEvent(threadID string, ev events.Event) {
	for _, m := range ms {
		m.MirrorEvent(threadID, ev)
	}
}
