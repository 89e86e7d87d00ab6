package chat

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/stockchat/pkg/api"
	"github.com/go-go-golems/stockchat/pkg/events"
	"github.com/go-go-golems/stockchat/pkg/mockserver"
	"github.com/go-go-golems/stockchat/pkg/transcript"
)

// byteReader yields its data a few bytes per Read, then err (io.EOF if nil).
type byteReader struct {
	data []byte
	step int
	err  error
}

func (r *byteReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := r.step
	if n > len(r.data) {
		n = len(r.data)
	}
	n = copy(p[:n], r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

func (r *byteReader) Close() error { return nil }

type fakeStreamer struct {
	mu   sync.Mutex
	reqs []api.ChatRequest
	open func() (io.ReadCloser, error)
}

func (f *fakeStreamer) StreamChat(_ context.Context, req api.ChatRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	return f.open()
}

func streamOf(data string, step int) *fakeStreamer {
	return &fakeStreamer{open: func() (io.ReadCloser, error) {
		return &byteReader{data: []byte(data), step: step}, nil
	}}
}

type recordingMirror struct {
	mu     sync.Mutex
	events []events.Event
	thread string
}

func (m *recordingMirror) MirrorEvent(threadID string, ev events.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thread = threadID
	m.events = append(m.events, ev)
}

func newMockController(t *testing.T, opts ...Option) *Controller {
	t.Helper()
	srv := httptest.NewServer(mockserver.New().Handler())
	t.Cleanup(srv.Close)
	client, err := api.NewClient(srv.URL, api.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return NewController(client, StaticThread("thread-1"), opts...)
}

func roles(t transcript.Transcript) []transcript.Role {
	out := make([]transcript.Role, 0, len(t))
	for _, m := range t {
		out = append(out, m.Role)
	}
	return out
}

func TestController_FullTurnAgainstMockBackend(t *testing.T) {
	var mu sync.Mutex
	var updates []Update
	mirror := &recordingMirror{}
	c := newMockController(t,
		WithMirror(mirror),
		WithOnUpdate(func(u Update) {
			mu.Lock()
			updates = append(updates, u)
			mu.Unlock()
		}),
	)

	require.NoError(t, c.SendMessage(context.Background(), "Analyze AAPL"))
	require.False(t, c.IsStreaming())
	require.Equal(t, StateIdle, c.State())
	require.Equal(t, "thread-1", c.ThreadID())

	msgs := c.Messages()
	require.Equal(t, []transcript.Role{
		transcript.RoleUser, transcript.RoleAgent, transcript.RoleAgent, transcript.RoleAgent, transcript.RoleAgent,
	}, roles(msgs))
	require.Equal(t, "Analyze AAPL", msgs[0].Content)
	require.Equal(t, "TechnicalAnalyst", msgs[4].AgentName)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(updates), 4)
	require.Equal(t, StateSending, updates[0].State)
	require.True(t, updates[0].Streaming)
	require.Len(t, updates[0].Messages, 1)
	last := updates[len(updates)-1]
	require.False(t, last.Streaming)
	require.Equal(t, msgs, last.Messages)

	require.Equal(t, "thread-1", mirror.thread)
	require.Equal(t, events.AgentStart{Node: "IntentClassifier"}, mirror.events[0])
}

func TestController_HTTPErrorAddsOneConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	client, err := api.NewClient(srv.URL)
	require.NoError(t, err)

	c := NewController(client, StaticThread("t"))
	err = c.SendMessage(context.Background(), "hi")
	require.Error(t, err)

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, transcript.RoleAgent, msgs[1].Role)
	require.Equal(t, "⚠️ Connection error: HTTP 500", msgs[1].Content)
	require.False(t, c.IsStreaming())
}

func TestController_NoBody(t *testing.T) {
	s := &fakeStreamer{open: func() (io.ReadCloser, error) { return nil, api.ErrNoBody }}
	c := NewController(s, StaticThread("t"))
	require.ErrorIs(t, c.SendMessage(context.Background(), "hi"), api.ErrNoBody)
	require.Equal(t, "⚠️ Connection error: No response body", c.Messages()[1].Content)
}

func TestController_SplitMultibyteAcrossReads(t *testing.T) {
	stream := "event: agent_output\r\n" +
		`data: {"node":"R","content":"héllo 🚀"}` + "\n\n" +
		`data: {"node":"R","content":" ✓"}` + "\n" +
		`data: {"node":"R","content":"never"}`
	c := NewController(streamOf(stream, 1), StaticThread("t"))
	require.NoError(t, c.SendMessage(context.Background(), "go"))

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "héllo 🚀 ✓", msgs[1].Content)
}

func TestController_ErrorEventDoesNotEndTurn(t *testing.T) {
	stream := strings.Join([]string{
		`data: {"node":"A"}`,
		`data: {"message":"tool failed"}`,
		`data: {"node":"A","content":"still here"}`,
		`data: {"summary":"done"}`,
		"",
	}, "\n")
	c := NewController(streamOf(stream, 7), StaticThread("t"))
	require.NoError(t, c.SendMessage(context.Background(), "go"))

	msgs := c.Messages()
	require.Equal(t, []transcript.Role{transcript.RoleUser, transcript.RoleAgent, transcript.RoleAgent}, roles(msgs))
	require.Equal(t, "⚠️ Error: tool failed", msgs[1].Content)
	require.Equal(t, "still here", msgs[2].Content)
}

func TestController_ReadErrorMidStream(t *testing.T) {
	s := &fakeStreamer{open: func() (io.ReadCloser, error) {
		return &byteReader{data: []byte("data: {\"node\":\"A\",\"content\":\"part\"}\n"), step: 64, err: errors.New("connection reset")}, nil
	}}
	c := NewController(s, StaticThread("t"))
	require.Error(t, c.SendMessage(context.Background(), "go"))

	msgs := c.Messages()
	require.Len(t, msgs, 3)
	require.Equal(t, "part", msgs[1].Content)
	require.Equal(t, "⚠️ Connection error: connection reset", msgs[2].Content)
}

// blockingBackend writes one step frame and then holds the stream open until
// the client goes away.
func blockingBackend(t *testing.T) (*api.Client, <-chan struct{}) {
	t.Helper()
	started := make(chan struct{}, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "event: agent_start\ndata: {\"node\":\"Researcher\"}\n\n")
		w.(http.Flusher).Flush()
		started <- struct{}{}
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)
	client, err := api.NewClient(srv.URL, api.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return client, started
}

func waitForStep(t *testing.T, c *Controller) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(c.Messages().ActiveSteps()) == 1
	}, 5*time.Second, 5*time.Millisecond)
}

func TestController_CancelMidStreamAddsNothing(t *testing.T) {
	client, _ := blockingBackend(t)
	c := NewController(client, StaticThread("t"))

	done := make(chan error, 1)
	go func() { done <- c.SendMessage(context.Background(), "hi") }()

	waitForStep(t, c)
	require.True(t, c.IsStreaming())
	require.Equal(t, StateStreaming, c.State())
	c.Cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("turn did not end after cancel")
	}

	msgs := c.Messages()
	require.Equal(t, []transcript.Role{transcript.RoleUser, transcript.RoleStep}, roles(msgs))
	require.False(t, c.IsStreaming())
}

// cancelOnRead cancels the turn just before handing out its first chunk.
type cancelOnRead struct {
	*byteReader
	once   sync.Once
	cancel func()
}

func (r *cancelOnRead) Read(p []byte) (int, error) {
	r.once.Do(r.cancel)
	return r.byteReader.Read(p)
}

func TestController_CancelAppliesTheLineAlreadyRead(t *testing.T) {
	data := "data: {\"node\":\"A\",\"content\":\"one\"}\n" +
		"data: {\"node\":\"A\",\"content\":\" two\"}\n" +
		"data: {\"message\":\"late\"}\n"
	var c *Controller
	s := &fakeStreamer{open: func() (io.ReadCloser, error) {
		return &cancelOnRead{
			byteReader: &byteReader{data: []byte(data), step: len(data)},
			cancel:     func() { c.Cancel() },
		}, nil
	}}
	c = NewController(s, StaticThread("t"))

	require.NoError(t, c.SendMessage(context.Background(), "hi"))

	msgs := c.Messages()
	require.Equal(t, []transcript.Role{transcript.RoleUser, transcript.RoleAgent}, roles(msgs))
	require.Equal(t, "one", msgs[1].Content)
	require.False(t, c.IsStreaming())
}

func TestController_ParentContextCancelAddsNothing(t *testing.T) {
	client, _ := blockingBackend(t)
	c := NewController(client, StaticThread("t"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.SendMessage(ctx, "hi") }()
	waitForStep(t, c)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("turn did not end after parent cancel")
	}
	require.Len(t, c.Messages(), 2)
}

func TestController_CancelWhenIdleIsNoop(t *testing.T) {
	c := NewController(streamOf("", 1), StaticThread("t"))
	c.Cancel()
	require.Empty(t, c.Messages())
	require.Equal(t, StateIdle, c.State())

	require.NoError(t, c.SendMessage(context.Background(), "hi"))
	c.Cancel()
	require.Len(t, c.Messages(), 1)
}

func TestController_RejectsSecondTurnWhileStreaming(t *testing.T) {
	client, _ := blockingBackend(t)
	c := NewController(client, StaticThread("t"))

	done := make(chan error, 1)
	go func() { done <- c.SendMessage(context.Background(), "first") }()
	waitForStep(t, c)

	err := c.SendMessage(context.Background(), "second")
	require.ErrorIs(t, err, ErrTurnInFlight)
	msgs := c.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "first", msgs[0].Content)

	c.Cancel()
	require.NoError(t, <-done)

	// usable again once idle
	done2 := make(chan error, 1)
	go func() { done2 <- c.SendMessage(context.Background(), "third") }()
	require.Eventually(t, func() bool {
		return len(c.Messages().ActiveSteps()) == 2
	}, 5*time.Second, 5*time.Millisecond)
	c.Cancel()
	require.NoError(t, <-done2)
	require.Equal(t, "third", c.Messages()[2].Content)
}

type countingThreads struct {
	mu    sync.Mutex
	calls int
}

func (c *countingThreads) ThreadID(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return "stable", nil
}

func TestController_ThreadIDSentEveryTurn(t *testing.T) {
	s := &fakeStreamer{open: func() (io.ReadCloser, error) {
		return &byteReader{data: []byte("data: {\"node\":\"A\",\"content\":\"ok\"}\n"), step: 16}, nil
	}}
	threads := &countingThreads{}
	c := NewController(s, threads)

	require.NoError(t, c.SendMessage(context.Background(), "one"))
	require.NoError(t, c.SendMessage(context.Background(), "two"))

	require.Equal(t, 2, threads.calls)
	require.Equal(t, []api.ChatRequest{
		{Message: "one", ThreadID: "stable"},
		{Message: "two", ThreadID: "stable"},
	}, s.reqs)

	msgs := c.Messages()
	require.Len(t, msgs, 4)
	require.Equal(t, "ok", msgs[1].Content)
	require.Equal(t, "ok", msgs[3].Content)
	require.NotEqual(t, msgs[1].ID, msgs[3].ID)
}

type failingThreads struct{}

func (failingThreads) ThreadID(context.Context) (string, error) {
	return "", errors.New("database is locked")
}

func TestController_ThreadSourceFailure(t *testing.T) {
	s := streamOf("", 1)
	c := NewController(s, failingThreads{})
	require.Error(t, c.SendMessage(context.Background(), "hi"))
	require.Empty(t, s.reqs)
	require.Equal(t, "⚠️ Connection error: database is locked", c.Messages()[1].Content)
	require.False(t, c.IsStreaming())
}

func TestState_String(t *testing.T) {
	require.Equal(t, "idle", StateIdle.String())
	require.Equal(t, "sending", StateSending.String())
	require.Equal(t, "streaming", StateStreaming.String())
	require.Equal(t, "unknown", State(9).String())
}
