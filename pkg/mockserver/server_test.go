package mockserver

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/stockchat/pkg/api"
	"github.com/go-go-golems/stockchat/pkg/events"
	"github.com/go-go-golems/stockchat/pkg/sse"
	"github.com/go-go-golems/stockchat/pkg/transcript"
)

func TestChunk_Reassembles(t *testing.T) {
	text := "one two three four five six seven"
	for n := 0; n < 9; n++ {
		require.Equal(t, text, strings.Join(Chunk(text, n), ""), n)
	}
	require.Equal(t, []string{"one two ", "three"}, Chunk("one two three", 2))
}

func TestGuessTicker(t *testing.T) {
	require.Equal(t, "NVDA", GuessTicker("Should I buy NVDA now?"))
	require.Equal(t, "MSFT", GuessTicker("I think A MSFT dip is coming"))
	require.Equal(t, "the market", GuessTicker("how are things"))
	require.Equal(t, "the market", GuessTicker("Should I buy?"))
}

func TestSummary(t *testing.T) {
	require.Equal(t, "No response generated", Summary(""))
	require.Len(t, []rune(Summary(strings.Repeat("é", 300))), 200)
}

func TestDefaultScript_DrivesTranscript(t *testing.T) {
	srv := httptest.NewServer(New().Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/chat/stream", "application/json", strings.NewReader(`{"message":"Analyze AAPL","thread_id":"t"}`))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	tr := transcript.AppendUser(nil, "Analyze AAPL")
	sc := sse.NewScanner(resp.Body)
	for sc.Scan() {
		if ev, ok := events.ClassifyLine(sc.Line()); ok {
			tr = transcript.Reduce(tr, ev)
		}
	}
	require.NoError(t, sc.Err())

	require.Empty(t, tr.ActiveSteps())
	require.Len(t, tr, 5)
	require.Equal(t, "stock_analysis", tr[1].Content)
	require.Equal(t, "FundamentalAnalyst", tr[3].AgentName)
	require.True(t, strings.HasPrefix(tr[3].Content, "**AAPL fundamentals**"))
	require.True(t, strings.HasSuffix(tr[4].Content, "prior swing low."))
}

func TestStream_ScriptedFrames(t *testing.T) {
	script := func(req api.ChatRequest) []Frame {
		return []Frame{ErrorFrame("boom"), {Data: map[string]string{"node": "X"}}}
	}
	srv := httptest.NewServer(New(WithScript(script)).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/chat/stream", "application/json", strings.NewReader(`{"message":"x"}`))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var lines []string
	sc := sse.NewScanner(resp.Body)
	for sc.Scan() {
		if sc.Line() != "" {
			lines = append(lines, sc.Line())
		}
	}
	require.Equal(t, []string{
		"event: error",
		`data: {"message":"boom"}`,
		`data: {"node":"X"}`,
	}, lines)
}

func TestStream_RejectsBadBody(t *testing.T) {
	srv := httptest.NewServer(New().Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/chat/stream", "application/json", strings.NewReader(`{`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestStock_InvalidPeriod(t *testing.T) {
	srv := httptest.NewServer(New().Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/stock/AAPL?period=7d")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestSyntheticSnapshot_Deterministic(t *testing.T) {
	end := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	a := SyntheticSnapshot("MSFT", 21, end)
	b := SyntheticSnapshot("MSFT", 21, end)
	require.Equal(t, a, b)
	require.Len(t, a.History, 21)
	require.Equal(t, "2026-03-02", a.History[20].Time)
	require.GreaterOrEqual(t, *a.FiftyTwoWeekHigh, *a.FiftyTwoWeekLow)

	c := SyntheticSnapshot("TSLA", 21, end)
	require.NotEqual(t, a.Price, c.Price)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New().Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/api/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
