package sse

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const multiAgentStream = "event: agent_start\n" +
	"data: {\"node\": \"Researcher\"}\n" +
	"\n" +
	"event: agent_output\n" +
	"data: {\"node\": \"Researcher\", \"content\": \"Prix: 12€ — 日本株 📈\"}\n" +
	"\n" +
	"event: finish\n" +
	"data: {\"summary\": \"ok\"}\n" +
	"\n"

func feedAll(d *Decoder, chunks ...[]byte) []string {
	var out []string
	for _, c := range chunks {
		out = append(out, d.Feed(c)...)
	}
	return out
}

func TestDecoder_SameLinesForEverySplitPoint(t *testing.T) {
	raw := []byte(multiAgentStream)
	want := feedAll(NewDecoder(), raw)
	require.Len(t, want, 9)
	require.Equal(t, "data: {\"node\": \"Researcher\", \"content\": \"Prix: 12€ — 日本株 📈\"}", want[4])

	for i := 0; i <= len(raw); i++ {
		got := feedAll(NewDecoder(), raw[:i], raw[i:])
		require.Equal(t, want, got, "split at byte %d", i)
	}
}

func TestDecoder_OneByteAtATime(t *testing.T) {
	raw := []byte(multiAgentStream)
	d := NewDecoder()
	var got []string
	for i := range raw {
		got = append(got, d.Feed(raw[i:i+1])...)
		require.NotContains(t, d.Pending(), "�")
	}
	require.Equal(t, feedAll(NewDecoder(), raw), got)
}

func TestDecoder_ThreeWaySplitInsideMultibyteCharacter(t *testing.T) {
	raw := []byte("data: 📈\n")
	idx := strings.Index(string(raw), "📈")
	d := NewDecoder()
	got := feedAll(d, raw[:idx+1], raw[idx+1:idx+3], raw[idx+3:])
	require.Equal(t, []string{"data: 📈"}, got)
}

func TestDecoder_TrailingPartialLineIsDiscarded(t *testing.T) {
	d := NewDecoder()
	lines := d.Feed([]byte("data: {\"node\":\"A\"}\ndata: {\"node\":"))
	require.Equal(t, []string{"data: {\"node\":\"A\"}"}, lines)
	require.Equal(t, "data: {\"node\":", d.Pending())

	dropped := d.Finish()
	require.Equal(t, "data: {\"node\":", dropped)
	require.Empty(t, d.Pending())
}

func TestDecoder_TruncatedMultibyteAtEOFIsReplaced(t *testing.T) {
	d := NewDecoder()
	euro := []byte("€")
	require.Empty(t, d.Feed(append([]byte("x"), euro[:2]...)))
	tail := d.Finish()
	require.True(t, strings.HasPrefix(tail, "x�"), tail)
	require.NotContains(t, tail, "€")
}

func TestDecoder_StripsLeadingByteOrderMark(t *testing.T) {
	d := NewDecoder()
	lines := d.Feed([]byte("\xef\xbb\xbfdata: {\"node\":\"A\"}\n"))
	require.Equal(t, []string{"data: {\"node\":\"A\"}"}, lines)

	// split inside the mark
	d = NewDecoder()
	got := feedAll(d, []byte("\xef"), []byte("\xbb"), []byte("\xbfdata: x\n\xef\xbb\xbf\n"))
	require.Equal(t, []string{"data: x", "\ufeff"}, got, "only the mark at stream start is dropped")

	d.Reset()
	require.Equal(t, []string{"y"}, d.Feed([]byte("\xef\xbb\xbfy\n")))
}

func TestDecoder_CRLFAndEmptyLines(t *testing.T) {
	d := NewDecoder()
	lines := d.Feed([]byte("event: a\r\ndata: {}\r\n\r\n"))
	require.Equal(t, []string{"event: a", "data: {}", ""}, lines)
}

func TestDecoder_InvalidBytesBecomeReplacementCharacter(t *testing.T) {
	d := NewDecoder()
	lines := d.Feed([]byte{'a', 0xff, 'b', '\n'})
	require.Equal(t, []string{"a�b"}, lines)
}

type chunkReader struct {
	chunks [][]byte
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if len(r.chunks[0]) == 0 {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func TestScanner_ReassemblesChunks(t *testing.T) {
	raw := []byte(multiAgentStream + "data: {\"partial\"")
	r := &chunkReader{chunks: [][]byte{raw[:7], raw[7:40], raw[40:41], raw[41:]}}
	sc := NewScanner(r)

	var got []string
	for sc.Scan() {
		got = append(got, sc.Line())
	}
	require.NoError(t, sc.Err())
	require.Equal(t, feedAll(NewDecoder(), []byte(multiAgentStream)), got)
	require.Equal(t, "data: {\"partial\"", sc.Dropped())
}

type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestScanner_ReportsReadErrors(t *testing.T) {
	boom := io.ErrUnexpectedEOF
	sc := NewScanner(&failingReader{data: []byte("data: {}\ndata: {"), err: boom})

	require.True(t, sc.Scan())
	require.Equal(t, "data: {}", sc.Line())
	require.False(t, sc.Scan())
	require.ErrorIs(t, sc.Err(), boom)
}

func TestWriter_RoundTripsThroughScanner(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewWriter(rec)
	require.NotNil(t, w)

	require.NoError(t, w.SendEvent("agent_start", map[string]string{"node": "Quant"}))
	require.NoError(t, w.SendData(map[string]string{"summary": "done"}))
	w.SendComment("ping")

	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	sc := NewScanner(strings.NewReader(rec.Body.String()))
	var got []string
	for sc.Scan() {
		got = append(got, sc.Line())
	}
	require.Equal(t, []string{
		"event: agent_start",
		`data: {"node":"Quant"}`,
		"",
		`data: {"summary":"done"}`,
		"",
		": ping",
		"",
	}, got)
}
