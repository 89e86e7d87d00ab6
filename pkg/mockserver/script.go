package mockserver

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-go-golems/stockchat/pkg/api"
	"github.com/go-go-golems/stockchat/pkg/events"
)

// Frame is one SSE event of a scripted turn. An empty Event writes a bare
// data line.
type Frame struct {
	Event events.Label
	Data  interface{}
}

// Script produces the frames for one chat request.
type Script func(req api.ChatRequest) []Frame

func StartFrame(node string) Frame {
	return Frame{Event: events.LabelAgentStart, Data: map[string]string{"node": node}}
}

func OutputFrame(node string, content interface{}) Frame {
	return Frame{Event: events.LabelAgentOutput, Data: map[string]interface{}{"node": node, "content": content}}
}

func ErrorFrame(message string) Frame {
	return Frame{Event: events.LabelError, Data: map[string]string{"message": message}}
}

func FinishFrame(summary string) Frame {
	return Frame{Event: events.LabelFinish, Data: map[string]string{"summary": summary}}
}

var tickerWord = regexp.MustCompile(`\b[A-Z]{2,5}\b`)

// GuessTicker returns the first all-caps word of two to five letters, so the
// pronoun "I" is never taken for a ticker.
func GuessTicker(message string) string {
	if m := tickerWord.FindString(message); m != "" {
		return m
	}
	return "the market"
}

// DefaultScript runs a routing turn followed by two analysts whose answers
// are streamed in chunks of chunkWords words.
func DefaultScript(chunkWords int) Script {
	return func(req api.ChatRequest) []Frame {
		ticker := GuessTicker(req.Message)
		analysts := []struct {
			node string
			text string
		}{
			{"FundamentalAnalyst", fmt.Sprintf(
				"**%s fundamentals**: revenue growth is steady, margins are stable and the balance sheet carries "+
					"more cash than debt. Trailing P/E sits above the sector median.", ticker)},
			{"TechnicalAnalyst", fmt.Sprintf(
				"**%s technicals**: price holds above the 50-day moving average, RSI is near 58 and volume "+
					"confirms the last breakout. Support is at the prior swing low.", ticker)},
		}

		frames := []Frame{
			StartFrame("IntentClassifier"),
			OutputFrame("IntentClassifier", map[string]string{"type": "intent", "text": "stock_analysis"}),
			StartFrame("Supervisor"),
			OutputFrame("Supervisor", "Routing to FundamentalAnalyst and TechnicalAnalyst."),
		}
		var last string
		for _, a := range analysts {
			frames = append(frames, StartFrame(a.node))
			for _, chunk := range Chunk(a.text, chunkWords) {
				frames = append(frames, OutputFrame(a.node, chunk))
			}
			last = a.text
		}
		return append(frames, FinishFrame(Summary(last)))
	}
}

// Reply is the whole answer a script gives, as the synchronous endpoint
// returns it: the last non-empty output of the turn, reassembled.
func Reply(frames []Frame) string {
	var node string
	var b strings.Builder
	for _, f := range frames {
		if f.Event != events.LabelAgentOutput {
			continue
		}
		m, ok := f.Data.(map[string]interface{})
		if !ok {
			continue
		}
		text, ok := m["content"].(string)
		if !ok || text == "" {
			continue
		}
		n, _ := m["node"].(string)
		if n != node {
			node = n
			b.Reset()
		}
		b.WriteString(text)
	}
	return b.String()
}

// Chunk splits text into pieces of n words. Concatenating the pieces gives
// back text.
func Chunk(text string, n int) []string {
	if n <= 0 {
		return []string{text}
	}
	words := strings.SplitAfter(text, " ")
	var out []string
	for i := 0; i < len(words); i += n {
		end := i + n
		if end > len(words) {
			end = len(words)
		}
		out = append(out, strings.Join(words[i:end], ""))
	}
	return out
}

func Summary(s string) string {
	if s == "" {
		return "No response generated"
	}
	r := []rune(s)
	if len(r) > 200 {
		r = r[:200]
	}
	return string(r)
}
