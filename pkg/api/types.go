package api

import (
	"regexp"
	"strings"
)

// ChatRequest is the body of both chat endpoints.
type ChatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id,omitempty"`
}

type ChatResponse struct {
	Reply    string `json:"reply"`
	ThreadID string `json:"thread_id"`
}

type Health struct {
	Status     string  `json:"status"`
	GraphReady bool    `json:"graph_ready"`
	GraphError *string `json:"graph_error"`
}

// HistoryPoint is one daily OHLCV bar. Time is a YYYY-MM-DD date.
type HistoryPoint struct {
	Time   string  `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// Snapshot is the quote payload behind the dashboard. Fields the upstream data
// source may not know are pointers.
type Snapshot struct {
	Ticker           string         `json:"ticker"`
	Name             string         `json:"name"`
	Price            float64        `json:"price"`
	Change           float64        `json:"change"`
	ChangePct        float64        `json:"changePct"`
	Volume           int64          `json:"volume"`
	MarketCap        *float64       `json:"marketCap"`
	PERatio          *float64       `json:"peRatio"`
	FiftyTwoWeekHigh *float64       `json:"fiftyTwoWeekHigh"`
	FiftyTwoWeekLow  *float64       `json:"fiftyTwoWeekLow"`
	Sector           string         `json:"sector,omitempty"`
	Industry         string         `json:"industry,omitempty"`
	History          []HistoryPoint `json:"history"`
	Error            string         `json:"error,omitempty"`
}

// Closes returns the closing prices of the history in order.
func (s *Snapshot) Closes() []float64 {
	out := make([]float64, 0, len(s.History))
	for _, p := range s.History {
		out = append(out, p.Close)
	}
	return out
}

const DefaultPeriod = "6mo"

var periodPattern = regexp.MustCompile(`^(1d|5d|1mo|3mo|6mo|1y|2y|5y|max)$`)

// ValidPeriod reports whether p is one of the history periods the backend accepts.
func ValidPeriod(p string) bool {
	return periodPattern.MatchString(p)
}

// NormalizeTicker upper-cases and trims a ticker symbol.
func NormalizeTicker(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}
