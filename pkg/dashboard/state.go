package dashboard

import (
	"time"

	"github.com/go-go-golems/stockchat/pkg/api"
)

// Result is the outcome of one quote fetch.
type Result struct {
	Ticker   string
	Snapshot *api.Snapshot
	Err      error
	At       time.Time
}

// State is what the dashboard shows: the latest successful snapshot, or a
// loading placeholder before the first one. A failed fetch keeps the last
// snapshot and records the error.
type State struct {
	Ticker    string
	Loading   bool
	Snapshot  *api.Snapshot
	Err       error
	UpdatedAt time.Time
}

func NewState(ticker string) State {
	return State{Ticker: api.NormalizeTicker(ticker), Loading: true}
}

// Begin marks a fetch for ticker as started. Switching tickers keeps the old
// snapshot on screen until the new one arrives.
func (s State) Begin(ticker string) State {
	s.Ticker = api.NormalizeTicker(ticker)
	s.Loading = true
	s.Err = nil
	return s
}

// Apply folds a fetch result into the state. Results for a ticker other than
// the current one are stale and ignored.
func (s State) Apply(r Result) State {
	if api.NormalizeTicker(r.Ticker) != s.Ticker {
		return s
	}
	s.Loading = false
	if r.Err != nil {
		s.Err = r.Err
		return s
	}
	s.Err = nil
	s.Snapshot = r.Snapshot
	s.UpdatedAt = r.At
	return s
}

// Showing reports whether the snapshot on screen belongs to the current ticker.
func (s State) Showing() bool {
	return s.Snapshot != nil && api.NormalizeTicker(s.Snapshot.Ticker) == s.Ticker
}
