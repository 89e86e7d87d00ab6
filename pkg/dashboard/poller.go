package dashboard

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/stockchat/pkg/api"
)

// Fetcher is the quote source; *api.Client implements it.
type Fetcher interface {
	Stock(ctx context.Context, ticker, period string) (*api.Snapshot, error)
}

// Poller fetches the active ticker once on start, on every tick, and
// whenever the ticker changes. Failed fetches are reported, not retried.
type Poller struct {
	fetcher  Fetcher
	period   string
	interval time.Duration
	tickers  chan string
	now      func() time.Time
}

func NewPoller(f Fetcher, period string, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Poller{
		fetcher:  f,
		period:   period,
		interval: interval,
		tickers:  make(chan string, 1),
		now:      time.Now,
	}
}

// SetTicker switches the polled ticker. Only the latest pending switch is
// kept.
func (p *Poller) SetTicker(ticker string) {
	for {
		select {
		case p.tickers <- ticker:
			return
		default:
		}
		select {
		case <-p.tickers:
		default:
		}
	}
}

// Run polls until ctx is done. begin is called before each fetch and
// deliver with its result; both run on the poller goroutine.
func (p *Poller) Run(ctx context.Context, ticker string, begin func(ticker string), deliver func(Result)) error {
	t := time.NewTicker(p.interval)
	defer t.Stop()

	ticker = api.NormalizeTicker(ticker)
	for {
		if begin != nil {
			begin(ticker)
		}
		r := p.fetch(ctx, ticker)
		if ctx.Err() != nil {
			return nil
		}
		deliver(r)

		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		case next := <-p.tickers:
			ticker = api.NormalizeTicker(next)
			t.Reset(p.interval)
		}
	}
}

func (p *Poller) fetch(ctx context.Context, ticker string) Result {
	snap, err := p.fetcher.Stock(ctx, ticker, p.period)
	if err != nil {
		log.Debug().Err(err).Str("component", "dashboard").Str("ticker", ticker).Msg("quote fetch failed")
	}
	return Result{Ticker: ticker, Snapshot: snap, Err: err, At: p.now()}
}
