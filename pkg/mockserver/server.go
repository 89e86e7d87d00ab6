package mockserver

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/stockchat/pkg/api"
	"github.com/go-go-golems/stockchat/pkg/sse"
)

// Server is an in-process stand-in for the analysis backend. It speaks the
// same wire shapes on the same routes.
type Server struct {
	delay  time.Duration
	script Script
	now    func() time.Time
	mux    *http.ServeMux
}

type Option func(*Server)

// WithDelay pauses between stream frames.
func WithDelay(d time.Duration) Option {
	return func(s *Server) {
		s.delay = d
	}
}

func WithScript(script Script) Option {
	return func(s *Server) {
		s.script = script
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

func New(opts ...Option) *Server {
	s := &Server{
		script: DefaultScript(3),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat/stream", s.handleStream)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/stock/{ticker}", s.handleStock)
	s.mux = mux
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Serve runs the server on ln until ctx is cancelled, then shuts it down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("component", "mockserver").Str("addr", ln.Addr().String()).Msg("mock backend listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "serve")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", addr)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var req api.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusUnprocessableEntity)
		return
	}

	sw := sse.NewWriter(w)
	if sw == nil {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	logger := log.With().Str("component", "mockserver").Str("thread_id", req.ThreadID).Logger()
	logger.Debug().Str("message", req.Message).Msg("stream turn started")

	for _, f := range s.script(req) {
		if s.delay > 0 {
			select {
			case <-r.Context().Done():
				logger.Debug().Msg("client went away")
				return
			case <-time.After(s.delay):
			}
		}
		var err error
		if f.Event == "" {
			err = sw.SendData(f.Data)
		} else {
			err = sw.SendEvent(string(f.Event), f.Data)
		}
		if err != nil {
			logger.Debug().Err(err).Msg("stream write failed")
			return
		}
	}
	logger.Debug().Msg("stream turn finished")
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req api.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, api.ChatResponse{Reply: Reply(s.script(req)), ThreadID: req.ThreadID})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, api.Health{Status: "healthy", GraphReady: true})
}

var (
	validTicker = regexp.MustCompile(`^[A-Z][A-Z.\-]{0,9}$`)
	periodDays  = map[string]int{
		"1d": 1, "5d": 5, "1mo": 21, "3mo": 63, "6mo": 126, "1y": 252, "2y": 504, "5y": 1260, "max": 2520,
	}
)

func (s *Server) handleStock(w http.ResponseWriter, r *http.Request) {
	ticker := api.NormalizeTicker(r.PathValue("ticker"))
	period := r.URL.Query().Get("period")
	if period == "" {
		period = api.DefaultPeriod
	}
	if !api.ValidPeriod(period) {
		http.Error(w, "invalid period", http.StatusUnprocessableEntity)
		return
	}
	if !validTicker.MatchString(ticker) {
		writeJSON(w, map[string]string{"error": fmt.Sprintf("No data found for ticker '%s'", r.PathValue("ticker")), "ticker": r.PathValue("ticker")})
		return
	}
	writeJSON(w, SyntheticSnapshot(ticker, periodDays[period], s.now()))
}

// SyntheticSnapshot builds a deterministic random walk for ticker ending at
// end. The same ticker always yields the same series.
func SyntheticSnapshot(ticker string, days int, end time.Time) api.Snapshot {
	h := fnv.New64a()
	_, _ = h.Write([]byte(ticker))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	price := 20 + rng.Float64()*400
	history := make([]api.HistoryPoint, 0, days)
	day := end.AddDate(0, 0, -days)
	for i := 0; i < days; i++ {
		day = day.AddDate(0, 0, 1)
		open := price
		price = math.Max(1, price*(1+rng.NormFloat64()*0.018))
		high := math.Max(open, price) * (1 + rng.Float64()*0.01)
		low := math.Min(open, price) * (1 - rng.Float64()*0.01)
		history = append(history, api.HistoryPoint{
			Time:   day.Format("2006-01-02"),
			Open:   round2(open),
			High:   round2(high),
			Low:    round2(low),
			Close:  round2(price),
			Volume: int64(5e6 + rng.Float64()*5e7),
		})
	}

	snap := api.Snapshot{
		Ticker:  ticker,
		Name:    ticker + " Holdings Inc.",
		Sector:  "Technology",
		History: history,
	}
	if n := len(history); n > 0 {
		last := history[n-1]
		prev := last.Close
		if n > 1 {
			prev = history[n-2].Close
		}
		snap.Price = last.Close
		snap.Change = round2(last.Close - prev)
		if prev != 0 {
			snap.ChangePct = round2(snap.Change / prev * 100)
		}
		snap.Volume = last.Volume

		hi, lo := last.High, last.Low
		for _, p := range history {
			hi, lo = math.Max(hi, p.High), math.Min(lo, p.Low)
		}
		marketCap := last.Close * (1e8 + rng.Float64()*3e10)
		pe := 8 + rng.Float64()*50
		snap.MarketCap = &marketCap
		snap.PERatio = &pe
		snap.FiftyTwoWeekHigh = &hi
		snap.FiftyTwoWeekLow = &lo
	}
	return snap
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Str("component", "mockserver").Msg("failed to write response")
	}
}
