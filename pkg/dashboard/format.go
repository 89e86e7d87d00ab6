package dashboard

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/go-go-golems/stockchat/pkg/api"
)

// Missing is shown for values the data source did not provide.
const Missing = "—"

type Sentiment string

const (
	SentimentNone    Sentiment = ""
	SentimentBullish Sentiment = "bullish"
	SentimentBearish Sentiment = "bearish"
	SentimentNeutral Sentiment = "neutral"
)

// StatCard is one labelled figure under the chart.
type StatCard struct {
	Label     string
	Value     string
	Sentiment Sentiment
}

// present treats zero like null: the quote source uses both for "unknown".
func present(v *float64) bool {
	return v != nil && *v != 0 && !math.IsNaN(*v)
}

func FormatPE(pe *float64) string {
	if !present(pe) {
		return Missing
	}
	return fmt.Sprintf("%.1f", *pe)
}

// PESentiment is bullish under 25 and bearish over 40.
func PESentiment(pe *float64) Sentiment {
	switch {
	case !present(pe):
		return SentimentNone
	case *pe < 25:
		return SentimentBullish
	case *pe > 40:
		return SentimentBearish
	default:
		return SentimentNeutral
	}
}

func FormatMarketCap(marketCap *float64) string {
	if !present(marketCap) {
		return Missing
	}
	c := *marketCap
	switch {
	case c >= 1e12:
		return fmt.Sprintf("$%.1fT", c/1e12)
	case c >= 1e9:
		return fmt.Sprintf("$%.1fB", c/1e9)
	case c >= 1e6:
		return fmt.Sprintf("$%.0fM", c/1e6)
	}
	return "$" + humanize.CommafWithDigits(c, 3)
}

func FormatDollars(v *float64) string {
	if !present(v) {
		return Missing
	}
	return fmt.Sprintf("$%.2f", *v)
}

// FormatChange renders "+1.23 (+0.45%)".
func FormatChange(change, pct float64) string {
	return fmt.Sprintf("%+.2f (%+.2f%%)", change, pct)
}

func FormatVolume(v int64) string {
	return humanize.Comma(v)
}

// Stats returns the stat cards for a snapshot, in display order.
func Stats(s *api.Snapshot) []StatCard {
	if s == nil {
		return []StatCard{
			{Label: "P/E Ratio", Value: Missing},
			{Label: "Market Cap", Value: Missing},
			{Label: "52W High", Value: Missing},
			{Label: "52W Low", Value: Missing},
		}
	}
	pe := PESentiment(s.PERatio)
	if pe == SentimentNeutral {
		pe = SentimentNone
	}
	return []StatCard{
		{Label: "P/E Ratio", Value: FormatPE(s.PERatio), Sentiment: pe},
		{Label: "Market Cap", Value: FormatMarketCap(s.MarketCap)},
		{Label: "52W High", Value: FormatDollars(s.FiftyTwoWeekHigh)},
		{Label: "52W Low", Value: FormatDollars(s.FiftyTwoWeekLow)},
	}
}

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Sparkline draws values as a row of block characters, resampled to width.
func Sparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}
	if len(values) > width {
		values = resample(values, width)
	}

	lo, hi := values[0], values[0]
	for _, v := range values {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}

	var b strings.Builder
	top := len(sparkBlocks) - 1
	for _, v := range values {
		idx := top / 2
		if hi > lo {
			idx = int(math.Round((v - lo) / (hi - lo) * float64(top)))
		}
		b.WriteRune(sparkBlocks[idx])
	}
	return b.String()
}

// resample averages values into n buckets.
func resample(values []float64, n int) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		start := i * len(values) / n
		end := (i + 1) * len(values) / n
		if end <= start {
			end = start + 1
		}
		sum := 0.0
		for _, v := range values[start:end] {
			sum += v
		}
		out[i] = sum / float64(end-start)
	}
	return out
}
