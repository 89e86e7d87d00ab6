package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/go-go-golems/stockchat/pkg/dashboard"
)

func headerView(ticker, search string, width int) string {
	title := "Stock Analyzer"
	if ticker != "" {
		title = "Analyzing " + ticker
	}
	left := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(title),
		subtitleStyle.Render("AI-powered multi-agent analysis"),
	)
	gap := width - lipgloss.Width(left) - lipgloss.Width(search)
	if gap < 2 {
		return lipgloss.JoinVertical(lipgloss.Left, left, search)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, left, strings.Repeat(" ", gap), search)
}

// chartView shows price, change and a sparkline of closes, or a loading
// placeholder until a snapshot for the ticker exists.
func chartView(s dashboard.State, spinner string, width int) string {
	inner := width - 4
	if inner < 10 {
		inner = 10
	}
	if s.Snapshot == nil {
		line := spinner + " " + mutedStyle.Render("Loading "+s.Ticker+"...")
		if s.Err != nil {
			line = errorStyle.Render(s.Err.Error())
		}
		return panelStyle.Width(inner).Render(line)
	}

	snap := s.Snapshot
	change := dashboard.FormatChange(snap.Change, snap.ChangePct)
	if snap.Change >= 0 {
		change = upStyle.Render(change)
	} else {
		change = downStyle.Render(change)
	}
	name := snap.Name
	if name == "" {
		name = snap.Ticker
	}
	lines := []string{
		sectionStyle.Render(snap.Ticker) + "  " + mutedStyle.Render(name),
		fmt.Sprintf("$%.2f  %s  vol %s", snap.Price, change, dashboard.FormatVolume(snap.Volume)),
		dashboard.Sparkline(snap.Closes(), inner),
	}

	var status []string
	if s.Loading {
		status = append(status, spinner+" refreshing")
	}
	if !s.Showing() {
		status = append(status, "showing "+snap.Ticker)
	}
	if s.Err != nil {
		status = append(status, errorStyle.Render(s.Err.Error()))
	}
	if !s.UpdatedAt.IsZero() {
		status = append(status, "updated "+humanize.Time(s.UpdatedAt))
	}
	if len(status) > 0 {
		lines = append(lines, mutedStyle.Render(strings.Join(status, " · ")))
	}
	return panelStyle.Width(inner).Render(strings.Join(lines, "\n"))
}

func cardsView(cards []dashboard.StatCard, loading bool, width int) string {
	if len(cards) == 0 {
		return ""
	}
	w := width/len(cards) - 4
	if w < 12 {
		w = 12
	}
	rendered := make([]string, 0, len(cards))
	for _, c := range cards {
		value := c.Value
		if loading {
			value = "…"
		}
		body := cardLabelStyle.Render(c.Label) + "\n" + cardValueStyle.Render(value)
		switch c.Sentiment {
		case dashboard.SentimentBullish:
			body += " " + bullishStyle.Render("▲ BULLISH")
		case dashboard.SentimentBearish:
			body += " " + bearishStyle.Render("▼ BEARISH")
		}
		rendered = append(rendered, cardStyle.Width(w).Render(body))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}
