package ui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/stockchat/pkg/transcript"
)

const (
	Greeting   = `Hello! I'm your AI Stock Analyst. Ask me anything, try "Analyze AAPL".`
	Processing = "Processing..."
)

// Renderer turns transcript entries into terminal text. Agent messages are
// rendered as markdown when a markdown renderer is available.
type Renderer struct {
	width int
	md    *glamour.TermRenderer
	cache map[string]cachedRender
}

type cachedRender struct {
	content string
	out     string
}

// NewRenderer builds a renderer wrapping at width. With markdown false the
// content is printed verbatim (used for pipes and tests).
func NewRenderer(width int, markdown bool) *Renderer {
	r := &Renderer{width: width, cache: map[string]cachedRender{}}
	if !markdown {
		return r
	}
	style := "light"
	if termenv.HasDarkBackground() {
		style = "dark"
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		log.Warn().Err(err).Str("component", "ui").Msg("markdown renderer unavailable, falling back to plain text")
		return r
	}
	r.md = md
	return r
}

func (r *Renderer) Width() int { return r.width }

// Markdown renders s, or returns it unchanged without a markdown renderer.
func (r *Renderer) Markdown(s string) string {
	if r.md == nil {
		return s
	}
	out, err := r.md.Render(s)
	if err != nil {
		return s
	}
	return strings.Trim(out, "\n")
}

// Message renders one entry. spinner is drawn in front of steps.
func (r *Renderer) Message(m transcript.ChatMessage, spinner string) string {
	switch m.Role {
	case transcript.RoleUser:
		return userLabelStyle.Render("You") + "\n" + m.Content
	case transcript.RoleStep:
		return spinner + " " + stepStyle.Render(transcript.StepLabel(m.AgentName))
	}

	name := m.AgentName
	if name == "" {
		name = "Agent"
	}
	body := m.Content
	if strings.HasPrefix(body, "⚠️ ") {
		body = errorStyle.Render(body)
	} else {
		body = r.agentBody(m)
	}
	return agentLabelStyle.Render(name) + "\n" + body
}

func (r *Renderer) agentBody(m transcript.ChatMessage) string {
	if c, ok := r.cache[m.ID]; ok && c.content == m.Content {
		return c.out
	}
	out := r.Markdown(m.Content)
	r.cache[m.ID] = cachedRender{content: m.Content, out: out}
	return out
}

// Transcript renders the chat panel body: a greeting when empty, every
// entry in order, and a trailing Processing indicator while a turn streams
// and no step is showing at the end.
func (r *Renderer) Transcript(t transcript.Transcript, streaming bool, spinner string) string {
	var parts []string
	if len(t) == 0 {
		parts = append(parts, agentLabelStyle.Render("Agent")+"\n"+Greeting)
	}
	for _, m := range t {
		parts = append(parts, r.Message(m, spinner))
	}
	if ShowProcessing(t, streaming) {
		parts = append(parts, spinner+" "+stepStyle.Render(Processing))
	}
	return strings.Join(parts, "\n\n")
}

// ShowProcessing reports whether the Processing indicator is shown.
func ShowProcessing(t transcript.Transcript, streaming bool) bool {
	if !streaming {
		return false
	}
	last, ok := t.Last()
	return !ok || last.Role != transcript.RoleStep
}
