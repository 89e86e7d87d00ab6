package ui

import (
	"context"
	"strings"

	"github.com/atotto/clipboard"
	bspinner "github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/stockchat/pkg/api"
	"github.com/go-go-golems/stockchat/pkg/chat"
	"github.com/go-go-golems/stockchat/pkg/dashboard"
	"github.com/go-go-golems/stockchat/pkg/transcript"
)

// Chat is the part of *chat.Controller the UI drives.
type Chat interface {
	SendMessage(ctx context.Context, text string) error
	Cancel()
}

// TickerSwitcher is the part of *dashboard.Poller the UI drives.
type TickerSwitcher interface {
	SetTicker(ticker string)
}

// Messages the host feeds into the program through the events channel.
type (
	ChatUpdateMsg  chat.Update
	FetchBeginMsg  struct{ Ticker string }
	FetchResultMsg dashboard.Result
)

type turnDoneMsg struct{ err error }

type statusMsg string

type focus int

const (
	focusChat focus = iota
	focusSearch
)

type AppModel struct {
	ctx     context.Context
	chat    Chat
	tickers TickerSwitcher
	events  <-chan tea.Msg
	copy    func(string) error

	dash      dashboard.State
	messages  transcript.Transcript
	streaming bool
	status    string

	focus    focus
	input    textinput.Model
	search   textinput.Model
	spinner  bspinner.Model
	viewport viewport.Model
	renderer *Renderer
	markdown bool

	width, height int
}

type Option func(*AppModel)

// WithClipboard replaces the clipboard writer.
func WithClipboard(f func(string) error) Option {
	return func(m *AppModel) {
		m.copy = f
	}
}

// WithMarkdown toggles markdown rendering of agent messages.
func WithMarkdown(on bool) Option {
	return func(m *AppModel) {
		m.markdown = on
	}
}

func NewAppModel(ctx context.Context, c Chat, tickers TickerSwitcher, events <-chan tea.Msg, ticker string, opts ...Option) AppModel {
	sp := bspinner.New()
	sp.Spinner = bspinner.Line
	sp.Style = spinnerStyle

	in := textinput.New()
	in.Placeholder = "Ask about any stock..."
	in.Prompt = "› "
	in.Focus()

	search := textinput.New()
	search.Placeholder = "Search ticker (e.g. AAPL)"
	search.Prompt = "⌕ "
	search.CharLimit = 10

	m := AppModel{
		ctx:      ctx,
		chat:     c,
		tickers:  tickers,
		events:   events,
		copy:     clipboard.WriteAll,
		dash:     dashboard.NewState(ticker),
		input:    in,
		search:   search,
		spinner:  sp,
		viewport: viewport.New(80, 10),
		markdown: true,
		width:    80,
		height:   24,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.renderer = NewRenderer(m.width-4, m.markdown)
	m.refreshViewport()
	return m
}

func waitForUIEvent(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return nil
		}
		return e
	}
}

func (m AppModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, textinput.Blink, waitForUIEvent(m.events))
}

func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch ev := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = ev.Width, ev.Height
		m.renderer = NewRenderer(ev.Width-4, m.markdown)
		m.layout()
		m.refreshViewport()
		return m, nil

	case ChatUpdateMsg:
		m.messages = ev.Messages
		m.setStreaming(ev.Streaming)
		m.refreshViewport()
		return m, waitForUIEvent(m.events)

	case FetchBeginMsg:
		m.dash = m.dash.Begin(ev.Ticker)
		return m, waitForUIEvent(m.events)

	case FetchResultMsg:
		m.dash = m.dash.Apply(dashboard.Result(ev))
		return m, waitForUIEvent(m.events)

	case turnDoneMsg:
		if ev.err != nil && !errors.Is(ev.err, chat.ErrTurnInFlight) {
			log.Debug().Err(ev.err).Str("component", "ui").Msg("turn ended with error")
		}
		return m, nil

	case statusMsg:
		m.status = string(ev)
		return m, nil

	case tea.KeyMsg:
		if model, cmd, handled := m.handleKey(ev); handled {
			return model, cmd
		}
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	cmds = append(cmds, cmd)
	if m.focus == focusSearch {
		m.search, cmd = m.search.Update(msg)
		m.search.SetValue(strings.ToUpper(m.search.Value()))
	} else if !m.streaming {
		m.input, cmd = m.input.Update(msg)
	}
	cmds = append(cmds, cmd)
	if _, ok := msg.(tea.KeyMsg); !ok {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	if _, ok := msg.(bspinner.TickMsg); ok && (m.streaming || m.dash.Loading) {
		m.refreshViewport()
	}
	return m, tea.Batch(cmds...)
}

func (m AppModel) handleKey(k tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	switch k.String() {
	case "ctrl+c":
		m.chat.Cancel()
		return m, tea.Quit, true

	case "esc":
		if m.focus == focusSearch {
			m.focus = focusChat
			m.search.Blur()
			m.search.Reset()
			return m, m.focusInput(), true
		}
		if m.streaming {
			m.chat.Cancel()
			m.status = "Cancelled"
		}
		return m, nil, true

	case "ctrl+t":
		m.focus = focusSearch
		m.input.Blur()
		m.search.SetValue("")
		return m, m.search.Focus(), true

	case "ctrl+y":
		last, ok := m.messages.LastAgentMessage()
		if !ok {
			m.status = "Nothing to copy yet"
			return m, nil, true
		}
		copyFn, text := m.copy, last.Content
		return m, func() tea.Msg {
			if err := copyFn(text); err != nil {
				return statusMsg("Copy failed: " + err.Error())
			}
			return statusMsg("Copied last reply")
		}, true

	case "pgup", "pgdown", "up", "down":
		if m.focus == focusChat {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(k)
			return m, cmd, true
		}

	case "enter":
		if m.focus == focusSearch {
			return m.submitSearch()
		}
		return m.submitChat()
	}
	return m, nil, false
}

func (m AppModel) submitSearch() (tea.Model, tea.Cmd, bool) {
	ticker := api.NormalizeTicker(m.search.Value())
	m.focus = focusChat
	m.search.Blur()
	m.search.Reset()
	if ticker != "" && ticker != m.dash.Ticker {
		m.dash = m.dash.Begin(ticker)
		if m.tickers != nil {
			m.tickers.SetTicker(ticker)
		}
	}
	return m, m.focusInput(), true
}

func (m AppModel) submitChat() (tea.Model, tea.Cmd, bool) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.streaming {
		return m, nil, true
	}
	m.input.Reset()
	m.status = ""
	m.setStreaming(true)

	ctx, c := m.ctx, m.chat
	return m, func() tea.Msg {
		return turnDoneMsg{err: c.SendMessage(ctx, text)}
	}, true
}

// setStreaming disables the input while a turn is in flight.
func (m *AppModel) setStreaming(on bool) {
	m.streaming = on
	if on {
		m.input.Placeholder = "Agents are working..."
		m.input.Blur()
		return
	}
	m.input.Placeholder = "Ask about any stock..."
	if m.focus == focusChat {
		m.input.Focus()
	}
}

func (m *AppModel) focusInput() tea.Cmd {
	if m.streaming {
		return nil
	}
	return m.input.Focus()
}

func (m *AppModel) layout() {
	// header 2, chart panel 6, cards 4, input 1, status 1, borders
	reserved := 2 + 6 + 4 + 1 + 1 + 4
	h := m.height - reserved
	if h < 3 {
		h = 3
	}
	m.viewport.Width = m.width - 4
	m.viewport.Height = h
}

func (m *AppModel) refreshViewport() {
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderer.Transcript(m.messages, m.streaming, m.spinner.View()))
	if atBottom || m.streaming {
		m.viewport.GotoBottom()
	}
}

func (m AppModel) View() string {
	search := mutedStyle.Render("ctrl+t search")
	if m.focus == focusSearch {
		search = m.search.View()
	}

	chatPanel := panelStyle.Width(m.width - 4).Render(
		sectionStyle.Render("● Agentic Chat") + "\n" + m.viewport.View(),
	)

	help := "enter send · esc cancel · ctrl+y copy reply · ctrl+c quit"
	if m.status != "" {
		help = m.status + " · " + help
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		headerView(m.dash.Ticker, search, m.width),
		chartView(m.dash, m.spinner.View(), m.width),
		cardsView(dashboard.Stats(m.cardSnapshot()), m.cardSnapshot() == nil, m.width),
		chatPanel,
		m.input.View(),
		mutedStyle.Render(help),
	)
}

// cardSnapshot is the snapshot the stat cards show: none while the previous
// ticker's snapshot is still on screen.
func (m AppModel) cardSnapshot() *api.Snapshot {
	if !m.dash.Showing() {
		return nil
	}
	return m.dash.Snapshot
}

// Messages returns the transcript the model last received.
func (m AppModel) Messages() transcript.Transcript { return m.messages }

func (m AppModel) Dashboard() dashboard.State { return m.dash }

func (m AppModel) Streaming() bool { return m.streaming }
