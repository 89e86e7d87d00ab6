package transcript

import (
	"github.com/go-go-golems/stockchat/pkg/events"
)

// Transcript is the ordered list of chat messages; index order is render
// order. Entries are only ever appended, grown in place, or (for steps)
// removed.
type Transcript []ChatMessage

// Reduce applies one classified event and returns the next transcript. It
// never modifies t. Unknown events leave the transcript unchanged.
func Reduce(t Transcript, ev events.Event) Transcript {
	switch e := ev.(type) {
	case events.AgentStart:
		return t.with(newMessage(RoleStep, StepLabel(e.Node), e.Node))
	case events.AgentOutput:
		return applyOutput(t, e)
	case events.Error:
		return t.with(newMessage(RoleAgent, ErrorText(e.Message), ""))
	}
	return t
}

// AppendUser starts a new turn with the literal text.
func AppendUser(t Transcript, text string) Transcript {
	return t.with(newMessage(RoleUser, text, ""))
}

// AppendConnectionError records a transport failure that ended a turn.
func AppendConnectionError(t Transcript, err error) Transcript {
	return t.with(newMessage(RoleAgent, ConnectionErrorText(err), ""))
}

// applyOutput grows the agent's message of the current turn, or retracts the
// agent's steps and opens a new message for it.
func applyOutput(t Transcript, e events.AgentOutput) Transcript {
	if i := t.ActiveAgentIndex(e.Node); i >= 0 {
		out := t.clone(0)
		out[i].Content += e.Text
		return out
	}

	out := make(Transcript, 0, len(t)+1)
	for _, m := range t {
		if m.Role == RoleStep && m.AgentName == e.Node {
			continue
		}
		out = append(out, m)
	}
	return append(out, newMessage(RoleAgent, e.Text, e.Node))
}

// ActiveAgentIndex returns the index of the agent message named agentName in
// the current turn, or -1. The scan walks backward and stops at the most
// recent user message, so output never merges into a previous turn.
func (t Transcript) ActiveAgentIndex(agentName string) int {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Role == RoleUser {
			return -1
		}
		if t[i].Role == RoleAgent && t[i].AgentName == agentName {
			return i
		}
	}
	return -1
}

// CurrentTurn returns the entries after the most recent user message,
// including that message. Before the first user message it returns everything.
func (t Transcript) CurrentTurn() Transcript {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Role == RoleUser {
			return t[i:]
		}
	}
	return t
}

// Turns groups the transcript by user message. Entries before the first user
// message form a turn of their own.
func (t Transcript) Turns() []Transcript {
	var turns []Transcript
	start := 0
	for i, m := range t {
		if m.Role == RoleUser && i > start {
			turns = append(turns, t[start:i])
			start = i
		}
	}
	if start < len(t) {
		turns = append(turns, t[start:])
	}
	return turns
}

func (t Transcript) Last() (ChatMessage, bool) {
	if len(t) == 0 {
		return ChatMessage{}, false
	}
	return t[len(t)-1], true
}

// LastAgentMessage returns the most recent agent message with content.
func (t Transcript) LastAgentMessage() (ChatMessage, bool) {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Role == RoleAgent && t[i].Content != "" {
			return t[i], true
		}
	}
	return ChatMessage{}, false
}

// ActiveSteps returns the step placeholders still in the transcript.
func (t Transcript) ActiveSteps() []ChatMessage {
	var steps []ChatMessage
	for _, m := range t {
		if m.Role == RoleStep {
			steps = append(steps, m)
		}
	}
	return steps
}

// Clone returns a copy that shares no backing array with t.
func (t Transcript) Clone() Transcript {
	return t.clone(0)
}

func (t Transcript) clone(extra int) Transcript {
	out := make(Transcript, len(t), len(t)+extra)
	copy(out, t)
	return out
}

func (t Transcript) with(m ChatMessage) Transcript {
	return append(t.clone(1), m)
}
