package events

// Label is the advisory name carried on "event:" lines. Classification never
// depends on it; it is kept for logging and for the mirror envelope.
type Label string

const (
	LabelAgentStart  Label = "agent_start"
	LabelAgentOutput Label = "agent_output"
	LabelError       Label = "error"
	LabelFinish      Label = "finish"
)

// Event is one classified stream event: AgentStart, AgentOutput or Error.
type Event interface {
	Label() Label
	isEvent()
}

// AgentStart announces that a named agent began working on the turn.
type AgentStart struct {
	Node string `json:"node"`
}

// AgentOutput carries a chunk of text produced by a named agent.
type AgentOutput struct {
	Node string `json:"node,omitempty"`
	Text string `json:"text"`
}

// Error is an upstream error reported inside the stream. It does not end the
// stream.
type Error struct {
	Message string `json:"message"`
}

func (AgentStart) Label() Label  { return LabelAgentStart }
func (AgentOutput) Label() Label { return LabelAgentOutput }
func (Error) Label() Label       { return LabelError }

func (AgentStart) isEvent()  {}
func (AgentOutput) isEvent() {}
func (Error) isEvent()       {}

var (
	_ Event = AgentStart{}
	_ Event = AgentOutput{}
	_ Event = Error{}
)
