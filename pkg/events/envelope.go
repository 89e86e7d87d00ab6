package events

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Envelope is the flat, explicitly tagged form of an Event used when events
// leave the process (the mirror bus). Unlike the inbound wire format it always
// carries its type.
type Envelope struct {
	Type     Label  `json:"type"`
	ThreadID string `json:"thread_id,omitempty"`
	Seq      uint64 `json:"seq"`
	Node     string `json:"node,omitempty"`
	Text     string `json:"text,omitempty"`
	Message  string `json:"message,omitempty"`
}

func NewEnvelope(threadID string, seq uint64, ev Event) Envelope {
	env := Envelope{ThreadID: threadID, Seq: seq}
	switch e := ev.(type) {
	case AgentStart:
		env.Type = LabelAgentStart
		env.Node = e.Node
	case AgentOutput:
		env.Type = LabelAgentOutput
		env.Node = e.Node
		env.Text = e.Text
	case Error:
		env.Type = LabelError
		env.Message = e.Message
	}
	return env
}

// Event converts the envelope back into an Event.
func (e Envelope) Event() (Event, bool) {
	switch e.Type {
	case LabelAgentStart:
		return AgentStart{Node: e.Node}, true
	case LabelAgentOutput:
		return AgentOutput{Node: e.Node, Text: e.Text}, true
	case LabelError:
		return Error{Message: e.Message}, true
	}
	return nil, false
}

func MarshalEnvelope(env Envelope) ([]byte, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return nil, errors.Wrap(err, "marshal event envelope")
	}
	return b, nil
}

func UnmarshalEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, errors.Wrap(err, "unmarshal event envelope")
	}
	if env.Type == "" {
		return Envelope{}, errors.New("event envelope has no type")
	}
	return env, nil
}
