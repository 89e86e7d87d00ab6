package transcript

import (
	"fmt"
	"sync/atomic"
	"time"
)

type Role string

const (
	// RoleUser is human input. It is never modified once appended.
	RoleUser Role = "user"
	// RoleAgent is agent output; its content only grows while its turn is active.
	RoleAgent Role = "agent"
	// RoleStep is an "agent is working" placeholder, retracted when the agent's
	// first output arrives.
	RoleStep Role = "step"
)

// ChatMessage is one transcript entry.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	AgentName string    `json:"agent_name,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

var idCounter atomic.Uint64

// NextID returns a process-unique, creation-ordered message id.
func NextID() string {
	return fmt.Sprintf("msg-%d-%d", idCounter.Add(1), time.Now().UnixMilli())
}

func newMessage(role Role, content, agentName string) ChatMessage {
	return ChatMessage{
		ID:        NextID(),
		Role:      role,
		Content:   content,
		AgentName: agentName,
		Timestamp: time.Now(),
	}
}

func StepLabel(agentName string) string {
	if agentName == "" {
		agentName = "Agent"
	}
	return agentName + " is analyzing..."
}

func ErrorText(message string) string {
	return "⚠️ Error: " + message
}

func ConnectionErrorText(err error) string {
	return "⚠️ Connection error: " + err.Error()
}
