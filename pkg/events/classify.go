package events

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

const (
	eventField = "event:"
	dataField  = "data:"
)

// ParseLabel returns the label of an "event:" line.
func ParseLabel(line string) (Label, bool) {
	rest, ok := strings.CutPrefix(line, eventField)
	if !ok {
		return "", false
	}
	return Label(strings.TrimSpace(rest)), true
}

// ClassifyLine classifies one complete line of the stream. Only "data:" lines
// can produce an event; label lines, comments and anything else are ignored.
func ClassifyLine(line string) (Event, bool) {
	rest, ok := strings.CutPrefix(line, dataField)
	if !ok {
		return nil, false
	}
	payload := strings.TrimSpace(rest)
	if payload == "" {
		return nil, false
	}
	return Classify([]byte(payload))
}

// Classify builds an Event from a JSON payload by inspecting which fields it
// carries, in this order:
//
//   - "node" without usable "content": AgentStart
//   - usable "content": AgentOutput
//   - "message": Error
//
// Anything else, including payloads that are not JSON objects, yields no event.
func Classify(payload []byte) (Event, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, false
	}

	node, hasNode := nodeName(fields["node"])
	text, hasContent := contentText(fields["content"])
	switch {
	case hasNode && !hasContent:
		return AgentStart{Node: node}, true
	case hasContent:
		return AgentOutput{Node: node, Text: text}, true
	}

	if msg, ok := messageText(fields["message"]); ok {
		return Error{Message: msg}, true
	}
	return nil, false
}

func nodeName(raw json.RawMessage) (string, bool) {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil || s == "" {
		return "", false
	}
	return s, true
}

// contentText resolves the effective text of a "content" field: strings as-is,
// objects with a string "text" field to that text, any other object or array
// to its compact JSON form.
func contentText(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			return "", false
		}
		return s, true
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", false
		}
		var text string
		if t := bytes.TrimSpace(obj["text"]); len(t) > 0 && t[0] == '"' && json.Unmarshal(t, &text) == nil {
			return text, true
		}
		return compact(raw), true
	case '[':
		return compact(raw), true
	}
	return "", false
}

func messageText(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	switch string(raw) {
	case "null", "false", `""`:
		return "", false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, s != ""
	}
	if f, err := strconv.ParseFloat(string(raw), 64); err == nil && f == 0 {
		return "", false
	}
	return compact(raw), true
}

func compact(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
