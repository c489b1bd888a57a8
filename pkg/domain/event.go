package domain

// EventTimeout is the event type that signals a session timeout.
const EventTimeout = "dialog_timeout"

// EventText is the event type of a plain user message.
const EventText = "text"

// Event is an inbound message that triggers a turn.
type Event struct {
	Type    string         `json:"type"`
	Text    string         `json:"text,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// IsTimeout reports whether the event signals a session timeout.
func (e Event) IsTimeout() bool {
	return e.Type == EventTimeout
}

// Message is a rendered output directive produced by a "say"/"render" instruction.
type Message struct {
	// Type is the template or content type, e.g. "#text" or "#!trivia-12342".
	Type string `json:"type"`
	// Value carries any additional text or parameters for the template.
	Value string `json:"value,omitempty"`
}
