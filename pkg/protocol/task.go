package protocol

// TaskState enumerates the lifecycle states of a task.
type TaskState string

const (
	TaskSubmitted TaskState = "submitted"
	TaskCompleted TaskState = "completed"
)

// TaskStatus wraps the current state of a task.
type TaskStatus struct {
	State TaskState `json:"state"`
}

// TextPart is a single text fragment of a message.
type TextPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewTextPart creates a TextPart with the conventional type tag.
func NewTextPart(text string) TextPart {
	return TextPart{Type: "text", Text: text}
}

// Message is one turn in a task's history. Role is "user" for inbound
// requests and "agent" for replies. Messages are immutable once appended.
type Message struct {
	Role  string     `json:"role"`
	Parts []TextPart `json:"parts"`
}

// Text returns the text of the first part, or "" if the message is empty.
func (m Message) Text() string {
	if len(m.Parts) == 0 {
		return ""
	}
	return m.Parts[0].Text
}

// Task is one request/response unit of work tracked by id.
// Its history grows monotonically and is never reordered.
type Task struct {
	ID      string     `json:"id"`
	Status  TaskStatus `json:"status"`
	History []Message  `json:"history"`
}

// LastReply returns the text of the most recent history entry.
// A freshly submitted task whose only entry is the user message returns "".
func (t *Task) LastReply() string {
	if t == nil || len(t.History) < 2 {
		return ""
	}
	return t.History[len(t.History)-1].Text()
}
