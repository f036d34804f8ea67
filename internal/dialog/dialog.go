// Package dialog holds the domain model for agent-raised decision points:
// the pending request, the human resolution, and the history record kept per
// workspace.
package dialog

import "time"

// Attachment kinds accepted alongside a resolution.
const (
	AttachmentImage = "image"
	AttachmentFile  = "file"
	AttachmentCode  = "code"
)

// Request is one decision point raised by the agent. It is immutable after
// creation; resolution state lives in the registry, not on the request.
type Request struct {
	ID        string    `json:"id"`
	Reason    string    `json:"reason"`
	Workspace string    `json:"workspace"`
	// SequenceNumber is the 1-based ordinal of this request within its
	// workspace, assigned before the request is exposed to any consumer.
	SequenceNumber int64     `json:"sequenceNumber"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Attachment is a named piece of supplementary content submitted with a
// resolution. Order across attachments is significant.
type Attachment struct {
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	Content  string `json:"content"`
	MimeType string `json:"mimeType,omitempty"`
}

// Resolution is the human decision for one request.
type Resolution struct {
	ShouldContinue bool         `json:"shouldContinue"`
	UserInput      string       `json:"userInput"`
	Attachments    []Attachment `json:"attachments,omitempty"`
}

// HistoryEntry is the immutable record appended when a request resolves.
type HistoryEntry struct {
	Timestamp      time.Time `json:"timestamp"`
	Reason         string    `json:"reason"`
	UserInput      string    `json:"userInput"`
	ShouldContinue bool      `json:"shouldContinue"`
}
