package channels

import (
	"context"
)

// Channel is a remote surface that mirrors pending dialogs to humans who are
// not at the terminal and feeds their decisions back into the registry.
type Channel interface {
	// Name returns the unique name of the channel (e.g., "telegram").
	Name() string

	// Start begins serving the channel. It blocks until the context is
	// canceled or a fatal error occurs.
	Start(ctx context.Context) error
}
