package bus

import "time"

// Dialog lifecycle topics.
const (
	// TopicDialogSubmitted fires when the registry accepts a new dialog.
	// Consumed by the local presentation loop and the telegram channel.
	TopicDialogSubmitted = "dialog.submitted"

	// TopicDialogResolved fires after a dialog's history entry is written.
	TopicDialogResolved = "dialog.resolved"

	// TopicRPCResponse carries every JSON-RPC response produced on the
	// message path, already marshaled, for mirroring to push streams.
	TopicRPCResponse = "rpc.response"
)

// DialogSubmittedEvent is published on TopicDialogSubmitted.
type DialogSubmittedEvent struct {
	ID             string
	Reason         string
	Workspace      string
	SequenceNumber int64
	CreatedAt      time.Time
}

// DialogResolvedEvent is published on TopicDialogResolved.
type DialogResolvedEvent struct {
	ID             string
	Workspace      string
	ShouldContinue bool
}

// RPCResponseEvent is published on TopicRPCResponse.
type RPCResponseEvent struct {
	Body []byte
}
