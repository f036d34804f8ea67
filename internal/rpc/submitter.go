package rpc

import (
	"context"

	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/dialog"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/registry"
)

// Submitter is where tools/call hands a dialog and waits for the human
// decision: the in-process registry on the leader, an HTTP client to the
// leader's endpoint everywhere else.
type Submitter interface {
	SubmitDialog(ctx context.Context, reason, workspace string) (dialog.Resolution, error)
}

// RegistrySubmitter submits straight into a local registry and blocks on the
// resolution channel. Used by the leader process.
type RegistrySubmitter struct {
	Registry *registry.Registry
}

// SubmitDialog waits without any timeout: a dialog stays open until a human
// answers. Context cancellation abandons the wait but leaves the request
// pending so a later resolution is still recorded in history.
func (s *RegistrySubmitter) SubmitDialog(ctx context.Context, reason, workspace string) (dialog.Resolution, error) {
	_, done := s.Registry.Submit(ctx, reason, workspace)
	select {
	case res := <-done:
		return res, nil
	case <-ctx.Done():
		return dialog.Resolution{}, ctx.Err()
	}
}
