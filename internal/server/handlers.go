package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/bus"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/dialog"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/protocol"
)

// handleMessage runs one JSON-RPC message. The response body is returned to
// the caller directly and mirrored onto every push stream, so SSE clients
// observe the same cycle a direct poster does.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}

	resp := s.cfg.RPC.HandleMessage(r.Context(), body)
	if resp == nil {
		// Notification: accepted, nothing to answer.
		w.WriteHeader(http.StatusAccepted)
		return
	}

	out, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("marshal rpc response failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if s.cfg.Bus != nil {
		s.cfg.Bus.Publish(bus.TopicRPCResponse, bus.RPCResponseEvent{Body: out})
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"version":         s.cfg.Version,
		"port":            s.cfg.Port,
		"subscriberCount": s.StreamCount(),
		"pendingCount":    s.cfg.Registry.PendingCount(),
	})
}

type dialogRequest struct {
	Reason    string `json:"reason"`
	Workspace string `json:"workspace"`
}

// handleDialog is the local front door for non-RPC clients: it submits a
// dialog and holds the connection open until a human resolves it. There is
// no server-side deadline; a closed connection abandons the wait but the
// request stays pending.
func (s *Server) handleDialog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req dialogRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "decode body: "+err.Error(), http.StatusBadRequest)
		return
	}

	_, done := s.cfg.Registry.Submit(r.Context(), req.Reason, req.Workspace)
	select {
	case res := <-done:
		s.writeJSON(w, http.StatusOK, res)
	case <-r.Context().Done():
		s.logger.Debug("dialog caller went away before resolution")
	}
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	filters := r.URL.Query()["workspace"]
	s.writeJSON(w, http.StatusOK, s.cfg.Registry.ListPending(filters))
}

type respondRequest struct {
	ID             string              `json:"id"`
	ShouldContinue bool                `json:"shouldContinue"`
	UserInput      string              `json:"userInput"`
	Attachments    []dialog.Attachment `json:"attachments,omitempty"`
}

// handleRespond resolves a pending dialog. An unknown or already-settled id
// is a soft failure: success=false, status 200, nothing changed.
func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := protocol.ValidateJSON(s.resolutionSchema, body); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	var req respondRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "decode body: "+err.Error(), http.StatusBadRequest)
		return
	}

	ok := s.cfg.Registry.Resolve(r.Context(), req.ID, dialog.Resolution{
		ShouldContinue: req.ShouldContinue,
		UserInput:      req.UserInput,
		Attachments:    req.Attachments,
	})
	s.writeJSON(w, http.StatusOK, map[string]any{"success": ok})
}
