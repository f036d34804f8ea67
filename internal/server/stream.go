package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/bus"
)

// handleSSE serves the push stream: an initial endpoint event naming the
// message path, then a mirror of every RPC response, with comment keepalives
// while idle. A write failure tears down this subscriber only.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s.streamConnected()
	defer s.streamDisconnected()
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.StreamSubscribers.Add(r.Context(), 1)
		defer s.cfg.Metrics.StreamSubscribers.Add(r.Context(), -1)
	}

	// Subscribe before announcing the endpoint so a client that posts
	// immediately after the first event cannot slip between the two.
	var events <-chan bus.Event
	if s.cfg.Bus != nil {
		sub := s.cfg.Bus.Subscribe(bus.TopicRPCResponse)
		defer s.cfg.Bus.Unsubscribe(sub)
		events = sub.Ch()
	}

	if _, err := fmt.Fprintf(w, "event: endpoint\ndata: /message\n\n"); err != nil {
		return
	}
	flusher.Flush()

	keepalive := time.NewTicker(s.cfg.Keepalive)
	defer keepalive.Stop()

	s.logger.Debug("push stream subscriber connected", "remote", r.RemoteAddr)
	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("push stream subscriber disconnected", "remote", r.RemoteAddr)
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			payload, ok := evt.Payload.(bus.RPCResponseEvent)
			if !ok {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", payload.Body); err != nil {
				s.logger.Debug("push stream write failed", "remote", r.RemoteAddr, "error", err)
				return
			}
			flusher.Flush()
			if s.cfg.Metrics != nil {
				s.cfg.Metrics.StreamEvents.Add(r.Context(), 1)
			}
		case <-keepalive.C:
			if _, err := fmt.Fprintf(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
