// Package server is the leader's HTTP surface on the loopback coordination
// endpoint: the JSON-RPC message path, the SSE push stream, and the local
// REST routes the CLI and follower bridges drive (submit, list, respond,
// health).
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/bus"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/otel"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/protocol"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/registry"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/rpc"
)

// maxBodyBytes bounds /message and /respond bodies, matching the framed
// transport's frame cap.
const maxBodyBytes = 8 << 20

type Config struct {
	Logger   *slog.Logger
	Registry *registry.Registry
	RPC      *rpc.Handler
	Bus      *bus.Bus
	Metrics  *otel.Metrics

	// Port is echoed in /health so callers can confirm which instance
	// answered.
	Port    int
	Version string

	// Keepalive is the idle comment cadence on push streams. Zero means 30s.
	Keepalive time.Duration
}

type Server struct {
	cfg              Config
	logger           *slog.Logger
	resolutionSchema *jsonschema.Schema

	streamMu    sync.Mutex
	streamCount int
}

func New(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Keepalive <= 0 {
		cfg.Keepalive = 30 * time.Second
	}
	schema, err := protocol.CompileSchema(protocol.ResolutionSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile resolution schema: %w", err)
	}
	return &Server{
		cfg:              cfg,
		logger:           logger,
		resolutionSchema: schema,
	}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sse", s.handleSSE)
	mux.HandleFunc("/message", s.handleMessage)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/dialog", s.handleDialog)
	mux.HandleFunc("/pending", s.handlePending)
	mux.HandleFunc("/respond", s.handleRespond)
	return mux
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Debug("write json response failed", "error", err)
	}
}

// StreamCount reports the number of connected push-stream subscribers.
func (s *Server) StreamCount() int {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	return s.streamCount
}

func (s *Server) streamConnected() {
	s.streamMu.Lock()
	s.streamCount++
	s.streamMu.Unlock()
}

func (s *Server) streamDisconnected() {
	s.streamMu.Lock()
	s.streamCount--
	s.streamMu.Unlock()
}
