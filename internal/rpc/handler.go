// Package rpc implements the JSON-RPC method surface shared by the framed
// stdio pipe and the HTTP message endpoint: initialize, initialized,
// tools/list, and the blocking tools/call.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/dialog"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/otel"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/protocol"
)

// toolInputSchema is compiled at startup so a malformed published descriptor
// fails immediately instead of surfacing inside a client.
var toolInputSchema = func() *jsonschema.Schema {
	s, err := protocol.CompileSchema(protocol.InputSchemaJSON)
	if err != nil {
		panic(fmt.Sprintf("tool input schema: %v", err))
	}
	return s
}()

type Config struct {
	Logger    *slog.Logger
	Submitter Submitter
	Metrics   *otel.Metrics
	Tracer    trace.Tracer
	// Version is reported by initialize; defaults to the build version.
	Version string
}

type Handler struct {
	logger    *slog.Logger
	submitter Submitter
	metrics   *otel.Metrics
	tracer    trace.Tracer
	version   string
}

func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	version := cfg.Version
	if version == "" {
		version = otel.Version
	}
	return &Handler{
		logger:    logger,
		submitter: cfg.Submitter,
		metrics:   cfg.Metrics,
		tracer:    cfg.Tracer,
		version:   version,
	}
}

// HandleMessage decodes one JSON-RPC message, dispatches it, and returns the
// response to send back. A nil response means the message was a notification
// and nothing goes on the wire. tools/call blocks until the dialog resolves,
// so callers that must stay responsive run this on its own goroutine.
func (h *Handler) HandleMessage(ctx context.Context, raw []byte) *protocol.Response {
	var req protocol.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return protocol.NewError(nil, protocol.ErrCodeParse, "parse error: "+err.Error())
	}

	id, hasID := protocol.DecodeID(req.ID)
	if req.JSONRPC != "2.0" || req.Method == "" {
		if !hasID {
			return nil
		}
		return protocol.NewError(id, protocol.ErrCodeInvalidRequest, "invalid JSON-RPC request")
	}

	if h.tracer != nil {
		var span trace.Span
		ctx, span = otel.StartServerSpan(ctx, h.tracer, "rpc "+req.Method,
			otel.AttrRPCMethod.String(req.Method))
		defer span.End()
	}
	h.logger.DebugContext(ctx, "rpc request", "method", req.Method, "id", string(req.ID))
	start := time.Now()
	defer func() {
		if h.metrics != nil {
			h.metrics.RPCDuration.Record(ctx, time.Since(start).Seconds(),
				metric.WithAttributes(otel.AttrRPCMethod.String(req.Method)))
		}
	}()

	switch req.Method {
	case "initialize":
		if !hasID {
			return nil
		}
		return protocol.NewResult(id, protocol.NewInitializeResult(h.version))

	case "initialized", "notifications/initialized":
		// Handshake acknowledgement; nothing to answer.
		return nil

	case "tools/list":
		if !hasID {
			return nil
		}
		return protocol.NewResult(id, protocol.NewToolsListResult())

	case "tools/call":
		if !hasID {
			// Without an id there is no way to deliver the resolution.
			h.logger.WarnContext(ctx, "dropping tools/call sent as a notification")
			return nil
		}
		return h.handleToolCall(ctx, id, req.Params)

	default:
		if !hasID {
			return nil
		}
		return protocol.NewError(id, protocol.ErrCodeMethodNotFound, "method not found: "+req.Method)
	}
}

func (h *Handler) handleToolCall(ctx context.Context, id any, params json.RawMessage) *protocol.Response {
	var p protocol.CallToolParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return protocol.NewError(id, protocol.ErrCodeInvalidParams, "invalid params: "+err.Error())
		}
	}
	if p.Name != protocol.ToolName {
		return protocol.NewError(id, protocol.ErrCodeInvalidParams, "tool not found: "+p.Name)
	}

	// Schema conformance is advisory on the way in: the call proceeds either
	// way, but a mismatch is worth a debug line.
	var rawArgs struct {
		Arguments json.RawMessage `json:"arguments"`
	}
	if json.Unmarshal(params, &rawArgs) == nil && len(rawArgs.Arguments) > 0 {
		if err := protocol.ValidateJSON(toolInputSchema, rawArgs.Arguments); err != nil {
			h.logger.DebugContext(ctx, "tool arguments do not match the published schema", "error", err)
		}
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(otel.AttrWorkspace.String(p.Arguments.Workspace))

	// Missing arguments decode to empty strings; that routes the dialog to
	// the global fallback session rather than failing the call.
	res, err := h.submitter.SubmitDialog(ctx, p.Arguments.Reason, p.Arguments.Workspace)
	if err != nil {
		h.logger.ErrorContext(ctx, "dialog submission failed", "error", err)
		return protocol.NewResult(id, protocol.ErrorResult(fmt.Sprintf("dialog request failed: %v", err)))
	}

	decision := "stop"
	if res.ShouldContinue {
		decision = "continue"
	}
	span.SetAttributes(otel.AttrDecision.String(decision))
	return protocol.NewResult(id, protocol.TextResult(dialog.RenderDirective(res)))
}
