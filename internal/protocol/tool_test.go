package protocol_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/protocol"
)

func TestToolsListPublishesOneTool(t *testing.T) {
	result := protocol.NewToolsListResult()
	if len(result.Tools) != 1 {
		t.Fatalf("tools/list returned %d tools, want 1", len(result.Tools))
	}
	tool := result.Tools[0]
	if tool.Name != protocol.ToolName {
		t.Fatalf("tool name = %q, want %q", tool.Name, protocol.ToolName)
	}

	var schema struct {
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
		t.Fatalf("unmarshal input schema: %v", err)
	}
	want := map[string]bool{"reason": false, "workspace": false}
	for _, r := range schema.Required {
		want[r] = true
	}
	if !want["reason"] || !want["workspace"] {
		t.Fatalf("required = %v, want both reason and workspace", schema.Required)
	}
}

func TestInitializeResultIsStable(t *testing.T) {
	a, err := json.Marshal(protocol.NewInitializeResult("v1.2.3"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	b, err := json.Marshal(protocol.NewInitializeResult("v1.2.3"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("initialize payloads differ:\n%s\n%s", a, b)
	}
}

func TestToolArgsDefaultToEmpty(t *testing.T) {
	var params protocol.CallToolParams
	if err := json.Unmarshal([]byte(`{"name":"ai_chat","arguments":{}}`), &params); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if params.Arguments.Reason != "" || params.Arguments.Workspace != "" {
		t.Fatalf("missing arguments = %+v, want empty strings", params.Arguments)
	}
}

func TestInputSchemaValidation(t *testing.T) {
	schema, err := protocol.CompileSchema(protocol.InputSchemaJSON)
	if err != nil {
		t.Fatalf("CompileSchema: %v", err)
	}

	valid := []byte(`{"reason":"done","workspace":"/proj"}`)
	if err := protocol.ValidateJSON(schema, valid); err != nil {
		t.Errorf("valid args rejected: %v", err)
	}

	missing := []byte(`{"reason":"done"}`)
	if err := protocol.ValidateJSON(schema, missing); err == nil {
		t.Error("args without workspace passed validation")
	}

	wrongType := []byte(`{"reason":7,"workspace":"/proj"}`)
	if err := protocol.ValidateJSON(schema, wrongType); err == nil {
		t.Error("numeric reason passed validation")
	}
}

func TestResolutionSchemaValidation(t *testing.T) {
	schema, err := protocol.CompileSchema(protocol.ResolutionSchemaJSON)
	if err != nil {
		t.Fatalf("CompileSchema: %v", err)
	}

	valid := []byte(`{
		"id": "d-1",
		"shouldContinue": true,
		"userInput": "keep going",
		"attachments": [{"kind": "code", "name": "x.py", "content": "print(1)"}]
	}`)
	if err := protocol.ValidateJSON(schema, valid); err != nil {
		t.Errorf("valid resolution rejected: %v", err)
	}

	badKind := []byte(`{
		"id": "d-1",
		"shouldContinue": true,
		"attachments": [{"kind": "video", "name": "x", "content": "y"}]
	}`)
	if err := protocol.ValidateJSON(schema, badKind); err == nil {
		t.Error("unknown attachment kind passed validation")
	}

	noDecision := []byte(`{"id": "d-1"}`)
	if err := protocol.ValidateJSON(schema, noDecision); err == nil {
		t.Error("resolution without shouldContinue passed validation")
	}
}

func TestErrorResultMarksToolError(t *testing.T) {
	res := protocol.ErrorResult("coordination endpoint unreachable at http://127.0.0.1:7077")
	if !res.IsError {
		t.Fatal("ErrorResult must set isError")
	}
	if len(res.Content) != 1 || res.Content[0].Type != "text" {
		t.Fatalf("content = %+v, want one text block", res.Content)
	}
}
