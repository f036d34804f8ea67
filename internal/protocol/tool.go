package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const (
	// ToolName is the single tool published through tools/list.
	ToolName = "ai_chat"

	// ProtocolVersion is the tool-protocol revision echoed by initialize.
	ProtocolVersion = "2024-11-05"

	// ServerName identifies this server in the initialize handshake.
	ServerName = "hitl"
)

const toolDescription = "Pause and ask the human for a decision before taking further action. " +
	"Call this when a task is finished, blocked, or needs direction. " +
	"The call blocks until a person responds with continue-or-stop plus optional instructions and attachments."

// InputSchemaJSON is the published argument schema for the dialog tool.
// Both properties are required on the wire even though the handler tolerates
// their absence by defaulting to empty strings.
const InputSchemaJSON = `{
  "type": "object",
  "properties": {
    "reason": {
      "type": "string",
      "description": "Why the agent is pausing: a summary of what was done or what decision is needed."
    },
    "workspace": {
      "type": "string",
      "description": "Absolute path of the workspace the agent is operating in, used to route the dialog to the right session."
    }
  },
  "required": ["reason", "workspace"]
}`

// ResolutionSchemaJSON validates POST /respond bodies at the HTTP boundary.
const ResolutionSchemaJSON = `{
  "type": "object",
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "shouldContinue": {"type": "boolean"},
    "userInput": {"type": "string"},
    "attachments": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "kind": {"enum": ["image", "file", "code"]},
          "name": {"type": "string"},
          "content": {"type": "string"},
          "mimeType": {"type": "string"}
        },
        "required": ["kind", "name", "content"]
      }
    }
  },
  "required": ["id", "shouldContinue"]
}`

// Tool is the descriptor returned by tools/list.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type ToolCapability struct{}

type Capabilities struct {
	Tools ToolCapability `json:"tools"`
}

// InitializeResult is the fixed descriptor returned by initialize. It has no
// per-call state, so repeated calls yield byte-identical payloads.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
}

func NewInitializeResult(version string) InitializeResult {
	return InitializeResult{
		ProtocolVersion: ProtocolVersion,
		ServerInfo:      ServerInfo{Name: ServerName, Version: version},
	}
}

type ToolsListResult struct {
	Tools []Tool `json:"tools"`
}

func NewToolsListResult() ToolsListResult {
	return ToolsListResult{Tools: []Tool{{
		Name:        ToolName,
		Description: toolDescription,
		InputSchema: json.RawMessage(InputSchemaJSON),
	}}}
}

// ToolArgs are the arguments of a tools/call. Missing values decode to empty
// strings rather than failing.
type ToolArgs struct {
	Reason    string `json:"reason"`
	Workspace string `json:"workspace"`
}

type CallToolParams struct {
	Name      string   `json:"name"`
	Arguments ToolArgs `json:"arguments"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type CallToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// TextResult wraps plain text as a successful tool result.
func TextResult(text string) CallToolResult {
	return CallToolResult{Content: []ContentBlock{{Type: "text", Text: text}}}
}

// ErrorResult wraps text as a tool-level error, distinct from a JSON-RPC
// protocol error: the request-response cycle still completes normally.
func ErrorResult(text string) CallToolResult {
	return CallToolResult{Content: []ContentBlock{{Type: "text", Text: text}}, IsError: true}
}

// CompileSchema compiles an embedded JSON Schema document.
func CompileSchema(raw string) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema JSON: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// ValidateJSON checks a raw JSON document against a compiled schema.
// jsonschema.UnmarshalJSON is used for correct number handling.
func ValidateJSON(schema *jsonschema.Schema, raw []byte) error {
	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(parsed); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
