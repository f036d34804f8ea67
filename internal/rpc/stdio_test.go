package rpc_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/dialog"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/protocol"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/rpc"
)

func TestServeStdioRoundTrip(t *testing.T) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	sub := &cannedSubmitter{resolution: dialog.Resolution{ShouldContinue: true, UserInput: "go on"}}
	h := rpc.NewHandler(rpc.Config{Submitter: sub})

	served := make(chan error, 1)
	go func() {
		served <- h.ServeStdio(context.Background(), inR, outW)
	}()

	out := bufio.NewReader(outR)
	writeFrame(t, inW, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
	resp := readResponse(t, out)
	if resp.Error != nil {
		t.Fatalf("initialize error: %+v", resp.Error)
	}

	writeFrame(t, inW, `{"jsonrpc":"2.0","method":"initialized"}`)

	writeFrame(t, inW, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"ai_chat","arguments":{"reason":"r","workspace":"/w"}}}`)
	resp = readResponse(t, out)
	if resp.Error != nil {
		t.Fatalf("tools/call error: %+v", resp.Error)
	}
	var result protocol.CallToolResult
	raw, _ := json.Marshal(resp.Result)
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.Content) != 1 || result.Content[0].Type != "text" {
		t.Fatalf("result content = %+v", result.Content)
	}

	if err := inW.Close(); err != nil {
		t.Fatalf("close input: %v", err)
	}
	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("ServeStdio = %v, want nil on clean close", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("ServeStdio did not return after pipe close")
	}
}

func writeFrame(t *testing.T, w io.Writer, body string) {
	t.Helper()
	if err := protocol.WriteFrame(w, []byte(body)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
}

func readResponse(t *testing.T, r *bufio.Reader) *protocol.Response {
	t.Helper()
	payload, err := protocol.ReadFrame(r)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	var resp struct {
		JSONRPC string             `json:"jsonrpc"`
		ID      any                `json:"id"`
		Result  any                `json:"result"`
		Error   *protocol.ErrorObj `json:"error"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return &protocol.Response{JSONRPC: resp.JSONRPC, ID: resp.ID, Result: resp.Result, Error: resp.Error}
}
