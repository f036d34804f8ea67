package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/protocol"
)

// ServeStdio runs the framed-pipe transport: Content-Length framed JSON-RPC
// messages read from r, responses written to w. Each message is dispatched
// on its own goroutine so a suspended tools/call never stalls the pipe;
// writes are serialized. Returns nil when the peer closes the pipe.
func (h *Handler) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	reader := bufio.NewReader(r)

	type frame struct {
		payload []byte
		err     error
	}
	frames := make(chan frame)
	go func() {
		defer close(frames)
		for {
			payload, err := protocol.ReadFrame(reader)
			frames <- frame{payload, err}
			if err != nil {
				return
			}
		}
	}()

	var writeMu sync.Mutex
	var handlers sync.WaitGroup
	defer handlers.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			if f.err == io.EOF {
				return nil
			}
			if f.err != nil {
				// A broken frame header desynchronizes the stream; there
				// is no safe way to resume reading.
				h.logger.Error("framed pipe read failed", "error", f.err)
				return f.err
			}

			handlers.Add(1)
			go func(payload []byte) {
				defer handlers.Done()
				resp := h.HandleMessage(ctx, payload)
				if resp == nil {
					return
				}
				out, err := json.Marshal(resp)
				if err != nil {
					h.logger.Error("marshal response", "error", err)
					return
				}
				writeMu.Lock()
				defer writeMu.Unlock()
				if err := protocol.WriteFrame(w, out); err != nil {
					h.logger.Error("framed pipe write failed", "error", err)
				}
			}(f.payload)
		}
	}
}
