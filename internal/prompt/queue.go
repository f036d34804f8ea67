package prompt

import (
	"context"
	"errors"
	"sync"

	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/dialog"
)

// QueuePresenter replays scripted resolutions in enqueue order and records
// every request it was shown. Used by test suites that need a deterministic
// human.
type QueuePresenter struct {
	mu       sync.Mutex
	queue    []dialog.Resolution
	requests []dialog.Request
}

func (q *QueuePresenter) Enqueue(res ...dialog.Resolution) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queue = append(q.queue, res...)
}

// Requests returns a copy of every request presented so far.
func (q *QueuePresenter) Requests() []dialog.Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]dialog.Request, len(q.requests))
	copy(out, q.requests)
	return out
}

func (q *QueuePresenter) Present(ctx context.Context, req dialog.Request) (dialog.Resolution, error) {
	if err := ctx.Err(); err != nil {
		return dialog.Resolution{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.requests = append(q.requests, req)
	if len(q.queue) == 0 {
		return dialog.Resolution{}, errors.New("no queued resolution")
	}
	res := q.queue[0]
	q.queue = q.queue[1:]
	return res, nil
}
