package registry_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/bus"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/dialog"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/registry"
)

func newRegistry() *registry.Registry {
	return registry.New(registry.Config{})
}

func TestResolveAtMostOnce(t *testing.T) {
	reg := newRegistry()
	req, done := reg.Submit(context.Background(), "deploy?", "/proj")

	const attempts = 16
	var wg sync.WaitGroup
	wins := make(chan int, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			res := dialog.Resolution{ShouldContinue: true, UserInput: fmt.Sprintf("input-%d", n)}
			if reg.Resolve(context.Background(), req.ID, res) {
				wins <- n
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	var winners []int
	for n := range wins {
		winners = append(winners, n)
	}
	if len(winners) != 1 {
		t.Fatalf("resolve succeeded %d times, want exactly 1", len(winners))
	}

	got := <-done
	if got.UserInput != fmt.Sprintf("input-%d", winners[0]) {
		t.Errorf("waiter saw %q, want the winner's payload %q", got.UserInput, fmt.Sprintf("input-%d", winners[0]))
	}
	if entries := reg.History("/proj"); len(entries) != 1 {
		t.Errorf("history has %d entries, want 1", len(entries))
	}
}

func TestSequenceNumbersPerWorkspace(t *testing.T) {
	reg := newRegistry()

	const n = 5
	for i := 1; i <= n; i++ {
		reqA, _ := reg.Submit(context.Background(), "a", "/alpha")
		if reqA.SequenceNumber != int64(i) {
			t.Fatalf("alpha submit %d got seq %d", i, reqA.SequenceNumber)
		}
		// Interleaved activity in another workspace must not disturb alpha.
		reg.Submit(context.Background(), "b", "/beta")
		reg.Submit(context.Background(), "b", "/beta")
	}

	reqB, _ := reg.Submit(context.Background(), "b", "/beta")
	if reqB.SequenceNumber != int64(2*n+1) {
		t.Fatalf("beta seq = %d, want %d", reqB.SequenceNumber, 2*n+1)
	}
}

func TestSequenceSurvivesResolution(t *testing.T) {
	reg := newRegistry()
	req, _ := reg.Submit(context.Background(), "first", "/proj")
	reg.Resolve(context.Background(), req.ID, dialog.Resolution{ShouldContinue: true})

	next, _ := reg.Submit(context.Background(), "second", "/proj")
	if next.SequenceNumber != 2 {
		t.Fatalf("seq after resolve = %d, want 2", next.SequenceNumber)
	}
}

func TestSequenceKeyIsNormalized(t *testing.T) {
	reg := newRegistry()
	reg.Submit(context.Background(), "a", "/Proj")
	req, _ := reg.Submit(context.Background(), "b", `\proj\`)
	if req.SequenceNumber != 2 {
		t.Fatalf("seq = %d, want 2: spellings of one workspace must share a counter", req.SequenceNumber)
	}
}

func TestResolveUnknownIDIsSoftFailure(t *testing.T) {
	reg := newRegistry()
	if reg.Resolve(context.Background(), "no-such-id", dialog.Resolution{ShouldContinue: false}) {
		t.Fatal("resolve of unknown id reported success")
	}
	if entries := reg.History("/proj"); len(entries) != 0 {
		t.Fatalf("history has %d entries after failed resolve, want 0", len(entries))
	}
}

func TestHistoryAppendedBeforeWaiterUnblocks(t *testing.T) {
	reg := newRegistry()
	req, done := reg.Submit(context.Background(), "check", "/proj")

	observed := make(chan int, 1)
	go func() {
		<-done
		observed <- len(reg.History("/proj"))
	}()

	if !reg.Resolve(context.Background(), req.ID, dialog.Resolution{ShouldContinue: true, UserInput: "ok"}) {
		t.Fatal("resolve failed")
	}

	select {
	case n := <-observed:
		if n != 1 {
			t.Fatalf("waiter observed %d history entries at unblock, want 1", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never unblocked")
	}
}

func TestListPendingContainmentFilter(t *testing.T) {
	reg := newRegistry()
	sub, _ := reg.Submit(context.Background(), "inside", "/a/b")
	reg.Submit(context.Background(), "outside", "/x")

	got := reg.ListPending([]string{"/a"})
	if len(got) != 1 || got[0].ID != sub.ID {
		t.Fatalf("filtered pending = %+v, want only the /a/b request", got)
	}

	all := reg.ListPending(nil)
	if len(all) != 2 {
		t.Fatalf("unfiltered pending = %d requests, want 2", len(all))
	}
	if all[0].ID != sub.ID {
		t.Fatal("pending list not in submission order")
	}
}

func TestListPendingExcludesResolved(t *testing.T) {
	reg := newRegistry()
	req, _ := reg.Submit(context.Background(), "done soon", "/proj")
	reg.Resolve(context.Background(), req.ID, dialog.Resolution{ShouldContinue: false})

	if got := reg.ListPending(nil); len(got) != 0 {
		t.Fatalf("pending after resolve = %d, want 0", len(got))
	}
	if reg.PendingCount() != 0 {
		t.Fatalf("PendingCount = %d, want 0", reg.PendingCount())
	}
}

func TestHistoryLookupIsNormalized(t *testing.T) {
	reg := newRegistry()
	req, _ := reg.Submit(context.Background(), "q", "/Users/Dev/Proj")
	reg.Resolve(context.Background(), req.ID, dialog.Resolution{ShouldContinue: true, UserInput: "yes"})

	entries := reg.History("/users/dev/proj/")
	if len(entries) != 1 {
		t.Fatalf("normalized history lookup found %d entries, want 1", len(entries))
	}
	if entries[0].UserInput != "yes" || !entries[0].ShouldContinue {
		t.Fatalf("entry = %+v", entries[0])
	}
}

func TestRegistryPublishesBusEvents(t *testing.T) {
	b := bus.New()
	reg := registry.New(registry.Config{Bus: b})

	sub := b.Subscribe("dialog.")
	defer b.Unsubscribe(sub)

	req, _ := reg.Submit(context.Background(), "notify", "/proj")

	select {
	case ev := <-sub.Ch():
		if ev.Topic != bus.TopicDialogSubmitted {
			t.Fatalf("first event topic = %q, want %q", ev.Topic, bus.TopicDialogSubmitted)
		}
		payload, ok := ev.Payload.(bus.DialogSubmittedEvent)
		if !ok || payload.ID != req.ID {
			t.Fatalf("submitted payload = %+v", ev.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no submitted event")
	}

	reg.Resolve(context.Background(), req.ID, dialog.Resolution{ShouldContinue: false})

	select {
	case ev := <-sub.Ch():
		if ev.Topic != bus.TopicDialogResolved {
			t.Fatalf("second event topic = %q, want %q", ev.Topic, bus.TopicDialogResolved)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no resolved event")
	}
}

func TestHistoryMirrorReceivesEntries(t *testing.T) {
	mirror := &recordingMirror{}
	reg := registry.New(registry.Config{Mirror: mirror})

	req, _ := reg.Submit(context.Background(), "persist me", "/proj")
	reg.Resolve(context.Background(), req.ID, dialog.Resolution{ShouldContinue: true, UserInput: "saved"})

	if len(mirror.entries) != 1 {
		t.Fatalf("mirror got %d entries, want 1", len(mirror.entries))
	}
	if mirror.workspaces[0] != "/proj" {
		t.Fatalf("mirror workspace = %q, want normalized /proj", mirror.workspaces[0])
	}
}

type recordingMirror struct {
	mu         sync.Mutex
	workspaces []string
	entries    []dialog.HistoryEntry
}

func (m *recordingMirror) AppendHistory(_ context.Context, workspace string, e dialog.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workspaces = append(m.workspaces, workspace)
	m.entries = append(m.entries, e)
	return nil
}
