package chat

import (
	"context"
	"testing"
	"time"

	"github.com/securechat/schat/internal/gateway"
)

func loggedInSync(t *testing.T, fg *fakeGateway) *Synchronizer {
	t.Helper()
	s := newTestSync(fg, &fakeStore{id: "1", hasID: true})
	s.Bootstrap(context.Background())
	if _, ok := s.CurrentAccount(); !ok {
		t.Fatal("test setup: no session account")
	}
	return s
}

func twoAccountGateway() *fakeGateway {
	return newFakeGateway(
		gateway.Account{ID: 1, Name: "ada"},
		gateway.Account{ID: 2, Name: "grace"},
	)
}

// TestSendOptimisticAppend verifies the message is in the bucket with
// status sending before the gateway call resolves.
func TestSendOptimisticAppend(t *testing.T) {
	fg := twoAccountGateway()
	fg.sendStarted = make(chan struct{})
	fg.sendRelease = make(chan struct{})
	s := loggedInSync(t, fg)
	if err := s.SelectPeer(context.Background(), "2"); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- s.SendMessage(context.Background(), "hello") }()

	<-fg.sendStarted
	msgs := s.Messages("2")
	if len(msgs) != 1 {
		t.Fatalf("bucket size = %d before send resolved, want 1", len(msgs))
	}
	if msgs[0].Status != StatusSending {
		t.Errorf("status = %s, want sending", msgs[0].Status)
	}
	if msgs[0].Content != "hello" {
		t.Errorf("content = %q, want hello", msgs[0].Content)
	}

	close(fg.sendRelease)
	if err := <-done; err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
}

// TestSendLifecycle walks sending -> sent -> delivered on the optimistic
// entry. Reconciliation is disabled so the temporary entry stays visible.
func TestSendLifecycle(t *testing.T) {
	fg := twoAccountGateway()
	s := loggedInSync(t, fg)
	if err := s.SelectPeer(context.Background(), "2"); err != nil {
		t.Fatal(err)
	}
	fg.mu.Lock()
	fg.convErr = &gateway.StatusError{Code: 503, Body: "down"}
	fg.mu.Unlock()

	if err := s.SendMessage(context.Background(), "hi"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	msgs := s.Messages("2")
	if len(msgs) != 1 || msgs[0].Status != StatusSent {
		t.Fatalf("status after accept = %s, want sent", msgs[0].Status)
	}

	deadline := time.After(time.Second)
	for {
		msgs = s.Messages("2")
		if msgs[0].Status == StatusDelivered {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("status = %s, never reached delivered", msgs[0].Status)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSendFailureRetainsMessage(t *testing.T) {
	fg := twoAccountGateway()
	s := loggedInSync(t, fg)
	if err := s.SelectPeer(context.Background(), "2"); err != nil {
		t.Fatal(err)
	}
	fg.mu.Lock()
	fg.sendErr = &gateway.StatusError{Code: 500, Body: "boom"}
	fg.mu.Unlock()

	if err := s.SendMessage(context.Background(), "hi"); err == nil {
		t.Fatal("SendMessage() should fail")
	}

	msgs := s.Messages("2")
	if len(msgs) != 1 {
		t.Fatalf("bucket size = %d, want 1 (failed message retained)", len(msgs))
	}
	if msgs[0].Status != StatusFailed {
		t.Errorf("status = %s, want error", msgs[0].Status)
	}
	if s.Err() == "" {
		t.Error("global error flag should be set")
	}

	// The failed entry is terminal: no delivery timer may revive it.
	time.Sleep(100 * time.Millisecond)
	if got := s.Messages("2")[0].Status; got != StatusFailed {
		t.Errorf("status after delay = %s, want error", got)
	}
}

// TestSendRoundTrip covers the reconciliation path: the sent content
// comes back from the server delivered, never sending or error.
func TestSendRoundTrip(t *testing.T) {
	fg := twoAccountGateway()
	s := loggedInSync(t, fg)
	if err := s.SelectPeer(context.Background(), "2"); err != nil {
		t.Fatal(err)
	}

	if err := s.SendMessage(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}

	msgs := s.Messages("2")
	if len(msgs) != 1 {
		t.Fatalf("bucket size = %d, want 1", len(msgs))
	}
	got := msgs[0]
	if got.Content != "hello" {
		t.Errorf("content = %q, want hello", got.Content)
	}
	if got.Status != StatusDelivered && got.Status != StatusRead {
		t.Errorf("status = %s, want delivered or read", got.Status)
	}

	// The delivery timer for the replaced temporary id must be a no-op.
	time.Sleep(100 * time.Millisecond)
	after := s.Messages("2")
	if len(after) != 1 || after[0].ID != got.ID {
		t.Errorf("bucket changed after timer fired: %+v", after)
	}
}

func TestSendWithoutPeer(t *testing.T) {
	fg := twoAccountGateway()
	s := loggedInSync(t, fg)

	if err := s.SendMessage(context.Background(), "hi"); err != ErrNoPeerSelected {
		t.Errorf("error = %v, want ErrNoPeerSelected", err)
	}
}

func TestSendWithoutSession(t *testing.T) {
	s := newTestSync(twoAccountGateway(), &fakeStore{})

	if err := s.SendMessage(context.Background(), "hi"); err != ErrNoSession {
		t.Errorf("error = %v, want ErrNoSession", err)
	}
}
