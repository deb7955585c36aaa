package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/securechat/schat/internal/gateway"
)

func TestGetLastMessageFromSummary(t *testing.T) {
	fg := twoAccountGateway()
	long := strings.Repeat("a", 45)
	fg.summaries[1] = []gateway.ContactSummary{{
		ContactID:       2,
		ContactName:     "grace",
		LastMessage:     long,
		LastMessageTime: "2026-08-29T14:05:00",
		UnreadCount:     3,
	}}
	s := loggedInSync(t, fg)
	s.RefreshSummaries(context.Background())

	p, ok := s.GetLastMessage("2")
	if !ok {
		t.Fatal("GetLastMessage() = !ok, want preview")
	}
	want := strings.Repeat("a", 30) + "..."
	if p.Text != want {
		t.Errorf("preview = %q, want %q", p.Text, want)
	}
	if p.Time != "14:05" {
		t.Errorf("preview time = %q, want 14:05", p.Time)
	}
}

// TestGetLastMessageBucketFallback: with no summary row the preview
// comes from the local bucket's last entry.
func TestGetLastMessageBucketFallback(t *testing.T) {
	fg := twoAccountGateway()
	s := loggedInSync(t, fg)
	if err := s.SelectPeer(context.Background(), "2"); err != nil {
		t.Fatal(err)
	}
	if err := s.SendMessage(context.Background(), "first"); err != nil {
		t.Fatal(err)
	}
	if err := s.SendMessage(context.Background(), "second"); err != nil {
		t.Fatal(err)
	}

	p, ok := s.GetLastMessage("2")
	if !ok {
		t.Fatal("GetLastMessage() = !ok, want preview")
	}
	if p.Text != "second" {
		t.Errorf("preview = %q, want second", p.Text)
	}
}

func TestGetLastMessageNothing(t *testing.T) {
	s := loggedInSync(t, twoAccountGateway())

	if _, ok := s.GetLastMessage("2"); ok {
		t.Error("GetLastMessage() = ok for peer with no history")
	}
}

func TestGetUnreadCount(t *testing.T) {
	fg := twoAccountGateway()
	fg.summaries[1] = []gateway.ContactSummary{
		{ContactID: 2, ContactName: "grace", UnreadCount: 7},
	}
	s := loggedInSync(t, fg)
	s.RefreshSummaries(context.Background())

	if got := s.GetUnreadCount("2"); got != 7 {
		t.Errorf("unread(2) = %d, want 7", got)
	}
	// Peers absent from the cache read as zero, even with local history.
	if got := s.GetUnreadCount("5"); got != 0 {
		t.Errorf("unread(5) = %d, want 0", got)
	}
}

func TestRefreshSummariesReplaces(t *testing.T) {
	fg := twoAccountGateway()
	fg.summaries[1] = []gateway.ContactSummary{
		{ContactID: 2, ContactName: "grace", UnreadCount: 2},
		{ContactID: 3, ContactName: "alan", UnreadCount: 1},
	}
	s := loggedInSync(t, fg)
	s.RefreshSummaries(context.Background())
	if got := len(s.Summaries()); got != 2 {
		t.Fatalf("summary count = %d, want 2", got)
	}

	fg.mu.Lock()
	fg.summaries[1] = []gateway.ContactSummary{
		{ContactID: 2, ContactName: "grace", UnreadCount: 0},
	}
	fg.mu.Unlock()
	s.RefreshSummaries(context.Background())

	if got := len(s.Summaries()); got != 1 {
		t.Errorf("summary count = %d after refresh, want 1", got)
	}
	if got := s.GetUnreadCount("3"); got != 0 {
		t.Errorf("unread(3) = %d after replacement, want 0", got)
	}
}

// TestRefreshSummariesFailureKeepsCache: a failed refresh is absorbed
// and the previous cache stays visible.
func TestRefreshSummariesFailureKeepsCache(t *testing.T) {
	fg := twoAccountGateway()
	fg.summaries[1] = []gateway.ContactSummary{
		{ContactID: 2, ContactName: "grace", UnreadCount: 2},
	}
	s := loggedInSync(t, fg)
	s.RefreshSummaries(context.Background())

	fg.mu.Lock()
	fg.summariesErr = &gateway.StatusError{Code: 500, Body: "boom"}
	fg.mu.Unlock()
	s.RefreshSummaries(context.Background())

	if got := s.GetUnreadCount("2"); got != 2 {
		t.Errorf("unread(2) = %d after failed refresh, want 2", got)
	}
	if s.Err() != "" {
		t.Errorf("Err() = %q, want empty (summary failures are absorbed)", s.Err())
	}
}
