package chat

import (
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/securechat/schat/internal/gateway"
)

// Account is a roster entry. Ids are opaque strings client-side; the
// server assigns numeric ids.
type Account struct {
	ID          string
	DisplayName string
}

// Status is the delivery status of a message.
type Status string

const (
	// StatusSending is the optimistic state before the server accepts.
	StatusSending Status = "sending"
	// StatusSent means the server accepted the message.
	StatusSent Status = "sent"
	// StatusDelivered is reached a fixed delay after sent, or assigned
	// directly to any message fetched from the server.
	StatusDelivered Status = "delivered"
	// StatusRead is only ever assigned to messages the server already
	// marked read; the sender's own pipeline never produces it.
	StatusRead Status = "read"
	// StatusFailed is terminal; the message is retained, never retried.
	StatusFailed Status = "error"
)

// statusTransitions defines the send pipeline state machine.
var statusTransitions = map[Status][]Status{
	StatusSending:   {StatusSent, StatusFailed},
	StatusSent:      {StatusDelivered},
	StatusDelivered: {},
	StatusRead:      {},
	StatusFailed:    {},
}

// CanTransition reports whether the pipeline allows moving from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Message is one entry in a peer bucket. The id is either a server id or
// a temporary local id used until reconciliation reflects the server copy.
type Message struct {
	ID          string
	Content     string
	SenderID    string
	RecipientID string
	CreatedAt   time.Time
	Status      Status
	Encrypted   bool
}

// Summary is one cached contact summary row.
type Summary struct {
	ContactID       string
	ContactName     string
	LastMessageText string
	LastMessageTime time.Time
	UnreadCount     int
}

// Preview is a sidebar-ready last-message preview.
type Preview struct {
	Text string
	Time string
}

// previewLimit is the maximum length of a last-message preview.
const previewLimit = 30

// truncatePreview cuts text to previewLimit characters with an ellipsis
// marker; shorter text is returned verbatim.
func truncatePreview(text string) string {
	if utf8.RuneCountInString(text) <= previewLimit {
		return text
	}
	return string([]rune(text)[:previewLimit]) + "..."
}

// apiID converts an opaque client id back to the server's numeric form.
func apiID(id string) int64 {
	n, _ := strconv.ParseInt(id, 10, 64)
	return n
}

// clientID converts a server numeric id to the opaque client form.
func clientID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// timestampLayouts covers the server's RFC3339 variants, with and without
// fractional seconds or zone suffix.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

func parseTimestamp(raw string) time.Time {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// fromWire maps a server message record into the client shape. Gateway
// origin messages are always delivered unless the server marked them read.
func fromWire(wm gateway.WireMessage) Message {
	st := StatusDelivered
	if wm.Read {
		st = StatusRead
	}
	return Message{
		ID:          clientID(wm.ID),
		Content:     wm.Decrypted,
		SenderID:    clientID(wm.SenderID),
		RecipientID: clientID(wm.RecipientID),
		CreatedAt:   parseTimestamp(wm.Timestamp),
		Status:      st,
		Encrypted:   true,
	}
}

func fromWireAccount(a gateway.Account) Account {
	return Account{ID: clientID(a.ID), DisplayName: a.Name}
}

func fromWireSummary(s gateway.ContactSummary) Summary {
	return Summary{
		ContactID:       clientID(s.ContactID),
		ContactName:     s.ContactName,
		LastMessageText: s.LastMessage,
		LastMessageTime: parseTimestamp(s.LastMessageTime),
		UnreadCount:     s.UnreadCount,
	}
}
