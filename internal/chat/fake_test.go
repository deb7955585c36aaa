package chat

import (
	"context"
	"sync"
	"time"

	"github.com/securechat/schat/internal/bus"
	"github.com/securechat/schat/internal/gateway"
	"github.com/securechat/schat/internal/status"
)

// fakeStore is an in-memory IdentityStore.
type fakeStore struct {
	id     string
	hasID  bool
	setErr error
}

func (f *fakeStore) AccountID() (string, bool, error) { return f.id, f.hasID, nil }

func (f *fakeStore) SetAccountID(id string) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.id = id
	f.hasID = true
	return nil
}

// fakeGateway records calls and returns configurable results. Channels
// allow tests to observe intermediate pipeline states.
type fakeGateway struct {
	mu sync.Mutex

	accounts      []gateway.Account
	messages      []gateway.WireMessage
	summaries     map[int64][]gateway.ContactSummary
	nextAccountID int64
	nextMessageID int64

	listErr      error
	createErr    error
	getErr       error
	sendErr      error
	convErr      error
	summariesErr error
	markReadErr  error

	listCalls     int
	getCalls      int
	sendCalls     int
	convCalls     int
	summaryCalls  int
	markReadCalls [][2]int64

	// sendStarted is closed when SendMessage begins; sendRelease, when
	// non-nil, blocks SendMessage until the test closes it.
	sendStarted chan struct{}
	sendRelease chan struct{}
	// convWait blocks the n-th GetConversation call until its channel closes.
	convWait map[int]chan struct{}
}

func newFakeGateway(accounts ...gateway.Account) *fakeGateway {
	fg := &fakeGateway{
		accounts:      accounts,
		summaries:     make(map[int64][]gateway.ContactSummary),
		nextAccountID: 1,
		nextMessageID: 1,
		convWait:      make(map[int]chan struct{}),
	}
	for _, a := range accounts {
		if a.ID >= fg.nextAccountID {
			fg.nextAccountID = a.ID + 1
		}
	}
	return fg
}

func (f *fakeGateway) ListAccounts(context.Context) ([]gateway.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]gateway.Account, len(f.accounts))
	copy(out, f.accounts)
	return out, nil
}

func (f *fakeGateway) CreateAccount(_ context.Context, name string) (*gateway.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	a := gateway.Account{ID: f.nextAccountID, Name: name}
	f.nextAccountID++
	f.accounts = append(f.accounts, a)
	return &a, nil
}

func (f *fakeGateway) GetAccount(_ context.Context, id int64) (*gateway.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, a := range f.accounts {
		if a.ID == id {
			acct := a
			return &acct, nil
		}
	}
	return nil, gateway.ErrNotFound
}

func (f *fakeGateway) SendMessage(_ context.Context, senderID, recipientID int64, content string) (*gateway.WireMessage, error) {
	f.mu.Lock()
	started := f.sendStarted
	release := f.sendRelease
	f.sendStarted = nil
	f.mu.Unlock()
	if started != nil {
		close(started)
	}
	if release != nil {
		<-release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	wm := gateway.WireMessage{
		ID:          f.nextMessageID,
		SenderID:    senderID,
		RecipientID: recipientID,
		Decrypted:   content,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	f.nextMessageID++
	f.messages = append(f.messages, wm)
	return &wm, nil
}

func (f *fakeGateway) GetConversation(_ context.Context, idA, idB int64) ([]gateway.WireMessage, error) {
	f.mu.Lock()
	f.convCalls++
	wait := f.convWait[f.convCalls]
	f.mu.Unlock()
	if wait != nil {
		<-wait
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.convErr != nil {
		return nil, f.convErr
	}
	var out []gateway.WireMessage
	for _, m := range f.messages {
		if (m.SenderID == idA && m.RecipientID == idB) || (m.SenderID == idB && m.RecipientID == idA) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeGateway) GetContactSummaries(_ context.Context, accountID int64) ([]gateway.ContactSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaryCalls++
	if f.summariesErr != nil {
		return nil, f.summariesErr
	}
	return f.summaries[accountID], nil
}

func (f *fakeGateway) MarkConversationRead(_ context.Context, accountID, contactID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReadCalls = append(f.markReadCalls, [2]int64{accountID, contactID})
	return f.markReadErr
}

// newTestSync builds a synchronizer with a short delivery delay so the
// sent-to-delivered timer is observable without slowing the suite.
func newTestSync(fg *fakeGateway, fs *fakeStore) *Synchronizer {
	return New(fg, fs, status.NewMachine(nil), bus.New(), nil, 40*time.Millisecond)
}
