// Package chat owns the conversation state synchronizer: the roster,
// the session account, per-peer message buckets, the contact summary
// cache and the send pipeline. Collaborators read snapshots and invoke
// actions; all mutation happens under one lock, one completion at a time.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/securechat/schat/internal/bus"
	"github.com/securechat/schat/internal/gateway"
	"github.com/securechat/schat/internal/status"
	"go.uber.org/zap"
)

// Gateway is the remote service surface the synchronizer consumes.
type Gateway interface {
	ListAccounts(ctx context.Context) ([]gateway.Account, error)
	CreateAccount(ctx context.Context, name string) (*gateway.Account, error)
	GetAccount(ctx context.Context, id int64) (*gateway.Account, error)
	SendMessage(ctx context.Context, senderID, recipientID int64, content string) (*gateway.WireMessage, error)
	GetConversation(ctx context.Context, idA, idB int64) ([]gateway.WireMessage, error)
	GetContactSummaries(ctx context.Context, accountID int64) ([]gateway.ContactSummary, error)
	MarkConversationRead(ctx context.Context, accountID, contactID int64) error
}

// IdentityStore persists the session account id across restarts.
type IdentityStore interface {
	AccountID() (string, bool, error)
	SetAccountID(id string) error
}

// ErrNoSession is returned by actions that require an authenticated session.
var ErrNoSession = errors.New("chat: no session account")

// ErrNoPeerSelected is returned by SendMessage when no conversation is open.
var ErrNoPeerSelected = errors.New("chat: no peer selected")

type pendingSend struct {
	tempID string
	peerID string
}

// Synchronizer reconciles optimistic local state against the server.
type Synchronizer struct {
	mu sync.Mutex

	gw      Gateway
	ids     IdentityStore
	machine *status.Machine
	bus     *bus.Bus
	logger  *zap.Logger

	deliveryDelay time.Duration

	roster       []Account
	current      *Account
	selectedPeer string
	buckets      map[string][]Message
	summaries    []Summary

	loadingOps   int
	lastErr      string
	discoveryErr string

	// pending correlates in-flight sends with their optimistic bucket
	// entries by a local sequence number, independent of domain ids.
	nextSeq uint64
	pending map[uint64]pendingSend

	// Generation counters per mutable slice; completions carrying a
	// stale generation are discarded.
	rosterGen  uint64
	summaryGen uint64
	bucketGen  map[string]uint64
}

// New creates a synchronizer. A nil logger is replaced with a no-op one.
func New(gw Gateway, ids IdentityStore, machine *status.Machine, b *bus.Bus, logger *zap.Logger, deliveryDelay time.Duration) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deliveryDelay <= 0 {
		deliveryDelay = 500 * time.Millisecond
	}
	return &Synchronizer{
		gw:            gw,
		ids:           ids,
		machine:       machine,
		bus:           b,
		logger:        logger,
		deliveryDelay: deliveryDelay,
		buckets:       make(map[string][]Message),
		pending:       make(map[uint64]pendingSend),
		bucketGen:     make(map[string]uint64),
	}
}

func (s *Synchronizer) emit(kind string, payload any) {
	if s.bus != nil {
		s.bus.Emit(kind, payload)
	}
}

// Bootstrap fetches the roster and restores a previously stored session
// account if its id still resolves. It never fails fatally: a gateway
// error degrades to "no session, login required" plus the error flag.
func (s *Synchronizer) Bootstrap(ctx context.Context) {
	if s.machine.Current() == status.Error {
		_ = s.machine.Transition(status.Booting)
	}

	s.beginLoading()
	accounts, err := s.gw.ListAccounts(ctx)
	s.endLoading()

	if err != nil {
		s.logger.Error("bootstrap roster fetch failed", zap.Error(err))
		s.setError("failed to connect to server")
		_ = s.machine.Transition(status.AuthRequired)
		return
	}

	s.mu.Lock()
	s.rosterGen++
	s.roster = mapAccounts(accounts)
	s.clearErrorLocked()

	var restored *Account
	if storedID, ok, err := s.ids.AccountID(); err != nil {
		s.logger.Warn("identity store read failed", zap.Error(err))
	} else if ok {
		if acct := findAccountLocked(s.roster, storedID); acct != nil {
			a := *acct
			s.current = &a
			restored = &a
		}
	}
	s.mu.Unlock()
	s.emit("roster.updated", len(accounts))

	if restored == nil {
		s.logger.Info("no stored session resolved, auth required")
		_ = s.machine.Transition(status.AuthRequired)
		return
	}

	s.logger.Info("session restored",
		zap.String("account_id", restored.ID),
		zap.String("display_name", restored.DisplayName))
	_ = s.machine.Transition(status.Ready)
	s.emit("session.authenticated", restored.ID)

	// Summaries are an enhancement; failure here is not a bootstrap failure.
	s.RefreshSummaries(ctx)
}

// LoginByID resolves id against the already-fetched roster and adopts it
// as the session account. Returns false on a local lookup miss; a failed
// roster fetch is a distinct condition reported by Bootstrap, not here.
func (s *Synchronizer) LoginByID(id string) bool {
	s.mu.Lock()
	acct := findAccountLocked(s.roster, id)
	if acct == nil {
		s.mu.Unlock()
		return false
	}
	a := *acct
	s.current = &a
	s.clearErrorLocked()
	s.mu.Unlock()

	if err := s.ids.SetAccountID(a.ID); err != nil {
		s.logger.Warn("failed to persist account id", zap.Error(err))
	}
	if s.machine.Current() != status.Ready {
		_ = s.machine.Transition(status.Ready)
	}
	s.logger.Info("logged in", zap.String("account_id", a.ID))
	s.emit("session.authenticated", a.ID)
	return true
}

// CreateAndLogin creates a server account, adopts it as the session
// account, persists its id and seeds the welcome contact. On gateway
// failure the session is left unset and the error is returned.
func (s *Synchronizer) CreateAndLogin(ctx context.Context, displayName string) (*Account, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, fmt.Errorf("chat: display name must not be empty")
	}

	s.beginLoading()
	created, err := s.gw.CreateAccount(ctx, displayName)
	s.endLoading()
	if err != nil {
		s.setError("failed to create account")
		return nil, fmt.Errorf("create account: %w", err)
	}

	acct := fromWireAccount(*created)
	s.mu.Lock()
	s.roster = append(s.roster, acct)
	a := acct
	s.current = &a
	s.clearErrorLocked()
	s.mu.Unlock()

	if err := s.ids.SetAccountID(acct.ID); err != nil {
		s.logger.Warn("failed to persist account id", zap.Error(err))
	}
	if s.machine.Current() != status.Ready {
		_ = s.machine.Transition(status.Ready)
	}
	s.logger.Info("account created", zap.String("account_id", acct.ID), zap.String("display_name", acct.DisplayName))
	s.emit("session.authenticated", acct.ID)

	// Best-effort side effects: seeding and the follow-up refreshes never
	// roll back the created session.
	if err := s.seedWelcomeContact(ctx, created.ID); err != nil {
		s.logger.Warn("welcome contact seeding failed", zap.Error(err))
	}
	s.RefreshRoster(ctx)
	s.RefreshSummaries(ctx)

	return &acct, nil
}

// RefreshRoster refetches the account list and replaces it wholesale.
func (s *Synchronizer) RefreshRoster(ctx context.Context) {
	s.mu.Lock()
	s.rosterGen++
	gen := s.rosterGen
	s.mu.Unlock()

	s.beginLoading()
	accounts, err := s.gw.ListAccounts(ctx)
	s.endLoading()
	if err != nil {
		s.logger.Error("roster refresh failed", zap.Error(err))
		s.setError("failed to load accounts")
		return
	}

	s.mu.Lock()
	if gen != s.rosterGen {
		s.mu.Unlock()
		return
	}
	s.roster = mapAccounts(accounts)
	s.clearErrorLocked()
	s.mu.Unlock()
	s.emit("roster.updated", len(accounts))
}

// CurrentAccount returns the session account, if any.
func (s *Synchronizer) CurrentAccount() (Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Account{}, false
	}
	return *s.current, true
}

// Roster returns a snapshot of the known accounts.
func (s *Synchronizer) Roster() []Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Account, len(s.roster))
	copy(out, s.roster)
	return out
}

// SelectedPeer returns the id of the active conversation peer, or "".
func (s *Synchronizer) SelectedPeer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedPeer
}

// Messages returns a snapshot of the peer's bucket in arrival order.
func (s *Synchronizer) Messages(peerID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.buckets[peerID]
	out := make([]Message, len(bucket))
	copy(out, bucket)
	return out
}

// State returns the session lifecycle state.
func (s *Synchronizer) State() status.State {
	return s.machine.Current()
}

// Loading reports whether any gateway call is in flight.
func (s *Synchronizer) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadingOps > 0
}

// Err returns the global user-visible error message, or "" when clear.
func (s *Synchronizer) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Synchronizer) beginLoading() {
	s.mu.Lock()
	s.loadingOps++
	s.mu.Unlock()
}

func (s *Synchronizer) endLoading() {
	s.mu.Lock()
	if s.loadingOps > 0 {
		s.loadingOps--
	}
	s.mu.Unlock()
}

func (s *Synchronizer) setError(msg string) {
	s.mu.Lock()
	s.lastErr = msg
	s.mu.Unlock()
	s.emit("session.error", msg)
}

func (s *Synchronizer) clearErrorLocked() {
	s.lastErr = ""
}

func mapAccounts(accounts []gateway.Account) []Account {
	out := make([]Account, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, fromWireAccount(a))
	}
	return out
}

func findAccountLocked(roster []Account, id string) *Account {
	for i := range roster {
		if roster[i].ID == id {
			return &roster[i]
		}
	}
	return nil
}
