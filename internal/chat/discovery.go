package chat

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/securechat/schat/internal/gateway"
	"go.uber.org/zap"
)

// LookupOutcome classifies a resolved add-by-id query.
type LookupOutcome int

const (
	// OutcomeSelf means the id belongs to the session account; adding
	// yourself is rejected.
	OutcomeSelf LookupOutcome = iota
	// OutcomeKnown means the account is already in the roster; the right
	// offer is "open chat", not "add".
	OutcomeKnown
	// OutcomeNew means the account resolved server-side and can be added
	// to the local roster.
	OutcomeNew
)

// LookupResult is the resolved outcome of a discovery query.
type LookupResult struct {
	Outcome LookupOutcome
	Account Account
}

// ErrInvalidQuery is returned for input that is not a positive integer
// literal; no network call is made for such input.
var ErrInvalidQuery = errors.New("chat: query is not a positive account id")

var queryRegexp = regexp.MustCompile(`^[1-9][0-9]*$`)

// ValidQuery reports whether query could be an account id.
func ValidQuery(query string) bool {
	return queryRegexp.MatchString(query)
}

// Discover resolves an add-by-id query. Self and already-known ids are
// classified against local state; only unknown ids reach the gateway.
// Negative outcomes set the discovery-scoped error, never the global flag.
func (s *Synchronizer) Discover(ctx context.Context, query string) (*LookupResult, error) {
	if !ValidQuery(query) {
		return nil, ErrInvalidQuery
	}

	s.mu.Lock()
	if s.current != nil && s.current.ID == query {
		self := *s.current
		s.discoveryErr = ""
		s.mu.Unlock()
		return &LookupResult{Outcome: OutcomeSelf, Account: self}, nil
	}
	if acct := findAccountLocked(s.roster, query); acct != nil {
		known := *acct
		s.discoveryErr = ""
		s.mu.Unlock()
		return &LookupResult{Outcome: OutcomeKnown, Account: known}, nil
	}
	s.mu.Unlock()

	acct, err := s.gw.GetAccount(ctx, apiID(query))
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			s.setDiscoveryError(fmt.Sprintf("no account with id %s", query))
			return nil, err
		}
		s.logger.Error("account lookup failed", zap.String("query", query), zap.Error(err))
		s.setDiscoveryError("lookup failed, check the server and try again")
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	s.mu.Lock()
	s.discoveryErr = ""
	s.mu.Unlock()
	return &LookupResult{Outcome: OutcomeNew, Account: fromWireAccount(*acct)}, nil
}

// AddContact appends a discovered account to the local roster. There is
// no server-side add: the relationship materializes the first time a
// message is exchanged.
func (s *Synchronizer) AddContact(acct Account) {
	s.mu.Lock()
	if findAccountLocked(s.roster, acct.ID) != nil {
		s.mu.Unlock()
		return
	}
	s.roster = append(s.roster, acct)
	n := len(s.roster)
	s.mu.Unlock()
	s.logger.Info("contact added", zap.String("account_id", acct.ID))
	s.emit("roster.updated", n)
}

// DiscoveryErr returns the discovery-scoped error message, or "".
func (s *Synchronizer) DiscoveryErr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discoveryErr
}

// ClearDiscoveryErr clears the discovery-scoped error; call it whenever
// the query input changes.
func (s *Synchronizer) ClearDiscoveryErr() {
	s.mu.Lock()
	s.discoveryErr = ""
	s.mu.Unlock()
}

func (s *Synchronizer) setDiscoveryError(msg string) {
	s.mu.Lock()
	s.discoveryErr = msg
	s.mu.Unlock()
}
