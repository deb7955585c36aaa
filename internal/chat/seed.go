package chat

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
)

// welcomeContactName is the display name of the contact every new
// account hears from first. Matched case-insensitively against the
// roster so it is only ever created once.
const welcomeContactName = "welcome bot"

var greetings = []string{
	"Welcome! Pick a contact on the left or add one by id to start chatting.",
	"Hey there, glad you made it. Send me a message any time to try things out.",
	"Hi! Your messages here are end-to-end encrypted. Say hello to someone!",
	"Welcome aboard. If anything looks off, a fresh sync usually sorts it out.",
	"Hello! I am the welcome bot. Reply to this message to see delivery states in action.",
}

// seedWelcomeContact ensures the welcome contact exists and sends one
// greeting from it to the freshly created account. Runs once per account
// creation; best-effort by contract, the caller only logs failures.
func (s *Synchronizer) seedWelcomeContact(ctx context.Context, newAccountID int64) error {
	accounts, err := s.gw.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("list accounts for seeding: %w", err)
	}

	var welcomeID int64 = -1
	for _, a := range accounts {
		if strings.EqualFold(a.Name, welcomeContactName) {
			welcomeID = a.ID
			break
		}
	}
	if welcomeID < 0 {
		created, err := s.gw.CreateAccount(ctx, welcomeContactName)
		if err != nil {
			return fmt.Errorf("create welcome contact: %w", err)
		}
		welcomeID = created.ID
	}

	greeting := greetings[rand.Intn(len(greetings))]
	if _, err := s.gw.SendMessage(ctx, welcomeID, newAccountID, greeting); err != nil {
		return fmt.Errorf("send greeting: %w", err)
	}
	return nil
}
