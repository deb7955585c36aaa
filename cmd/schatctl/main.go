package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/securechat/schat/internal/bus"
	"github.com/securechat/schat/internal/chat"
	"github.com/securechat/schat/internal/config"
	"github.com/securechat/schat/internal/gateway"
	"github.com/securechat/schat/internal/identity"
	"github.com/securechat/schat/internal/profile"
	"github.com/securechat/schat/internal/status"
)

func main() {
	_ = godotenv.Load()

	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.LoadOrDefault(profile.ConfigPath())
	gw := gateway.New(cfg.ServerURL, cfg.RequestTimeout())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout())
	defer cancel()

	// Health does not need a profile or a session.
	if args[0] == "health" {
		cmdHealth(ctx, gw, *jsonFlag)
		return
	}

	if err := profile.EnsureDir(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	store, err := identity.Open(profile.IdentityDBPath(profileName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()
	if _, err := store.Migrate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	sync := chat.New(gw, store, status.NewMachine(nil), bus.New(), nil, cfg.DeliveryDelay())
	sync.Bootstrap(ctx)

	switch args[0] {
	case "status":
		cmdStatus(sync, profileName, *jsonFlag)
	case "login":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: schatctl login <account-id>")
			os.Exit(1)
		}
		cmdLogin(sync, args[1])
	case "create":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: schatctl create <display-name>")
			os.Exit(1)
		}
		cmdCreate(ctx, sync, args[1], *jsonFlag)
	case "contacts":
		cmdContacts(ctx, sync, *jsonFlag)
	case "history":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: schatctl history <peer-id>")
			os.Exit(1)
		}
		cmdHistory(ctx, sync, args[1], *jsonFlag)
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: schatctl send <peer-id> <text>")
			os.Exit(1)
		}
		cmdSend(ctx, sync, cfg, args[1], args[2])
	case "find":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: schatctl find <account-id>")
			os.Exit(1)
		}
		cmdFind(ctx, sync, args[1], *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: schatctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                 Show session status")
	fmt.Fprintln(os.Stderr, "  health                 Check server health")
	fmt.Fprintln(os.Stderr, "  login <account-id>     Log in as an existing account")
	fmt.Fprintln(os.Stderr, "  create <display-name>  Create an account and log in")
	fmt.Fprintln(os.Stderr, "  contacts               List contacts with previews and unread counts")
	fmt.Fprintln(os.Stderr, "  history <peer-id>      Show the conversation with a contact")
	fmt.Fprintln(os.Stderr, "  send <peer-id> <text>  Send a message")
	fmt.Fprintln(os.Stderr, "  find <account-id>      Look up an account by id")
}

func cmdHealth(ctx context.Context, gw *gateway.Client, jsonOut bool) {
	h, err := gw.GetHealth(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: server unreachable: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(h)
		return
	}
	fmt.Printf("Server: %s\n", h.Status)
}

func cmdStatus(sync *chat.Synchronizer, profileName string, jsonOut bool) {
	acct, loggedIn := sync.CurrentAccount()
	if jsonOut {
		out := map[string]any{
			"profile": profileName,
			"state":   string(sync.State()),
		}
		if loggedIn {
			out["account_id"] = acct.ID
			out["display_name"] = acct.DisplayName
		}
		if msg := sync.Err(); msg != "" {
			out["error"] = msg
		}
		outputJSON(out)
		return
	}
	fmt.Printf("Profile: %s\n", profileName)
	fmt.Printf("State:   %s\n", sync.State())
	if loggedIn {
		fmt.Printf("Account: %s (id %s)\n", acct.DisplayName, acct.ID)
	} else {
		fmt.Println("Account: not logged in")
	}
	if msg := sync.Err(); msg != "" {
		fmt.Printf("Error:   %s\n", msg)
	}
}

func cmdLogin(sync *chat.Synchronizer, id string) {
	if msg := sync.Err(); msg != "" {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
		os.Exit(1)
	}
	if !sync.LoginByID(id) {
		fmt.Fprintf(os.Stderr, "error: no account with id %s\n", id)
		os.Exit(1)
	}
	acct, _ := sync.CurrentAccount()
	fmt.Printf("Logged in as %s (id %s)\n", acct.DisplayName, acct.ID)
}

func cmdCreate(ctx context.Context, sync *chat.Synchronizer, name string, jsonOut bool) {
	acct, err := sync.CreateAndLogin(ctx, name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(map[string]string{"account_id": acct.ID, "display_name": acct.DisplayName})
		return
	}
	fmt.Printf("Created account %s (id %s)\n", acct.DisplayName, acct.ID)
}

func cmdContacts(ctx context.Context, sync *chat.Synchronizer, jsonOut bool) {
	self := requireSession(sync)
	sync.RefreshSummaries(ctx)

	type row struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Preview string `json:"preview"`
		Time    string `json:"time,omitempty"`
		Unread  int    `json:"unread"`
	}
	var rows []row
	for _, acct := range sync.Roster() {
		if acct.ID == self.ID {
			continue
		}
		r := row{ID: acct.ID, Name: acct.DisplayName, Unread: sync.GetUnreadCount(acct.ID)}
		if p, ok := sync.GetLastMessage(acct.ID); ok {
			r.Preview = p.Text
			r.Time = p.Time
		} else {
			r.Preview = "no preview available"
		}
		rows = append(rows, r)
	}

	if jsonOut {
		outputJSON(rows)
		return
	}
	if len(rows) == 0 {
		fmt.Println("No contacts yet.")
		return
	}
	for _, r := range rows {
		badge := ""
		if r.Unread > 0 {
			badge = fmt.Sprintf(" [%d unread]", r.Unread)
		}
		fmt.Printf("%-6s %-20s %s%s\n", r.ID, r.Name, r.Preview, badge)
	}
}

func cmdHistory(ctx context.Context, sync *chat.Synchronizer, peerID string, jsonOut bool) {
	self := requireSession(sync)
	if err := sync.SelectPeer(ctx, peerID); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	msgs := sync.Messages(peerID)
	if jsonOut {
		outputJSON(msgs)
		return
	}
	if len(msgs) == 0 {
		fmt.Println("No messages yet.")
		return
	}
	for _, m := range msgs {
		who := "them"
		if m.SenderID == self.ID {
			who = "you"
		}
		ts := ""
		if !m.CreatedAt.IsZero() {
			ts = m.CreatedAt.Format("2006-01-02 15:04")
		}
		fmt.Printf("%-16s %-4s [%s] %s\n", ts, who, m.Status, m.Content)
	}
}

func cmdSend(ctx context.Context, sync *chat.Synchronizer, cfg *config.Config, peerID, text string) {
	requireSession(sync)
	if err := sync.SelectPeer(ctx, peerID); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := sync.SendMessage(ctx, text); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	// Give the delivery timer a chance to fire so the final state prints.
	time.Sleep(cfg.DeliveryDelay() + 50*time.Millisecond)
	msgs := sync.Messages(peerID)
	if len(msgs) > 0 {
		last := msgs[len(msgs)-1]
		fmt.Printf("Sent [%s]: %s\n", last.Status, last.Content)
	} else {
		fmt.Println("Sent.")
	}
}

func cmdFind(ctx context.Context, sync *chat.Synchronizer, query string, jsonOut bool) {
	requireSession(sync)
	res, err := sync.Discover(ctx, query)
	if err != nil {
		if errors.Is(err, chat.ErrInvalidQuery) {
			fmt.Fprintln(os.Stderr, "error: account id must be a positive number")
		} else if msg := sync.DiscoveryErr(); msg != "" {
			fmt.Fprintf(os.Stderr, "error: %s\n", msg)
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(map[string]any{
			"id":      res.Account.ID,
			"name":    res.Account.DisplayName,
			"outcome": outcomeLabel(res.Outcome),
		})
		return
	}
	switch res.Outcome {
	case chat.OutcomeSelf:
		fmt.Printf("%s (id %s) is you.\n", res.Account.DisplayName, res.Account.ID)
	case chat.OutcomeKnown:
		fmt.Printf("%s (id %s) is already in your contacts.\n", res.Account.DisplayName, res.Account.ID)
	case chat.OutcomeNew:
		fmt.Printf("Found %s (id %s). Send them a message to start a conversation.\n", res.Account.DisplayName, res.Account.ID)
	}
}

func outcomeLabel(o chat.LookupOutcome) string {
	switch o {
	case chat.OutcomeSelf:
		return "self"
	case chat.OutcomeKnown:
		return "known"
	default:
		return "new"
	}
}

func requireSession(sync *chat.Synchronizer) chat.Account {
	acct, ok := sync.CurrentAccount()
	if !ok {
		fmt.Fprintln(os.Stderr, "error: not logged in; run schatctl login <account-id> or schatctl create <display-name>")
		os.Exit(1)
	}
	return acct
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
