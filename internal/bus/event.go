package bus

import "time"

// Event represents a domain event published on the bus.
//
// Kinds are dot-namespaced: "session.*" for identity lifecycle,
// "roster.*" for account list changes, "conversation.*" for peer
// bucket changes and "summary.*" for contact summary cache changes.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
