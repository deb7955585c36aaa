package gateway

// Account is a server-side account record.
type Account struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// WireMessage mirrors the server's message record. The server stores
// ciphertext but always returns the decrypted payload alongside it;
// clients only ever render Decrypted.
type WireMessage struct {
	ID          int64  `json:"id"`
	SenderID    int64  `json:"sender_id"`
	RecipientID int64  `json:"recipient_id"`
	Ciphertext  string `json:"ciphertext"`
	Nonce       string `json:"nonce"`
	Timestamp   string `json:"timestamp"`
	Decrypted   string `json:"decrypted"`
	Read        bool   `json:"read"`
}

// ContactSummary is one per-contact preview row for an account.
type ContactSummary struct {
	ContactID       int64  `json:"contact_id"`
	ContactName     string `json:"contact_name"`
	LastMessage     string `json:"last_message"`
	LastMessageTime string `json:"last_message_time"`
	UnreadCount     int    `json:"unread_count"`
}

// Health is the server health check response.
type Health struct {
	Status string `json:"status"`
}
