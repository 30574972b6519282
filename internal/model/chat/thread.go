package chat

// Thread is a read-only view of a conversation's recent history.
type Thread struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`
}
