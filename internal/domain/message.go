package domain

// InboundMessage is a chat message as seen by the relay.
type InboundMessage struct {
	ChatID    int64
	MessageID int
	SenderID  int64
	Username  string
	FirstName string
	Text      string
	// Group is true for group and supergroup chats.
	Group bool
}

// SenderHandle returns the name used to credit the sender in a caption.
func (m InboundMessage) SenderHandle() string {
	if m.Username != "" {
		return "@" + m.Username
	}
	return "@" + m.FirstName
}
