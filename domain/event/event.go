package event

import (
	"time"

	"vetchat/domain"
)

const (
	NewMessageType   = "newMessage"
	MessagesReadType = "messagesRead"
)

// Event is pushed to live connections.
type Event interface {
	Name() string
}

// NewMessage carries a persisted message with the sender's public profile.
type NewMessage struct {
	Message domain.Message
	Sender  domain.Profile
}

func (NewMessage) Name() string { return NewMessageType }

// MessagesRead tells a sender that the counterpart read their messages.
type MessagesRead struct {
	ConversationID string
	ReaderID       string
	Count          int
	ReadAt         time.Time
}

func (MessagesRead) Name() string { return MessagesReadType }
