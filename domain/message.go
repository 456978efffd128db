package domain

import (
	"time"

	"github.com/google/uuid"
)

// MaxContentLength is the maximum message length, in characters.
const MaxContentLength = 2000

// Message is immutable once stored, except for ReadAt.
type Message struct {
	ID             uuid.UUID
	ConversationID string
	SenderID       string
	RecipientID    string
	Content        string
	CreatedAt      time.Time
	ReadAt         *time.Time
}

func (m Message) IsRead() bool {
	return m.ReadAt != nil
}

func (m Message) Preview() MessagePreview {
	return MessagePreview{
		MessageID: m.ID.String(),
		SenderID:  m.SenderID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}
