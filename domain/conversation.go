// Package domain contains core concepts of the messaging system.
// Conversations are strictly one-to-one; the participant pair is stored
// sorted so that the same two users always map to the same pair.
package domain

import (
	"strings"
	"time"
)

// KeySeparator never appears in a valid user id, so it can join ids in
// storage keys without ambiguity.
const KeySeparator = ":"

const maxUserIDLength = 128

type Conversation struct {
	ID           string
	Participants [2]string
	LastMessage  *MessagePreview
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MessagePreview is the denormalized pointer to the most recent message.
type MessagePreview struct {
	MessageID string
	SenderID  string
	Content   string
	CreatedAt time.Time
}

// NewPair returns the canonical, order independent participant pair.
func NewPair(userA, userB string) [2]string {
	if userB < userA {
		return [2]string{userB, userA}
	}
	return [2]string{userA, userB}
}

// PairKey is the canonical key of an unordered pair of users.
func PairKey(userA, userB string) string {
	pair := NewPair(userA, userB)
	return pair[0] + KeySeparator + pair[1]
}

func (c Conversation) PairKey() string {
	return PairKey(c.Participants[0], c.Participants[1])
}

func (c Conversation) HasParticipant(userID string) bool {
	return c.Participants[0] == userID || c.Participants[1] == userID
}

// Includes reports whether the conversation is exactly between the two users.
func (c Conversation) Includes(userA, userB string) bool {
	return c.Participants == NewPair(userA, userB)
}

// Counterpart returns the other participant, or "" when userID is not a participant.
func (c Conversation) Counterpart(userID string) string {
	switch userID {
	case c.Participants[0]:
		return c.Participants[1]
	case c.Participants[1]:
		return c.Participants[0]
	default:
		return ""
	}
}

// ActionLink is the client route opened from a notification.
func (c Conversation) ActionLink() string {
	return "/messages/" + c.ID
}

// ValidUserID accepts opaque printable ASCII identifiers without separators.
func ValidUserID(id string) bool {
	if id == "" || len(id) > maxUserIDLength || strings.Contains(id, KeySeparator) {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}
