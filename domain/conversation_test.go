package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNewPair_is_order_independent(t *testing.T) {
	req := require.New(t)

	req.Equal([2]string{"owner-1", "vet-1"}, NewPair("vet-1", "owner-1"))
	req.Equal(NewPair("owner-1", "vet-1"), NewPair("vet-1", "owner-1"))
	req.Equal("owner-1:vet-1", PairKey("vet-1", "owner-1"))
}

func TestConversation_participants(t *testing.T) {
	req := require.New(t)
	conversation := Conversation{ID: "c-1", Participants: NewPair("vet-1", "owner-1")}

	req.True(conversation.HasParticipant("vet-1"))
	req.False(conversation.HasParticipant("clinic-7"))
	req.True(conversation.Includes("vet-1", "owner-1"))
	req.True(conversation.Includes("owner-1", "vet-1"))
	req.False(conversation.Includes("owner-1", "clinic-7"))
	req.Equal("owner-1", conversation.Counterpart("vet-1"))
	req.Equal("vet-1", conversation.Counterpart("owner-1"))
	req.Empty(conversation.Counterpart("clinic-7"))
	req.Equal("/messages/c-1", conversation.ActionLink())
}

func TestValidUserID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"owner-1", true},
		{"a1b2c3d4-e5f6", true},
		{"", false},
		{"with space", false},
		{"with:colon", false},
		{"accentué", false},
		{strings.Repeat("x", 129), false},
	}
	for _, tt := range tests {
		require.Equal(t, tt.valid, ValidUserID(tt.id), tt.id)
	}
}

func TestNewMessageNotification(t *testing.T) {
	req := require.New(t)
	conversation := Conversation{ID: "c-1", Participants: NewPair("vet-1", "owner-1")}
	message := Message{
		ID: uuid.New(), ConversationID: "c-1", SenderID: "owner-1", RecipientID: "vet-1",
		Content: strings.Repeat("é", 150), CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	notification := NewMessageNotification("n-1", conversation, message, Profile{ID: "owner-1", DisplayName: "Anna"})

	req.Equal("vet-1", notification.RecipientID)
	req.Equal("New message from Anna", notification.Title)
	req.Equal(NotificationNewMessage, notification.Type)
	req.Equal("/messages/c-1", notification.ActionLink)
	req.Equal(message.CreatedAt, notification.CreatedAt)
	// The preview is cut on characters, not bytes.
	req.Equal(notificationPreviewLength+1, len([]rune(notification.Body)))
	req.True(strings.HasSuffix(notification.Body, "…"))

	anonymous := NewMessageNotification("n-2", conversation, message, AnonymousProfile("owner-1"))
	req.Equal("New message", anonymous.Title)
}
