package projection

import (
	"testing"
	"time"

	"vetchat/domain"
	"vetchat/domain/event"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestInbox_Add_orders_by_activity(t *testing.T) {
	req := require.New(t)
	now := time.Now()
	inbox := NewInbox("alice")

	// Given two conversations with different activity
	inbox.Add(ConversationSummary{Conversation: domain.Conversation{ID: "old", UpdatedAt: now.Add(-time.Hour)}})
	inbox.Add(ConversationSummary{Conversation: domain.Conversation{ID: "new", UpdatedAt: now}, UnreadCount: 2})

	// When the old one is replaced with fresher activity
	inbox.Add(ConversationSummary{Conversation: domain.Conversation{ID: "old", UpdatedAt: now.Add(time.Minute)}, UnreadCount: 1})

	// Then it moves to the top without being duplicated
	req.Len(inbox.Conversations, 2)
	req.Equal("old", inbox.Conversations[0].Conversation.ID)
	req.Equal(3, inbox.Unread())
}

func TestInbox_Consume_NewMessage(t *testing.T) {
	req := require.New(t)
	now := time.Now()
	inbox := NewInbox("alice")
	vet := domain.Profile{ID: "dr-bob", DisplayName: "Dr Bob", Role: domain.RoleProvider}

	incoming := event.NewMessage{
		Message: domain.Message{ID: uuid.New(), ConversationID: "c1", SenderID: "dr-bob", RecipientID: "alice", Content: "Hello", CreatedAt: now},
		Sender:  vet,
	}
	outgoing := event.NewMessage{
		Message: domain.Message{ID: uuid.New(), ConversationID: "c1", SenderID: "alice", RecipientID: "dr-bob", Content: "Hi", CreatedAt: now.Add(time.Second)},
		Sender:  domain.Profile{ID: "alice"},
	}

	// When an incoming then an outgoing message are observed
	inbox.Consume(incoming)
	inbox.Consume(outgoing)

	// Then one conversation is listed with the counterpart and one unread message
	req.Len(inbox.Conversations, 1)
	summary := inbox.Conversations[0]
	req.Equal(vet, summary.Counterpart)
	req.Equal(1, summary.UnreadCount)
	req.Equal("Hi", summary.Conversation.LastMessage.Content)
	req.Equal(now.Add(time.Second), summary.Conversation.UpdatedAt)
}

func TestInbox_Consume_ignores_foreign_messages(t *testing.T) {
	inbox := NewInbox("alice")
	inbox.Consume(event.NewMessage{Message: domain.Message{ConversationID: "c9", SenderID: "bob", RecipientID: "carol"}})
	require.Empty(t, inbox.Conversations)
}

func TestInbox_Consume_MessagesRead(t *testing.T) {
	req := require.New(t)
	inbox := NewInbox("alice")
	inbox.Add(ConversationSummary{Conversation: domain.Conversation{ID: "c1"}, UnreadCount: 4})

	// When the counterpart reads, the owner's counter is untouched
	inbox.Consume(event.MessagesRead{ConversationID: "c1", ReaderID: "bob", Count: 2})
	req.Equal(4, inbox.Unread())

	// When the owner reads from another device, the counter is cleared
	inbox.Consume(event.MessagesRead{ConversationID: "c1", ReaderID: "alice", Count: 4})
	req.Zero(inbox.Unread())
}
