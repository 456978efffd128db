// Package projection builds per-user read models of conversations.
// Handles ordering and unread counters.
// Does not emit events or touch storage directly.
package projection

import (
	"sort"

	"vetchat/domain"
	"vetchat/domain/event"
)

// ConversationSummary is one line of a user's conversation list.
type ConversationSummary struct {
	Conversation domain.Conversation
	Counterpart  domain.Profile
	UnreadCount  int
}

// Inbox holds the conversations of one user, most recently active first.
type Inbox struct {
	Owner         string
	Conversations []ConversationSummary
}

func NewInbox(owner string) *Inbox {
	return &Inbox{Owner: owner}
}

// Add inserts a summary, replacing any previous one for the same conversation.
func (i *Inbox) Add(summary ConversationSummary) {
	if idx := i.indexOf(summary.Conversation.ID); idx >= 0 {
		i.Conversations[idx] = summary
	} else {
		i.Conversations = append(i.Conversations, summary)
	}
	i.sort()
}

// Unread is the total of unread messages across conversations.
func (i *Inbox) Unread() int {
	total := 0
	for _, summary := range i.Conversations {
		total += summary.UnreadCount
	}
	return total
}

// Consume keeps the inbox current from live events.
func (i *Inbox) Consume(e event.Event) {
	switch evt := e.(type) {
	case event.NewMessage:
		i.onNewMessage(evt)
	case event.MessagesRead:
		if evt.ReaderID != i.Owner {
			return
		}
		if idx := i.indexOf(evt.ConversationID); idx >= 0 {
			i.Conversations[idx].UnreadCount = 0
		}
	}
}

func (i *Inbox) onNewMessage(evt event.NewMessage) {
	message := evt.Message
	if message.SenderID != i.Owner && message.RecipientID != i.Owner {
		return
	}
	idx := i.indexOf(message.ConversationID)
	if idx < 0 {
		summary := ConversationSummary{
			Conversation: domain.Conversation{
				ID:           message.ConversationID,
				Participants: domain.NewPair(message.SenderID, message.RecipientID),
				CreatedAt:    message.CreatedAt,
			},
			Counterpart: domain.AnonymousProfile(message.RecipientID),
		}
		if message.RecipientID == i.Owner {
			summary.Counterpart = evt.Sender
		}
		i.Conversations = append(i.Conversations, summary)
		idx = len(i.Conversations) - 1
	}

	summary := &i.Conversations[idx]
	preview := message.Preview()
	summary.Conversation.LastMessage = &preview
	if message.CreatedAt.After(summary.Conversation.UpdatedAt) {
		summary.Conversation.UpdatedAt = message.CreatedAt
	}
	if message.RecipientID == i.Owner {
		summary.UnreadCount++
		summary.Counterpart = evt.Sender
	}
	i.sort()
}

func (i *Inbox) indexOf(conversationID string) int {
	for idx, summary := range i.Conversations {
		if summary.Conversation.ID == conversationID {
			return idx
		}
	}
	return -1
}

func (i *Inbox) sort() {
	sort.SliceStable(i.Conversations, func(a, b int) bool {
		return i.Conversations[a].Conversation.UpdatedAt.After(i.Conversations[b].Conversation.UpdatedAt)
	})
}
