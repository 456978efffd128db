// Package dto holds the JSON shapes exchanged with clients over the
// websocket and the HTTP API.
package dto

import (
	"time"

	"vetchat/domain"
	"vetchat/projection"

	"github.com/samber/lo"
)

type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Role        string `json:"role,omitempty"`
}

type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	SenderID       string     `json:"senderId"`
	RecipientID    string     `json:"recipientId"`
	Content        string     `json:"content"`
	CreatedAt      time.Time  `json:"createdAt"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
	Sender         *Profile   `json:"sender,omitempty"`
}

type MessagePreview struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type Conversation struct {
	ID           string          `json:"id"`
	Participants []string        `json:"participants"`
	LastMessage  *MessagePreview `json:"lastMessage,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

type ConversationSummary struct {
	Conversation
	Counterpart Profile `json:"counterpart"`
	UnreadCount int     `json:"unreadCount"`
}

type MessagePage struct {
	Messages   []Message `json:"messages"`
	NextCursor *string   `json:"nextCursor"`
}

type ReadReceipt struct {
	ConversationID string    `json:"conversationId"`
	ReaderID       string    `json:"readerId"`
	Count          int       `json:"count"`
	ReadAt         time.Time `json:"readAt"`
}

type StartConversationRequest struct {
	ParticipantID string `json:"participantId" binding:"required"`
}

func FromProfile(p domain.Profile) Profile {
	return Profile{ID: p.ID, DisplayName: p.DisplayName, AvatarURL: p.AvatarURL, Role: string(p.Role)}
}

func FromMessage(m domain.Message) Message {
	return Message{
		ID:             m.ID.String(),
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		RecipientID:    m.RecipientID,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
		ReadAt:         m.ReadAt,
	}
}

// FromSentMessage attaches the sender's public profile to the message.
func FromSentMessage(m domain.Message, sender domain.Profile) Message {
	res := FromMessage(m)
	res.Sender = lo.ToPtr(FromProfile(sender))
	return res
}

func FromMessages(messages []domain.Message) []Message {
	return lo.Map(messages, func(m domain.Message, _ int) Message { return FromMessage(m) })
}

func FromConversation(c domain.Conversation) Conversation {
	res := Conversation{
		ID:           c.ID,
		Participants: c.Participants[:],
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
	if c.LastMessage != nil {
		res.LastMessage = &MessagePreview{
			ID:        c.LastMessage.MessageID,
			SenderID:  c.LastMessage.SenderID,
			Content:   c.LastMessage.Content,
			CreatedAt: c.LastMessage.CreatedAt,
		}
	}
	return res
}

func FromSummaries(summaries []projection.ConversationSummary) []ConversationSummary {
	return lo.Map(summaries, func(s projection.ConversationSummary, _ int) ConversationSummary {
		return ConversationSummary{
			Conversation: FromConversation(s.Conversation),
			Counterpart:  FromProfile(s.Counterpart),
			UnreadCount:  s.UnreadCount,
		}
	})
}
