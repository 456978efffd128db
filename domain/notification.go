package domain

import "time"

type NotificationType string

const NotificationNewMessage NotificationType = "new_message"

// Notification is the offline fallback written for an unreachable recipient.
// Delivery (push, email) belongs to the notification subsystem.
type Notification struct {
	ID             string
	RecipientID    string
	Title          string
	Body           string
	Type           NotificationType
	ConversationID string
	ActionLink     string
	CreatedAt      time.Time
}

const notificationPreviewLength = 120

// NewMessageNotification builds the notification for a message that could not
// be delivered live.
func NewMessageNotification(id string, conversation Conversation, message Message, sender Profile) Notification {
	title := "New message"
	if sender.DisplayName != "" {
		title = "New message from " + sender.DisplayName
	}
	body := []rune(message.Content)
	if len(body) > notificationPreviewLength {
		body = append(body[:notificationPreviewLength], '…')
	}
	return Notification{
		ID:             id,
		RecipientID:    message.RecipientID,
		Title:          title,
		Body:           string(body),
		Type:           NotificationNewMessage,
		ConversationID: conversation.ID,
		ActionLink:     conversation.ActionLink(),
		CreatedAt:      message.CreatedAt,
	}
}
