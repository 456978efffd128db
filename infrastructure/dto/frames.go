package dto

import (
	"encoding/json"
	"fmt"

	"vetchat/domain"
	"vetchat/domain/event"
	"vetchat/errors"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Frame types.
const (
	FrameSendMessage  = "sendMessage"
	FrameMarkAsRead   = "markAsRead"
	FrameAck          = "ack"
	FrameError        = "error"
	FrameConnected    = "connected"
	FrameNewMessage   = event.NewMessageType
	FrameMessagesRead = event.MessagesReadType
)

// Frame is the envelope of every websocket message, in both directions.
// Client frames only use Type, RequestID and Payload.
type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Success   *bool           `json:"success,omitempty"`
	Message   *Message        `json:"message,omitempty"`
	Count     *int            `json:"count,omitempty"`
	Error     *Error          `json:"error,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SendMessagePayload struct {
	RecipientID    string  `json:"recipientId"`
	Content        string  `json:"content"`
	ConversationID *string `json:"conversationId,omitempty"`
}

type MarkAsReadPayload struct {
	ConversationID string `json:"conversationId"`
}

type ConnectedPayload struct {
	UserID       string `json:"userId"`
	ConnectionID string `json:"connectionId"`
}

func MessageAck(requestID string, message Message) Frame {
	return Frame{Type: FrameAck, RequestID: requestID, Success: lo.ToPtr(true), Message: &message}
}

func CountAck(requestID string, count int) Frame {
	return Frame{Type: FrameAck, RequestID: requestID, Success: lo.ToPtr(true), Count: &count}
}

// FailedAck answers a request that produced err.
func FailedAck(requestID string, err error) Frame {
	return Frame{Type: FrameAck, RequestID: requestID, Success: lo.ToPtr(false), Error: toError(err)}
}

// ErrorFrame reports a failure that has no ack to carry it.
func ErrorFrame(requestID string, err error) Frame {
	return Frame{Type: FrameError, RequestID: requestID, Error: toError(err)}
}

func toError(err error) *Error {
	return &Error{Code: errors.Code(err), Message: errors.PublicMessage(err)}
}

// WithPayload returns a frame of the given type carrying payload.
func WithPayload(frameType string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: frameType, Payload: raw}, nil
}

// EventFrame encodes a live event for a client.
func EventFrame(e event.Event) (Frame, error) {
	switch evt := e.(type) {
	case event.NewMessage:
		return WithPayload(FrameNewMessage, FromSentMessage(evt.Message, evt.Sender))
	case event.MessagesRead:
		return WithPayload(FrameMessagesRead, ReadReceipt{
			ConversationID: evt.ConversationID,
			ReaderID:       evt.ReaderID,
			Count:          evt.Count,
			ReadAt:         evt.ReadAt,
		})
	default:
		return Frame{}, fmt.Errorf("unsupported event %s", e.Name())
	}
}

// Decode unmarshals the frame payload into target.
func (f Frame) Decode(target any) error {
	if len(f.Payload) == 0 {
		return fmt.Errorf("%w: payload is required", errors.ErrInvalidArgument)
	}
	if err := json.Unmarshal(f.Payload, target); err != nil {
		return fmt.Errorf("%w: malformed payload", errors.ErrInvalidArgument)
	}
	return nil
}

// ToEvent decodes a server pushed frame back into its live event.
func ToEvent(f Frame) (event.Event, error) {
	switch f.Type {
	case FrameNewMessage:
		var message Message
		if err := f.Decode(&message); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(message.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid message id", errors.ErrInvalidArgument)
		}
		evt := event.NewMessage{Message: domain.Message{
			ID:             id,
			ConversationID: message.ConversationID,
			SenderID:       message.SenderID,
			RecipientID:    message.RecipientID,
			Content:        message.Content,
			CreatedAt:      message.CreatedAt,
			ReadAt:         message.ReadAt,
		}}
		if message.Sender != nil {
			evt.Sender = domain.Profile{
				ID:          message.Sender.ID,
				DisplayName: message.Sender.DisplayName,
				AvatarURL:   message.Sender.AvatarURL,
				Role:        domain.Role(message.Sender.Role),
			}
		} else {
			evt.Sender = domain.AnonymousProfile(message.SenderID)
		}
		return evt, nil
	case FrameMessagesRead:
		var receipt ReadReceipt
		if err := f.Decode(&receipt); err != nil {
			return nil, err
		}
		return event.MessagesRead{
			ConversationID: receipt.ConversationID,
			ReaderID:       receipt.ReaderID,
			Count:          receipt.Count,
			ReadAt:         receipt.ReadAt,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q is not an event frame", errors.ErrInvalidArgument, f.Type)
	}
}
