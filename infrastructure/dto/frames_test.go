package dto

import (
	"testing"
	"time"

	"vetchat/domain"
	"vetchat/domain/event"
	"vetchat/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestEventFrame_round_trip(t *testing.T) {
	req := require.New(t)
	createdAt := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	sent := event.NewMessage{
		Message: domain.Message{
			ID: uuid.New(), ConversationID: "c-1", SenderID: "vet-1", RecipientID: "owner-1",
			Content: "Rex is ready", CreatedAt: createdAt,
		},
		Sender: domain.Profile{ID: "vet-1", DisplayName: "Dr Martin", Role: domain.RoleProvider},
	}

	// When the event is framed then decoded on the client side
	frame, err := EventFrame(sent)
	req.NoError(err)
	req.Equal(FrameNewMessage, frame.Type)
	decoded, err := ToEvent(frame)

	// Then the client sees the same message and sender
	req.NoError(err)
	req.Equal(sent, decoded)
}

func TestToEvent_messagesRead(t *testing.T) {
	req := require.New(t)
	readAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	frame, err := EventFrame(event.MessagesRead{ConversationID: "c-1", ReaderID: "owner-1", Count: 3, ReadAt: readAt})
	req.NoError(err)

	decoded, err := ToEvent(frame)
	req.NoError(err)
	req.Equal(event.MessagesRead{ConversationID: "c-1", ReaderID: "owner-1", Count: 3, ReadAt: readAt}, decoded)
}

func TestToEvent_rejects_other_frames(t *testing.T) {
	req := require.New(t)

	_, err := ToEvent(CountAck("r-1", 2))
	req.ErrorIs(err, errors.ErrInvalidArgument)

	_, err = ToEvent(Frame{Type: FrameNewMessage, Payload: []byte(`{"id":"not-a-uuid"}`)})
	req.ErrorIs(err, errors.ErrInvalidArgument)
}

func TestFailedAck_carries_public_error(t *testing.T) {
	req := require.New(t)

	ack := FailedAck("r-1", errors.ErrNotFound)

	req.Equal(FrameAck, ack.Type)
	req.False(*ack.Success)
	req.Equal("not_found", ack.Error.Code)
	req.Nil(ack.Message)
}
