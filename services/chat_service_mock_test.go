package services

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"vetchat/domain"
	"vetchat/errors"
	"vetchat/mocks"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type mockedService struct {
	service       *ChatService
	presence      *mocks.MockIPresence
	conversations *mocks.MockIConversationRepository
	messages      *mocks.MockIMessageRepository
	profiles      *mocks.MockIProfileRepository
	notifier      *mocks.MockNotifier
	conversation  domain.Conversation
}

func newMockedService(t *testing.T) *mockedService {
	ctrl := gomock.NewController(t)
	m := &mockedService{
		presence:      mocks.NewMockIPresence(ctrl),
		conversations: mocks.NewMockIConversationRepository(ctrl),
		messages:      mocks.NewMockIMessageRepository(ctrl),
		profiles:      mocks.NewMockIProfileRepository(ctrl),
		notifier:      mocks.NewMockNotifier(ctrl),
		conversation: domain.Conversation{
			ID:           uuid.NewString(),
			Participants: domain.NewPair("owner-1", "vet-1"),
		},
	}
	m.service = NewChatService(logs.GetLoggerFromLevel(slog.LevelError),
		m.presence, m.conversations, m.messages, m.profiles, m.notifier, Options{})
	return m
}

func (m *mockedService) expectResolved() {
	m.conversations.EXPECT().
		FindOrCreate(gomock.Any(), "owner-1", "vet-1", gomock.Any()).
		Return(m.conversation, false, nil)
}

func (m *mockedService) expectStored() {
	m.messages.EXPECT().
		Store(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, message domain.Message) (domain.Message, error) {
			return message, nil
		})
}

func sendCommand() SendMessageCommand {
	return SendMessageCommand{SenderID: "owner-1", RecipientID: "vet-1", Content: "Hello", ConnectionID: "conn-1"}
}

func TestChatService_Send_store_failure_aborts_pipeline(t *testing.T) {
	req := require.New(t)
	m := newMockedService(t)

	// Given a store that is unavailable
	m.expectResolved()
	m.messages.EXPECT().
		Store(gomock.Any(), gomock.Any()).
		Return(domain.Message{}, fmt.Errorf("%w: disk full", errors.ErrTransientStore))

	// When a message is sent
	_, err := m.service.Send(context.Background(), sendCommand())

	// Then the error is returned and no side effect happens (strict mocks)
	req.ErrorIs(err, errors.ErrTransientStore)
	req.Equal("transient_store_error", errors.Code(err))
}

func TestChatService_Send_touch_failure_is_best_effort(t *testing.T) {
	req := require.New(t)
	m := newMockedService(t)

	m.expectResolved()
	m.expectStored()
	m.conversations.EXPECT().
		Touch(gomock.Any(), m.conversation.ID, gomock.Any()).
		Return(errors.ErrTransientStore)
	m.profiles.EXPECT().Get(gomock.Any(), "owner-1").Return(domain.Profile{}, errors.ErrNotFound)
	m.presence.EXPECT().IsOnline(gomock.Any(), "vet-1").Return(false)
	m.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil)
	m.presence.EXPECT().Deliver(gomock.Any(), "owner-1", gomock.Any(), "conn-1").Return(0)

	sent, err := m.service.Send(context.Background(), sendCommand())

	req.NoError(err)
	req.Equal(domain.AnonymousProfile("owner-1"), sent.Sender)
}

func TestChatService_Send_notification_failure_is_best_effort(t *testing.T) {
	req := require.New(t)
	m := newMockedService(t)

	m.expectResolved()
	m.expectStored()
	m.conversations.EXPECT().Touch(gomock.Any(), m.conversation.ID, gomock.Any()).Return(nil)
	m.profiles.EXPECT().Get(gomock.Any(), "owner-1").Return(domain.Profile{ID: "owner-1", DisplayName: "Anna"}, nil)
	m.presence.EXPECT().IsOnline(gomock.Any(), "vet-1").Return(false)
	m.notifier.EXPECT().
		Notify(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, n domain.Notification) error {
			req.Equal("vet-1", n.RecipientID)
			req.Equal("New message from Anna", n.Title)
			req.Equal(m.conversation.ID, n.ConversationID)
			return errors.ErrTransientStore
		})
	m.presence.EXPECT().Deliver(gomock.Any(), "owner-1", gomock.Any(), "conn-1").Return(0)

	_, err := m.service.Send(context.Background(), sendCommand())
	req.NoError(err)
}

func TestChatService_Send_falls_back_when_no_handle_accepts(t *testing.T) {
	req := require.New(t)
	m := newMockedService(t)

	// Given a recipient online whose only handle is dead
	m.expectResolved()
	m.expectStored()
	m.conversations.EXPECT().Touch(gomock.Any(), m.conversation.ID, gomock.Any()).Return(nil)
	m.profiles.EXPECT().Get(gomock.Any(), "owner-1").Return(domain.Profile{ID: "owner-1"}, nil)
	m.presence.EXPECT().IsOnline(gomock.Any(), "vet-1").Return(true)
	m.presence.EXPECT().Deliver(gomock.Any(), "vet-1", gomock.Any(), "").Return(0)

	// Then a notification is recorded instead
	m.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil)
	m.presence.EXPECT().Deliver(gomock.Any(), "owner-1", gomock.Any(), "conn-1").Return(1)

	_, err := m.service.Send(context.Background(), sendCommand())
	req.NoError(err)
}

func TestChatService_Send_stamps_server_time(t *testing.T) {
	req := require.New(t)
	m := newMockedService(t)
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m.service.now = func() time.Time { return fixed }

	m.expectResolved()
	m.messages.EXPECT().
		Store(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, message domain.Message) (domain.Message, error) {
			req.Equal(fixed, message.CreatedAt)
			req.Nil(message.ReadAt)
			req.Equal(m.conversation.ID, message.ConversationID)
			return message, nil
		})
	m.conversations.EXPECT().Touch(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	m.profiles.EXPECT().Get(gomock.Any(), gomock.Any()).Return(domain.Profile{}, errors.ErrNotFound)
	m.presence.EXPECT().IsOnline(gomock.Any(), "vet-1").Return(true)
	m.presence.EXPECT().Deliver(gomock.Any(), "vet-1", gomock.Any(), "").Return(2)
	m.presence.EXPECT().Deliver(gomock.Any(), "owner-1", gomock.Any(), "conn-1").Return(0)

	sent, err := m.service.Send(context.Background(), sendCommand())
	req.NoError(err)
	req.Equal(fixed, sent.Message.CreatedAt)
}

func TestChatService_MarkRead_store_failure(t *testing.T) {
	req := require.New(t)
	m := newMockedService(t)

	m.conversations.EXPECT().Get(gomock.Any(), m.conversation.ID).Return(m.conversation, nil)
	m.messages.EXPECT().
		MarkRead(gomock.Any(), m.conversation.ID, "vet-1", gomock.Any()).
		Return(0, errors.ErrTransientStore)

	_, err := m.service.MarkRead(context.Background(), MarkReadCommand{UserID: "vet-1", ConversationID: m.conversation.ID})
	req.ErrorIs(err, errors.ErrTransientStore)
}
