package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"vetchat/contract"
	"vetchat/domain"
	"vetchat/domain/event"
	"vetchat/errors"
	"vetchat/observability"
	"vetchat/projection"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const (
	defaultPageSize        = 50
	defaultMaxPageSize     = 200
	defaultDeliveryTimeout = 2 * time.Second
)

type IChatService interface {
	Join(ctx context.Context, profile domain.Profile, conn contract.Connection) error
	Leave(ctx context.Context, conn contract.Connection) error
	Send(ctx context.Context, cmd SendMessageCommand) (event.NewMessage, error)
	StartConversation(ctx context.Context, cmd StartConversationCommand) (domain.Conversation, error)
	MarkRead(ctx context.Context, cmd MarkReadCommand) (int, error)
	ListConversations(ctx context.Context, userID string) ([]projection.ConversationSummary, error)
	GetMessages(ctx context.Context, cmd GetMessagesCommand) (MessagePage, error)
}

type Options struct {
	MaxContentLength      int
	DefaultPageSize       int
	MaxPageSize           int
	DeliveryTimeout       time.Duration
	SendRatePerSecond     float64
	SendRateBurst         int
	RequireKnownRecipient bool
}

// MessagePage is a chronological slice of history. NextCursor points to
// older messages and is nil on the first message of the conversation.
type MessagePage struct {
	Messages   []domain.Message
	NextCursor *string
}

type ChatService struct {
	log           *slog.Logger
	presence      contract.IPresence
	conversations contract.IConversationRepository
	messages      contract.IMessageRepository
	profiles      contract.IProfileRepository
	notifier      contract.Notifier
	limiter       *senderLimiter
	resolves      singleflight.Group
	options       Options
	now           func() time.Time
}

func NewChatService(log *slog.Logger, presence contract.IPresence,
	conversations contract.IConversationRepository, messages contract.IMessageRepository,
	profiles contract.IProfileRepository, notifier contract.Notifier, options Options) *ChatService {
	if options.MaxContentLength <= 0 {
		options.MaxContentLength = domain.MaxContentLength
	}
	if options.DefaultPageSize <= 0 {
		options.DefaultPageSize = defaultPageSize
	}
	if options.MaxPageSize <= 0 {
		options.MaxPageSize = defaultMaxPageSize
	}
	if options.DeliveryTimeout <= 0 {
		options.DeliveryTimeout = defaultDeliveryTimeout
	}
	return &ChatService{
		log:           log,
		presence:      presence,
		conversations: conversations,
		messages:      messages,
		profiles:      profiles,
		notifier:      notifier,
		limiter:       newSenderLimiter(options.SendRatePerSecond, options.SendRateBurst),
		options:       options,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Join records the public profile carried by the credential and registers the
// connection. The user is online once Join returns without error.
func (s *ChatService) Join(ctx context.Context, profile domain.Profile, conn contract.Connection) error {
	if !domain.ValidUserID(profile.ID) {
		return fmt.Errorf("%w: invalid user id", errors.ErrAuthentication)
	}
	if err := s.profiles.Put(ctx, profile); err != nil {
		s.log.Warn("Profile not recorded", "user_id", profile.ID, "error", err)
	}
	if err := s.presence.Register(ctx, profile.ID, conn); err != nil {
		return err
	}
	s.log.Debug("Connection joined", "user_id", profile.ID, "conn_id", conn.ID())
	return nil
}

func (s *ChatService) Leave(ctx context.Context, conn contract.Connection) error {
	offline, err := s.presence.Unregister(ctx, conn)
	if err != nil {
		return err
	}
	s.log.Debug("Connection left", "conn_id", conn.ID(), "offline", offline)
	return nil
}

// Send runs the message pipeline: validate, resolve the conversation, persist,
// then deliver live or fall back to a notification.
// Only the first three steps can fail the call; once the message is stored the
// remaining side effects are logged and counted, never returned.
func (s *ChatService) Send(ctx context.Context, cmd SendMessageCommand) (event.NewMessage, error) {
	start := time.Now()
	sent, err := s.send(ctx, cmd)
	observability.SendDuration.Observe(time.Since(start).Seconds())
	observability.MessagesSent.WithLabelValues(resultLabel(err)).Inc()
	return sent, err
}

func (s *ChatService) send(ctx context.Context, cmd SendMessageCommand) (event.NewMessage, error) {
	if err := validateSend(cmd, s.options.MaxContentLength); err != nil {
		return event.NewMessage{}, err
	}
	now := s.now()
	if !s.limiter.Allow(cmd.SenderID, now) {
		return event.NewMessage{}, errors.ErrRateLimited
	}

	var (
		conversation domain.Conversation
		err          error
	)
	if cmd.ConversationID != nil {
		conversation, err = s.conversationOf(ctx, *cmd.ConversationID, cmd.SenderID, cmd.RecipientID)
	} else {
		conversation, err = s.resolve(ctx, cmd.SenderID, cmd.RecipientID)
	}
	if err != nil {
		return event.NewMessage{}, err
	}

	// The caller may go away (socket closed) while the write is in flight.
	storeCtx := context.WithoutCancel(ctx)
	message, err := s.messages.Store(storeCtx, domain.Message{
		ID:             uuid.New(),
		ConversationID: conversation.ID,
		SenderID:       cmd.SenderID,
		RecipientID:    cmd.RecipientID,
		Content:        cmd.Content,
		CreatedAt:      now,
	})
	if err != nil {
		s.log.Error("Message not stored", "conversation_id", conversation.ID, "user_id", cmd.SenderID, "error", err)
		return event.NewMessage{}, err
	}

	if err = s.conversations.Touch(storeCtx, conversation.ID, message.Preview()); err != nil {
		observability.BestEffortFailures.WithLabelValues("touch").Inc()
		s.log.Warn("Conversation preview not updated", "conversation_id", conversation.ID, "error", err)
	}

	sent := event.NewMessage{Message: message, Sender: s.profile(storeCtx, cmd.SenderID)}
	s.deliver(storeCtx, conversation, sent, cmd.ConnectionID)
	return sent, nil
}

// deliver pushes the message to the recipient's handles, or records a
// notification when none of them took it, then echoes it to the sender's
// other handles.
func (s *ChatService) deliver(ctx context.Context, conversation domain.Conversation, sent event.NewMessage, fromConnID string) {
	ctx, cancel := context.WithTimeout(ctx, s.options.DeliveryTimeout)
	defer cancel()
	message := sent.Message

	delivered := 0
	if s.presence.IsOnline(ctx, message.RecipientID) {
		delivered = s.presence.Deliver(ctx, message.RecipientID, sent, "")
	}
	if delivered > 0 {
		observability.Deliveries.WithLabelValues("live").Inc()
	} else {
		s.notify(ctx, conversation, sent)
	}

	if echoed := s.presence.Deliver(ctx, message.SenderID, sent, fromConnID); echoed > 0 {
		observability.Deliveries.WithLabelValues("echo").Add(float64(echoed))
	}
}

func (s *ChatService) notify(ctx context.Context, conversation domain.Conversation, sent event.NewMessage) {
	notification := domain.NewMessageNotification(uuid.NewString(), conversation, sent.Message, sent.Sender)
	if err := s.notifier.Notify(ctx, notification); err != nil {
		observability.BestEffortFailures.WithLabelValues("notification").Inc()
		s.log.Warn("Notification not recorded",
			"user_id", notification.RecipientID, "conversation_id", conversation.ID, "error", err)
		return
	}
	observability.Deliveries.WithLabelValues("notification").Inc()
}

// StartConversation returns the conversation between the caller and
// the participant, creating it on first contact.
func (s *ChatService) StartConversation(ctx context.Context, cmd StartConversationCommand) (domain.Conversation, error) {
	if err := validateCommand(cmd); err != nil {
		return domain.Conversation{}, err
	}
	return s.resolve(ctx, cmd.UserID, cmd.ParticipantID)
}

// resolve collapses concurrent in-process lookups of the same pair; the store
// transaction guarantees uniqueness across processes.
func (s *ChatService) resolve(ctx context.Context, userA, userB string) (domain.Conversation, error) {
	if s.options.RequireKnownRecipient {
		known, err := s.profiles.Exists(ctx, userB)
		if err != nil {
			return domain.Conversation{}, err
		}
		if !known {
			return domain.Conversation{}, fmt.Errorf("%w: user %s", errors.ErrNotFound, userB)
		}
	}

	value, err, _ := s.resolves.Do(domain.PairKey(userA, userB), func() (any, error) {
		conversation, created, err := s.conversations.FindOrCreate(context.WithoutCancel(ctx), userA, userB, s.now())
		if err != nil {
			return domain.Conversation{}, err
		}
		if created {
			observability.ConversationsCreated.Inc()
			s.log.Info("Conversation started", "conversation_id", conversation.ID)
		}
		return conversation, nil
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return value.(domain.Conversation), nil
}

// conversationOf loads an explicit conversation and checks it is exactly
// between sender and recipient.
func (s *ChatService) conversationOf(ctx context.Context, conversationID, senderID, recipientID string) (domain.Conversation, error) {
	conversation, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return domain.Conversation{}, err
	}
	if !conversation.Includes(senderID, recipientID) {
		return domain.Conversation{}, fmt.Errorf("%w: conversation %s is not between %s and %s",
			errors.ErrAuthorization, conversationID, senderID, recipientID)
	}
	return conversation, nil
}

// MarkRead stamps every unread message addressed to the user in the
// conversation and returns how many changed. Calling it again returns 0.
func (s *ChatService) MarkRead(ctx context.Context, cmd MarkReadCommand) (int, error) {
	if err := validateCommand(cmd); err != nil {
		return 0, err
	}
	conversation, err := s.participantOf(ctx, cmd.ConversationID, cmd.UserID)
	if err != nil {
		return 0, err
	}

	readAt := s.now()
	count, err := s.messages.MarkRead(ctx, conversation.ID, cmd.UserID, readAt)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}
	observability.MessagesRead.Add(float64(count))

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.options.DeliveryTimeout)
	defer cancel()
	s.presence.Deliver(ctx, conversation.Counterpart(cmd.UserID), event.MessagesRead{
		ConversationID: conversation.ID,
		ReaderID:       cmd.UserID,
		Count:          count,
		ReadAt:         readAt,
	}, "")
	return count, nil
}

// ListConversations returns the user's conversations, most recently active
// first, with the unread count and the other participant's profile.
func (s *ChatService) ListConversations(ctx context.Context, userID string) ([]projection.ConversationSummary, error) {
	if !domain.ValidUserID(userID) {
		return nil, fmt.Errorf("%w: invalid user id", errors.ErrInvalidArgument)
	}
	conversations, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	inbox := projection.NewInbox(userID)
	for _, conversation := range conversations {
		unread, err := s.messages.CountUnread(ctx, conversation.ID, userID)
		if err != nil {
			return nil, err
		}
		inbox.Add(projection.ConversationSummary{
			Conversation: conversation,
			Counterpart:  s.profile(ctx, conversation.Counterpart(userID)),
			UnreadCount:  unread,
		})
	}
	return inbox.Conversations, nil
}

// GetMessages returns one page of history in chronological order.
func (s *ChatService) GetMessages(ctx context.Context, cmd GetMessagesCommand) (MessagePage, error) {
	if err := validateCommand(cmd); err != nil {
		return MessagePage{}, err
	}
	conversation, err := s.participantOf(ctx, cmd.ConversationID, cmd.UserID)
	if err != nil {
		return MessagePage{}, err
	}

	limit := cmd.Limit
	if limit == 0 {
		limit = s.options.DefaultPageSize
	}
	limit = min(limit, s.options.MaxPageSize)

	messages, cursor, err := s.messages.List(ctx, conversation.ID, limit, cmd.Before)
	if err != nil {
		return MessagePage{}, err
	}
	slices.Reverse(messages)
	return MessagePage{Messages: messages, NextCursor: cursor}, nil
}

func (s *ChatService) participantOf(ctx context.Context, conversationID, userID string) (domain.Conversation, error) {
	conversation, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return domain.Conversation{}, err
	}
	if !conversation.HasParticipant(userID) {
		return domain.Conversation{}, fmt.Errorf("%w: %s is not a participant of %s",
			errors.ErrAuthorization, userID, conversationID)
	}
	return conversation, nil
}

func (s *ChatService) profile(ctx context.Context, userID string) domain.Profile {
	profile, err := s.profiles.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			s.log.Debug("Profile unavailable", "user_id", userID, "error", err)
		}
		return domain.AnonymousProfile(userID)
	}
	return profile
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return errors.Code(err)
}
