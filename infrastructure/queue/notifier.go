// Package queue hands offline notifications to the push subsystem through
// asynq (Redis).
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"vetchat/contract"
	"vetchat/domain"
	"vetchat/observability"

	"github.com/hibiken/asynq"
)

const (
	TaskNewMessageNotification = "notification:new_message"
	DefaultQueue               = "notifications"
	defaultMaxRetry            = 5
)

// Enqueuer is the subset of *asynq.Client used here.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type NotificationPayload struct {
	ID             string    `json:"id"`
	RecipientID    string    `json:"recipientId"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	Type           string    `json:"type"`
	ConversationID string    `json:"conversationId"`
	ActionLink     string    `json:"actionLink"`
	CreatedAt      time.Time `json:"createdAt"`
}

// NewClient connects to the Redis instance behind redisURL.
func NewClient(redisURL string) (*asynq.Client, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse REDIS_URL: %w", err)
	}
	return asynq.NewClient(opt), nil
}

// Notifier stores the notification record first, then enqueues it.
// The record is the source of truth: a failed enqueue is logged, not returned.
type Notifier struct {
	log      *slog.Logger
	store    contract.Notifier
	client   Enqueuer
	queue    string
	maxRetry int
}

func NewNotifier(log *slog.Logger, store contract.Notifier, client Enqueuer, queue string) *Notifier {
	if queue == "" {
		queue = DefaultQueue
	}
	return &Notifier{log: log, store: store, client: client, queue: queue, maxRetry: defaultMaxRetry}
}

func (n *Notifier) Notify(ctx context.Context, notification domain.Notification) error {
	if err := n.store.Notify(ctx, notification); err != nil {
		return err
	}
	task, err := NewNotificationTask(notification)
	if err != nil {
		return err
	}
	// TaskID makes a retried enqueue of the same notification a no-op.
	_, err = n.client.EnqueueContext(ctx, task,
		asynq.Queue(n.queue), asynq.MaxRetry(n.maxRetry), asynq.TaskID(notification.ID))
	if err != nil {
		observability.BestEffortFailures.WithLabelValues("enqueue").Inc()
		n.log.Warn("Notification not enqueued", "user_id", notification.RecipientID, "notification_id", notification.ID, "error", err)
	}
	return nil
}

func NewNotificationTask(n domain.Notification) (*asynq.Task, error) {
	payload, err := json.Marshal(NotificationPayload{
		ID:             n.ID,
		RecipientID:    n.RecipientID,
		Title:          n.Title,
		Body:           n.Body,
		Type:           string(n.Type),
		ConversationID: n.ConversationID,
		ActionLink:     n.ActionLink,
		CreatedAt:      n.CreatedAt,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNewMessageNotification, payload), nil
}

// ParseNotificationTask is used by consumers of the queue.
func ParseNotificationTask(task *asynq.Task) (domain.Notification, error) {
	if task.Type() != TaskNewMessageNotification {
		return domain.Notification{}, fmt.Errorf("unexpected task type %s", task.Type())
	}
	var payload NotificationPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return domain.Notification{}, err
	}
	return domain.Notification{
		ID:             payload.ID,
		RecipientID:    payload.RecipientID,
		Title:          payload.Title,
		Body:           payload.Body,
		Type:           domain.NotificationType(payload.Type),
		ConversationID: payload.ConversationID,
		ActionLink:     payload.ActionLink,
		CreatedAt:      payload.CreatedAt,
	}, nil
}
