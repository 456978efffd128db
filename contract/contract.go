//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"

	"vetchat/domain"
	"vetchat/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Connection is one live handle of a user (a browser tab, a phone).
// Consume must not block for long: it only enqueues the event.
type Connection interface {
	ID() string
	Consume(ctx context.Context, e event.Event) error
}

// PresenceStats is a snapshot of the presence registry size.
type PresenceStats struct {
	OnlineUsers int
	Connections int
}

type IPresence interface {
	Register(ctx context.Context, userID string, conn Connection) error
	Unregister(ctx context.Context, conn Connection) (bool, error)
	IsOnline(ctx context.Context, userID string) bool
	Deliver(ctx context.Context, userID string, e event.Event, exceptConnID string) int
	Stats(ctx context.Context) (PresenceStats, error)
}

type IConversationRepository interface {
	FindOrCreate(ctx context.Context, userA, userB string, at time.Time) (domain.Conversation, bool, error)
	Get(ctx context.Context, id string) (domain.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]domain.Conversation, error)
	Touch(ctx context.Context, id string, last domain.MessagePreview) error
}

type IMessageRepository interface {
	Store(ctx context.Context, message domain.Message) (domain.Message, error)
	List(ctx context.Context, conversationID string, limit int, before *string) ([]domain.Message, *string, error)
	MarkRead(ctx context.Context, conversationID, userID string, at time.Time) (int, error)
	CountUnread(ctx context.Context, conversationID, userID string) (int, error)
}

type IProfileRepository interface {
	Put(ctx context.Context, profile domain.Profile) error
	Get(ctx context.Context, userID string) (domain.Profile, error)
	Exists(ctx context.Context, userID string) (bool, error)
}

// Notifier records the offline fallback for a recipient.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}
