package repositories

import (
	"context"
	"log/slog"
	"time"

	"vetchat/codec"
	"vetchat/domain"

	"github.com/dgraph-io/badger/v4"
)

// NotificationRepository writes the offline fallback records read by the
// notification subsystem.
type NotificationRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewNotificationRepository(db *badger.DB, log *slog.Logger) NotificationRepository {
	return NotificationRepository{db: db, log: log}
}

type notificationRecord struct {
	ID             string    `cbor:"id"`
	RecipientID    string    `cbor:"recipient_id"`
	Title          string    `cbor:"title"`
	Body           string    `cbor:"body"`
	Type           string    `cbor:"type"`
	ConversationID string    `cbor:"conversation_id"`
	ActionLink     string    `cbor:"action_link"`
	CreatedAt      time.Time `cbor:"created_at"`
}

// Notify stores one notification. There is no deduplication: a burst of
// messages produces one notification per message.
func (r NotificationRepository) Notify(ctx context.Context, n domain.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bytes, err := codec.Marshal(fromNotification(n))
	if err != nil {
		return err
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(notificationKey(n.RecipientID, n.CreatedAt, n.ID), bytes)
	})
	return storeError(err)
}

// ListForUser returns the newest notifications of a recipient first.
func (r NotificationRepository) ListForUser(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var notifications []domain.Notification
	err := r.db.View(func(txn *badger.Txn) error {
		prefixStr := notificationPrefix(userID)
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(append([]byte(prefixStr), []byte("9999999999999999999")...)); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(notifications) == limit {
				break
			}
			var record notificationRecord
			if err := it.Item().Value(func(value []byte) error {
				return codec.Unmarshal(value, &record)
			}); err != nil {
				return err
			}
			notifications = append(notifications, toNotification(record))
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err)
	}
	return notifications, nil
}

func fromNotification(n domain.Notification) notificationRecord {
	return notificationRecord{
		ID:             n.ID,
		RecipientID:    n.RecipientID,
		Title:          n.Title,
		Body:           n.Body,
		Type:           string(n.Type),
		ConversationID: n.ConversationID,
		ActionLink:     n.ActionLink,
		CreatedAt:      n.CreatedAt.UTC(),
	}
}

func toNotification(record notificationRecord) domain.Notification {
	return domain.Notification{
		ID:             record.ID,
		RecipientID:    record.RecipientID,
		Title:          record.Title,
		Body:           record.Body,
		Type:           domain.NotificationType(record.Type),
		ConversationID: record.ConversationID,
		ActionLink:     record.ActionLink,
		CreatedAt:      record.CreatedAt.UTC(),
	}
}
