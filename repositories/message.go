package repositories

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"vetchat/codec"
	"vetchat/domain"
	"vetchat/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// markReadBatchSize keeps a read-receipt transaction far below badger's
// transaction size limit on very long unread backlogs.
const markReadBatchSize = 256

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

type messageRecord struct {
	ID             string     `cbor:"id"`
	ConversationID string     `cbor:"conversation_id"`
	SenderID       string     `cbor:"sender_id"`
	RecipientID    string     `cbor:"recipient_id"`
	Content        string     `cbor:"content"`
	CreatedAt      time.Time  `cbor:"created_at"`
	ReadAt         *time.Time `cbor:"read_at,omitempty"`
}

// Store persists a message in BadgerDB and indexes it as unread for its recipient.
// The key is formatted as "msg:{conversation}:{unix_nano_19}:{uuid}" so a prefix
// scan returns the conversation in chronological order; the uuid breaks ties
// between messages stored within the same nanosecond.
//
// CreatedAt never goes backwards inside a conversation: when the clock is behind
// the newest stored message, the message is stamped one nanosecond after it.
// The returned message carries the timestamp actually stored.
func (m MessageRepository) Store(ctx context.Context, message domain.Message) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	var stored domain.Message
	err := update(m.db, func(txn *badger.Txn) error {
		stored = message
		stored.CreatedAt = message.CreatedAt.UTC()
		newest, found, err := newestMessageTime(txn, message.ConversationID)
		if err != nil {
			return err
		}
		if found && !stored.CreatedAt.After(newest) {
			stored.CreatedAt = newest.Add(time.Nanosecond)
		}

		bytes, err := codec.Marshal(fromMessage(stored))
		if err != nil {
			return err
		}
		key := messageKey(stored.ConversationID, stored.CreatedAt, stored.ID)
		if err = txn.Set(key, bytes); err != nil {
			return err
		}
		if stored.ReadAt == nil {
			return txn.Set(unreadKey(stored.RecipientID, stored.ConversationID, stored.CreatedAt, stored.ID), key)
		}
		return nil
	})
	if err != nil {
		return domain.Message{}, storeError(err)
	}
	return stored, nil
}

// List retrieves messages of a conversation, newest first, using a reverse
// prefix scan. before is the opaque cursor returned by a previous call; the
// returned cursor is nil once the oldest message has been reached.
func (m MessageRepository) List(ctx context.Context, conversationID string, limit int, before *string) ([]domain.Message, *string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if limit <= 0 {
		return nil, nil, fmt.Errorf("%w: limit must be positive", errors.ErrInvalidArgument)
	}
	var records []messageRecord
	var lastCursor string
	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := messagePrefix(conversationID)
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch before {
		case nil:
			// Past the newest possible key, then walk backwards.
			seekKey = append([]byte(prefixStr), []byte("9999999999999999999")...)
		default:
			seekKey = append([]byte(prefixStr), []byte(*before)...)
		}

		it.Seek(seekKey)
		if before != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()[len(prefix):]) == *before {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if len(records) == limit {
				break
			}
			item := it.Item()
			lastCursor = string(item.Key()[len(prefix):])
			var record messageRecord
			if err := item.Value(func(value []byte) error {
				return codec.Unmarshal(value, &record)
			}); err != nil {
				return err
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, nil, storeError(err)
	}

	messages := make([]domain.Message, 0, len(records))
	for _, record := range records {
		message, err := toMessage(record)
		if err != nil {
			return nil, nil, storeError(err)
		}
		messages = append(messages, message)
	}
	if len(messages) < limit {
		return messages, nil, nil
	}
	return messages, &lastCursor, nil
}

// MarkRead stamps every unread message of the conversation addressed to userID
// and returns how many were changed. It walks the unread index only, so the
// cost does not depend on the conversation history.
func (m MessageRepository) MarkRead(ctx context.Context, conversationID, userID string, at time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	prefix := []byte(unreadPrefix(userID, conversationID))
	at = at.UTC()
	total := 0
	for {
		scanned, changed, err := m.markReadBatch(prefix, at)
		total += changed
		if err != nil {
			return total, storeError(err)
		}
		if scanned < markReadBatchSize {
			return total, nil
		}
	}
}

func (m MessageRepository) markReadBatch(prefix []byte, at time.Time) (int, int, error) {
	var scanned, changed int
	err := update(m.db, func(txn *badger.Txn) error {
		scanned, changed = 0, 0
		type entry struct{ indexKey, messageKey []byte }
		var entries []entry

		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		for it.Seek(prefix); it.ValidForPrefix(prefix) && len(entries) < markReadBatchSize; it.Next() {
			item := it.Item()
			target, err := item.ValueCopy(nil)
			if err != nil {
				it.Close()
				return err
			}
			entries = append(entries, entry{indexKey: item.KeyCopy(nil), messageKey: target})
		}
		it.Close()
		scanned = len(entries)

		for _, e := range entries {
			item, err := txn.Get(e.messageKey)
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
				m.log.Warn("Unread index points to a missing message", "key", string(e.messageKey))
			case err != nil:
				return err
			default:
				var record messageRecord
				if err = item.Value(func(value []byte) error {
					return codec.Unmarshal(value, &record)
				}); err != nil {
					return err
				}
				if record.ReadAt == nil {
					record.ReadAt = &at
					bytes, err := codec.Marshal(record)
					if err != nil {
						return err
					}
					if err = txn.Set(e.messageKey, bytes); err != nil {
						return err
					}
					changed++
				}
			}
			if err = txn.Delete(e.indexKey); err != nil {
				return err
			}
		}
		return nil
	})
	return scanned, changed, err
}

// CountUnread counts the messages of a conversation userID has not read yet.
func (m MessageRepository) CountUnread(ctx context.Context, conversationID, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	count := 0
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(unreadPrefix(userID, conversationID))
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, storeError(err)
}

// newestMessageTime reads the newest message key of a conversation inside the
// caller's transaction.
func newestMessageTime(txn *badger.Txn, conversationID string) (time.Time, bool, error) {
	prefixStr := messagePrefix(conversationID)
	prefix := []byte(prefixStr)
	options := badger.DefaultIteratorOptions
	options.Reverse = true
	options.PrefetchValues = false
	it := txn.NewIterator(options)
	defer it.Close()

	it.Seek(append([]byte(prefixStr), []byte("9999999999999999999")...))
	if !it.ValidForPrefix(prefix) {
		return time.Time{}, false, nil
	}
	suffix := string(it.Item().Key()[len(prefix):])
	if len(suffix) < cursorTimeLength {
		return time.Time{}, false, fmt.Errorf("malformed message key %q", it.Item().Key())
	}
	nanos, err := strconv.ParseInt(suffix[:cursorTimeLength], 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("malformed message key %q: %w", it.Item().Key(), err)
	}
	return time.Unix(0, nanos).UTC(), true, nil
}

func fromMessage(message domain.Message) messageRecord {
	record := messageRecord{
		ID:             message.ID.String(),
		ConversationID: message.ConversationID,
		SenderID:       message.SenderID,
		RecipientID:    message.RecipientID,
		Content:        message.Content,
		CreatedAt:      message.CreatedAt.UTC(),
	}
	if message.ReadAt != nil {
		readAt := message.ReadAt.UTC()
		record.ReadAt = &readAt
	}
	return record
}

func toMessage(record messageRecord) (domain.Message, error) {
	parsedID, err := uuid.Parse(record.ID)
	if err != nil {
		return domain.Message{}, err
	}
	message := domain.Message{
		ID:             parsedID,
		ConversationID: record.ConversationID,
		SenderID:       record.SenderID,
		RecipientID:    record.RecipientID,
		Content:        record.Content,
		CreatedAt:      record.CreatedAt.UTC(),
	}
	if record.ReadAt != nil {
		readAt := record.ReadAt.UTC()
		message.ReadAt = &readAt
	}
	return message, nil
}
