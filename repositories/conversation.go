package repositories

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"vetchat/codec"
	"vetchat/domain"
	"vetchat/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type ConversationRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewConversationRepository(db *badger.DB, log *slog.Logger) ConversationRepository {
	return ConversationRepository{db: db, log: log}
}

type conversationRecord struct {
	ID           string         `cbor:"id"`
	Participants [2]string      `cbor:"participants"`
	LastMessage  *previewRecord `cbor:"last_message,omitempty"`
	CreatedAt    time.Time      `cbor:"created_at"`
	UpdatedAt    time.Time      `cbor:"updated_at"`
}

type previewRecord struct {
	MessageID string    `cbor:"message_id"`
	SenderID  string    `cbor:"sender_id"`
	Content   string    `cbor:"content"`
	CreatedAt time.Time `cbor:"created_at"`
}

// FindOrCreate returns the conversation of the unordered pair {userA, userB},
// creating it when it does not exist yet.
//
// The lookup and the insert run in one badger transaction keyed by the
// canonical pair key. Two concurrent creators both read the missing pair key;
// the first commit wins and the second fails with badger.ErrConflict, is
// retried, and then finds the winner's conversation. The store therefore
// never holds two conversations for the same pair.
func (r ConversationRepository) FindOrCreate(ctx context.Context, userA, userB string, at time.Time) (domain.Conversation, bool, error) {
	if userA == userB {
		return domain.Conversation{}, false, fmt.Errorf("%w: a conversation needs two distinct participants", errors.ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return domain.Conversation{}, false, err
	}
	var (
		conversation domain.Conversation
		created      bool
	)
	key := pairKey(userA, userB)
	err := update(r.db, func(txn *badger.Txn) error {
		created = false
		item, err := txn.Get(key)
		switch {
		case err == nil:
			id, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			conversation, err = getConversation(txn, string(id))
			return err
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		conversation = domain.Conversation{
			ID:           uuid.NewString(),
			Participants: domain.NewPair(userA, userB),
			CreatedAt:    at,
			UpdatedAt:    at,
		}
		if err = putConversation(txn, conversation); err != nil {
			return err
		}
		if err = txn.Set(key, []byte(conversation.ID)); err != nil {
			return err
		}
		for _, participant := range conversation.Participants {
			if err = txn.Set(userConversationKey(participant, conversation.ID), nil); err != nil {
				return err
			}
		}
		created = true
		return nil
	})
	if err != nil {
		return domain.Conversation{}, false, storeError(err)
	}
	if created {
		r.log.Debug("Conversation created", "conversation_id", conversation.ID)
	}
	return conversation, created, nil
}

func (r ConversationRepository) Get(ctx context.Context, id string) (domain.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Conversation{}, err
	}
	var conversation domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		conversation, err = getConversation(txn, id)
		return err
	})
	return conversation, storeError(err)
}

// ListForUser returns the conversations of a user, most recently updated first.
func (r ConversationRepository) ListForUser(ctx context.Context, userID string) ([]domain.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var conversations []domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(userConversationPrefix(userID))
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id := string(it.Item().Key()[len(prefix):])
			conversation, err := getConversation(txn, id)
			if errors.Is(err, errors.ErrNotFound) {
				r.log.Warn("Dangling conversation index", "user_id", userID, "conversation_id", id)
				continue
			}
			if err != nil {
				return err
			}
			conversations = append(conversations, conversation)
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err)
	}
	slices.SortStableFunc(conversations, func(a, b domain.Conversation) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return conversations, nil
}

// Touch moves the last message pointer forward. An older preview never
// replaces a newer one, whatever the order in which concurrent sends touch.
func (r ConversationRepository) Touch(ctx context.Context, id string, last domain.MessagePreview) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := update(r.db, func(txn *badger.Txn) error {
		conversation, err := getConversation(txn, id)
		if err != nil {
			return err
		}
		if conversation.LastMessage != nil && last.CreatedAt.Before(conversation.LastMessage.CreatedAt) {
			return nil
		}
		conversation.LastMessage = &last
		if last.CreatedAt.After(conversation.UpdatedAt) {
			conversation.UpdatedAt = last.CreatedAt
		}
		return putConversation(txn, conversation)
	})
	return storeError(err)
}

func getConversation(txn *badger.Txn, id string) (domain.Conversation, error) {
	item, err := txn.Get(conversationKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Conversation{}, fmt.Errorf("%w: conversation %s", errors.ErrNotFound, id)
	}
	if err != nil {
		return domain.Conversation{}, err
	}
	var record conversationRecord
	if err = item.Value(func(value []byte) error {
		return codec.Unmarshal(value, &record)
	}); err != nil {
		return domain.Conversation{}, err
	}
	return toConversation(record), nil
}

func putConversation(txn *badger.Txn, conversation domain.Conversation) error {
	bytes, err := codec.Marshal(fromConversation(conversation))
	if err != nil {
		return err
	}
	return txn.Set(conversationKey(conversation.ID), bytes)
}

func fromConversation(c domain.Conversation) conversationRecord {
	record := conversationRecord{
		ID:           c.ID,
		Participants: c.Participants,
		CreatedAt:    c.CreatedAt.UTC(),
		UpdatedAt:    c.UpdatedAt.UTC(),
	}
	if c.LastMessage != nil {
		record.LastMessage = &previewRecord{
			MessageID: c.LastMessage.MessageID,
			SenderID:  c.LastMessage.SenderID,
			Content:   c.LastMessage.Content,
			CreatedAt: c.LastMessage.CreatedAt.UTC(),
		}
	}
	return record
}

func toConversation(record conversationRecord) domain.Conversation {
	conversation := domain.Conversation{
		ID:           record.ID,
		Participants: record.Participants,
		CreatedAt:    record.CreatedAt.UTC(),
		UpdatedAt:    record.UpdatedAt.UTC(),
	}
	if record.LastMessage != nil {
		conversation.LastMessage = &domain.MessagePreview{
			MessageID: record.LastMessage.MessageID,
			SenderID:  record.LastMessage.SenderID,
			Content:   record.LastMessage.Content,
			CreatedAt: record.LastMessage.CreatedAt.UTC(),
		}
	}
	return conversation
}
