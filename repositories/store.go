package repositories

import (
	"fmt"
	"time"

	"vetchat/domain"
	"vetchat/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Key layout. User ids never contain the separator (see domain.ValidUserID),
// so a user scoped prefix never matches the keys of another user.
//
//	conv:{conversation_id}                              -> conversationRecord
//	pair:{user_min}:{user_max}                          -> conversation_id
//	uconv:{user_id}:{conversation_id}                   -> empty
//	msg:{conversation_id}:{unix_nano_19}:{message_id}   -> messageRecord
//	unread:{recipient_id}:{conversation_id}:{unix_nano_19}:{message_id} -> msg key
//	notif:{recipient_id}:{unix_nano_19}:{notification_id} -> notificationRecord
//	profile:{user_id}                                   -> profileRecord
const (
	ConversationPrefix     = "conv:"
	PairPrefix             = "pair:"
	UserConversationPrefix = "uconv:"
	MessagePrefix          = "msg:"
	UnreadPrefix           = "unread:"
	NotificationPrefix     = "notif:"
	ProfilePrefix          = "profile:"
)

// maxTxnRetries bounds the retries of an optimistic transaction that lost a
// race against a concurrent writer of one of the keys it read.
const maxTxnRetries = 32

const sep = domain.KeySeparator

// cursorTimeLength is the width of the zero padded unix nano timestamp.
const cursorTimeLength = 19

func conversationKey(id string) []byte {
	return []byte(ConversationPrefix + id)
}

func pairKey(userA, userB string) []byte {
	return []byte(PairPrefix + domain.PairKey(userA, userB))
}

func userConversationPrefix(userID string) string {
	return UserConversationPrefix + userID + sep
}

func userConversationKey(userID, conversationID string) []byte {
	return []byte(userConversationPrefix(userID) + conversationID)
}

func messagePrefix(conversationID string) string {
	return MessagePrefix + conversationID + sep
}

// cursorOf is the part of a message key after its conversation prefix.
// Zero padding to 19 digits keeps the lexicographical order chronological.
func cursorOf(at time.Time, id uuid.UUID) string {
	return fmt.Sprintf("%019d%s%s", at.UnixNano(), sep, id)
}

func messageKey(conversationID string, at time.Time, id uuid.UUID) []byte {
	return []byte(messagePrefix(conversationID) + cursorOf(at, id))
}

func unreadPrefix(userID, conversationID string) string {
	return UnreadPrefix + userID + sep + conversationID + sep
}

func unreadKey(userID, conversationID string, at time.Time, id uuid.UUID) []byte {
	return []byte(unreadPrefix(userID, conversationID) + cursorOf(at, id))
}

func notificationPrefix(userID string) string {
	return NotificationPrefix + userID + sep
}

func notificationKey(userID string, at time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%019d%s%s", notificationPrefix(userID), at.UnixNano(), sep, id))
}

func profileKey(userID string) []byte {
	return []byte(ProfilePrefix + userID)
}

// update runs fn in a read-write transaction and retries it when badger
// reports that a key read by fn was committed by another transaction.
// fn must be idempotent: it is executed again from scratch on retry.
func update(db *badger.DB, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		err = db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// storeError keeps domain errors intact and classifies everything else coming
// from badger as a transient store failure.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errors.ErrNotFound),
		errors.Is(err, errors.ErrInvalidArgument),
		errors.Is(err, errors.ErrAuthorization):
		return err
	default:
		return fmt.Errorf("%w: %v", errors.ErrTransientStore, err)
	}
}
