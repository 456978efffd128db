package internal

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"vetchat/codec"
	"vetchat/repositories"

	"github.com/dgraph-io/badger/v4"
)

type InspectRow struct {
	Key       string
	Type      string
	Timestamp string
	EntityID  string
	Detail    string
}

type RowMapper func(key string, val []byte) InspectRow

// Scan maps at most limit entries under prefix. A limit <= 0 means no limit.
func Scan(db *badger.DB, prefix string, limit int, mapper RowMapper) ([]InspectRow, error) {
	if mapper == nil {
		mapper = DefaultMapper
	}
	var rows []InspectRow
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			if limit > 0 && len(rows) == limit {
				return nil
			}
			item := it.Item()
			key := string(item.Key())
			if err := item.Value(func(val []byte) error {
				rows = append(rows, mapper(key, val))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return rows, err
}

func DefaultMapper(key string, val []byte) InspectRow {
	return InspectRow{
		Key:       key,
		Type:      "RAW",
		Timestamp: "--:--:--",
		EntityID:  "--------",
		Detail:    "Size: " + strconv.Itoa(len(val)) + " bytes",
	}
}

// RecordMapper decodes the records written by the repositories.
func RecordMapper(key string, val []byte) InspectRow {
	row := DefaultMapper(key, val)
	switch {
	case strings.HasPrefix(key, repositories.PairPrefix):
		row.Type = "PAIR"
		row.EntityID = shortID(string(val))
		row.Detail = strings.TrimPrefix(key, repositories.PairPrefix)
		return row
	case strings.HasPrefix(key, repositories.UserConversationPrefix):
		row.Type = "INDEX"
		row.Detail = "user conversation"
		return row
	case strings.HasPrefix(key, repositories.UnreadPrefix):
		row.Type = "UNREAD"
		row.Detail = string(val)
		return row
	}

	var record map[string]any
	if err := codec.Unmarshal(val, &record); err != nil {
		row.Detail = "undecodable: " + err.Error()
		return row
	}
	row.EntityID = shortID(text(record["id"]))
	row.Timestamp = timestamp(record["created_at"])

	switch {
	case strings.HasPrefix(key, repositories.ConversationPrefix):
		row.Type = "CONVERSATION"
		row.Detail = fmt.Sprintf("%v", record["participants"])
		if last, ok := record["last_message"].(map[string]any); ok {
			row.Detail += " last: " + text(last["content"])
		}
	case strings.HasPrefix(key, repositories.MessagePrefix):
		row.Type = "MESSAGE"
		state := "unread"
		if _, ok := record["read_at"]; ok {
			state = "read"
		}
		row.Detail = fmt.Sprintf("%s -> %s (%s): %s",
			text(record["sender_id"]), text(record["recipient_id"]), state, text(record["content"]))
	case strings.HasPrefix(key, repositories.NotificationPrefix):
		row.Type = "NOTIFICATION"
		row.Detail = text(record["recipient_id"]) + ": " + text(record["title"])
	case strings.HasPrefix(key, repositories.ProfilePrefix):
		row.Type = "PROFILE"
		row.Detail = text(record["display_name"])
		if role := text(record["role"]); role != "" {
			row.Detail += " (" + role + ")"
		}
	default:
		if diagnostic, err := codec.Diagnose(val); err == nil {
			row.Detail = diagnostic
		}
	}
	return row
}

func text(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func timestamp(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.Format("15:04:05")
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed.Format("15:04:05")
		}
	}
	return "--:--:--"
}

func shortID(id string) string {
	if id == "" {
		return "--------"
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
