package repositories

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"vetchat/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newMessage(conversationID, sender, recipient, content string, at time.Time) domain.Message {
	return domain.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       sender,
		RecipientID:    recipient,
		Content:        content,
		CreatedAt:      at,
	}
}

func Test_Store_And_List_Messages_Newest_First(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewMessageRepository(openDB(t), slog.Default())
	at := time.Now().UTC()

	messages := []domain.Message{
		newMessage("c1", "alice", "bob", "hello", at),
		newMessage("c1", "bob", "alice", "hi", at.Add(time.Minute)),
		newMessage("c1", "alice", "bob", "how is Rex?", at.Add(2*time.Minute)),
	}
	for _, m := range messages {
		_, err := repository.Store(ctx, m)
		req.NoError(err)
	}
	// A message from another conversation must not leak into c1
	_, err := repository.Store(ctx, newMessage("c2", "alice", "clara", "other", at))
	req.NoError(err)

	fetched, cursor, err := repository.List(ctx, "c1", 10, nil)
	req.NoError(err)
	req.Nil(cursor)
	req.Len(fetched, 3)
	req.Equal("how is Rex?", fetched[0].Content)
	req.Equal("hello", fetched[2].Content)
	req.Equal("bob", fetched[0].RecipientID)
	req.Nil(fetched[0].ReadAt)
}

func Test_MessageRepository_Pagination(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewMessageRepository(openDB(t), slog.Default())
	now := time.Now().UTC()

	// Given 10 messages, oldest first
	for i := 1; i <= 10; i++ {
		_, err := repository.Store(ctx, newMessage("c1", "alice", "bob", fmt.Sprintf("Message %d", i), now.Add(time.Duration(i)*time.Minute)))
		req.NoError(err)
	}

	// --- PAGE 1 ---
	page1, cursor1, err := repository.List(ctx, "c1", 4, nil)
	req.NoError(err)
	req.Len(page1, 4)
	req.Equal("Message 10", page1[0].Content)
	req.Equal("Message 7", page1[3].Content)
	req.NotNil(cursor1)

	// --- PAGE 2 ---
	page2, cursor2, err := repository.List(ctx, "c1", 4, cursor1)
	req.NoError(err)
	req.Len(page2, 4)
	req.Equal("Message 6", page2[0].Content)
	req.Equal("Message 3", page2[3].Content)
	req.NotNil(cursor2)

	// --- PAGE 3 (end) ---
	page3, cursor3, err := repository.List(ctx, "c1", 4, cursor2)
	req.NoError(err)
	req.Len(page3, 2)
	req.Equal("Message 2", page3[0].Content)
	req.Equal("Message 1", page3[1].Content)
	req.Nil(cursor3)
}

func Test_Store_Never_Goes_Back_In_Time(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewMessageRepository(openDB(t), slog.Default())
	at := time.Now().UTC()

	first, err := repository.Store(ctx, newMessage("c1", "alice", "bob", "first", at))
	req.NoError(err)

	// When the clock of the second send is behind the first one
	second, err := repository.Store(ctx, newMessage("c1", "bob", "alice", "second", at.Add(-time.Hour)))
	req.NoError(err)

	// Then the stored timestamp is moved after the newest message
	req.True(second.CreatedAt.After(first.CreatedAt))

	fetched, _, err := repository.List(ctx, "c1", 10, nil)
	req.NoError(err)
	req.Equal("second", fetched[0].Content)
	req.True(fetched[0].CreatedAt.Equal(second.CreatedAt))
}

func Test_Concurrent_Stores_Keep_CreatedAt_Non_Decreasing(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewMessageRepository(openDB(t), slog.Default())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender, recipient := "alice", "bob"
			if i%2 == 0 {
				sender, recipient = recipient, sender
			}
			_, err := repository.Store(ctx, newMessage("c1", sender, recipient, fmt.Sprintf("m%d", i), time.Now().UTC()))
			req.NoError(err)
		}(i)
	}
	wg.Wait()

	fetched, _, err := repository.List(ctx, "c1", 100, nil)
	req.NoError(err)
	req.Len(fetched, 50)
	// Newest first in storage order, so each timestamp is <= the previous one
	for i := 1; i < len(fetched); i++ {
		req.False(fetched[i].CreatedAt.After(fetched[i-1].CreatedAt))
	}
}

func Test_MarkRead_Only_Recipient_Messages_And_Idempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewMessageRepository(openDB(t), slog.Default())
	at := time.Now().UTC()

	for i, m := range []domain.Message{
		newMessage("c1", "alice", "bob", "1", at),
		newMessage("c1", "alice", "bob", "2", at.Add(time.Second)),
		newMessage("c1", "bob", "alice", "3", at.Add(2*time.Second)),
	} {
		_, err := repository.Store(ctx, m)
		req.NoError(err, i)
	}

	unread, err := repository.CountUnread(ctx, "c1", "bob")
	req.NoError(err)
	req.Equal(2, unread)

	// When Bob reads the conversation
	readAt := at.Add(time.Minute)
	count, err := repository.MarkRead(ctx, "c1", "bob", readAt)
	req.NoError(err)
	req.Equal(2, count)

	// Then a second call changes nothing
	count, err = repository.MarkRead(ctx, "c1", "bob", readAt.Add(time.Minute))
	req.NoError(err)
	req.Equal(0, count)

	// And only the messages addressed to Bob carry a read receipt
	fetched, _, err := repository.List(ctx, "c1", 10, nil)
	req.NoError(err)
	for _, m := range fetched {
		if m.RecipientID == "bob" {
			req.NotNil(m.ReadAt)
			req.True(m.ReadAt.Equal(readAt))
		} else {
			req.Nil(m.ReadAt)
		}
	}
	unread, err = repository.CountUnread(ctx, "c1", "alice")
	req.NoError(err)
	req.Equal(1, unread)
}

func Test_MarkRead_Large_Backlog(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewMessageRepository(openDB(t), slog.Default())
	at := time.Now().UTC()

	total := markReadBatchSize*2 + 3
	for i := 0; i < total; i++ {
		_, err := repository.Store(ctx, newMessage("c1", "alice", "bob", "ping", at.Add(time.Duration(i)*time.Millisecond)))
		req.NoError(err)
	}

	count, err := repository.MarkRead(ctx, "c1", "bob", at.Add(time.Hour))
	req.NoError(err)
	req.Equal(total, count)

	unread, err := repository.CountUnread(ctx, "c1", "bob")
	req.NoError(err)
	req.Zero(unread)
}
