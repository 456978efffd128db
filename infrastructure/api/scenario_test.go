package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"vetchat/domain"
	"vetchat/infrastructure/dto"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func (h *harness) dial(t *testing.T, profile domain.Profile) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws"
	header := http.Header{}
	header.Set("Authorization", "Bearer "+h.token(t, profile))
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	require.Equal(t, dto.FrameConnected, read(t, ws).Type)
	return ws
}

func read(t *testing.T, ws *websocket.Conn) dto.Frame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame dto.Frame
	require.NoError(t, ws.ReadJSON(&frame))
	return frame
}

func write(t *testing.T, ws *websocket.Conn, frameType, requestID string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(dto.Frame{Type: frameType, RequestID: requestID, Payload: raw}))
}

// A pet owner books a mobile vet: the vet is offline at first, catches up
// through the notification and the history, then the two chat live across
// the owner's phone and laptop.
func Test_Scenario(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t)
	owner := domain.Profile{ID: "owner-1", DisplayName: "Anna", Role: domain.RoleOwner}
	vet := domain.Profile{ID: "vet-1", DisplayName: "Dr Martin", Role: domain.RoleProvider}

	// 1. The owner writes from the phone while the vet is offline
	phone := h.dial(t, owner)
	write(t, phone, dto.FrameSendMessage, "1", dto.SendMessagePayload{RecipientID: vet.ID, Content: "Can you come on Friday?"})
	ack := read(t, phone)
	req.True(*ack.Success)
	conversationID := ack.Message.ConversationID
	req.False(h.presence.IsOnline(ctx, vet.ID))

	// 2. The vet opens the app, lists conversations and reads the history
	var list struct {
		Conversations []dto.ConversationSummary `json:"conversations"`
	}
	req.Equal(http.StatusOK, h.do(t, vet.ID, http.MethodGet, "/api/v1/conversations", nil, &list))
	req.Len(list.Conversations, 1)
	req.Equal(1, list.Conversations[0].UnreadCount)
	req.Equal("Anna", list.Conversations[0].Counterpart.DisplayName)

	vetWS := h.dial(t, vet)
	write(t, vetWS, dto.FrameMarkAsRead, "r1", dto.MarkAsReadPayload{ConversationID: conversationID})
	req.Equal(1, *read(t, vetWS).Count)
	receipt := read(t, phone)
	req.Equal(dto.FrameMessagesRead, receipt.Type)

	// 3. The owner also opens the laptop; the vet answers live
	laptop := h.dial(t, owner)
	write(t, vetWS, dto.FrameSendMessage, "2", dto.SendMessagePayload{RecipientID: owner.ID, Content: "Friday 10am works", ConversationID: &conversationID})
	req.True(*read(t, vetWS).Success)

	for _, ws := range []*websocket.Conn{phone, laptop} {
		frame := read(t, ws)
		req.Equal(dto.FrameNewMessage, frame.Type)
		var message dto.Message
		req.NoError(frame.Decode(&message))
		req.Equal("Friday 10am works", message.Content)
		req.Equal("Dr Martin", message.Sender.DisplayName)
		req.Equal("provider", message.Sender.Role)
	}

	// 4. The owner replies from the laptop; the phone gets the echo
	write(t, laptop, dto.FrameSendMessage, "3", dto.SendMessagePayload{RecipientID: vet.ID, Content: "Perfect, thanks"})
	req.True(*read(t, laptop).Success)
	req.Equal(dto.FrameNewMessage, read(t, phone).Type)
	req.Equal(dto.FrameNewMessage, read(t, vetWS).Type)

	// 5. History is chronological and complete
	var page dto.MessagePage
	req.Equal(http.StatusOK, h.do(t, owner.ID, http.MethodGet, "/api/v1/conversations/"+conversationID+"/messages?limit=10", nil, &page))
	req.Len(page.Messages, 3)
	req.Equal("Can you come on Friday?", page.Messages[0].Content)
	req.NotNil(page.Messages[0].ReadAt)
	req.Equal("Perfect, thanks", page.Messages[2].Content)
	req.Nil(page.NextCursor)
}
