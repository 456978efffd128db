package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"vetchat/auth"
	"vetchat/domain"
	"vetchat/infrastructure/dto"
	"vetchat/infrastructure/realtime"
	"vetchat/repositories"
	"vetchat/runtime"
	"vetchat/runtime/workers"
	"vetchat/services"

	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type harness struct {
	server        *httptest.Server
	chat          *services.ChatService
	presence      *runtime.Presence
	authenticator *auth.Authenticator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)

	log := logs.GetLoggerFromLevel(slog.LevelError)
	presence := runtime.NewPresence(log)
	orchestrator := runtime.NewOrchestrator(log, workers.NewSupervisor(log, 0), presence, time.Second)
	orchestrator.Start(context.Background())

	chat := services.NewChatService(log, presence,
		repositories.NewConversationRepository(db, log),
		repositories.NewMessageRepository(db, log),
		repositories.NewProfileRepository(db),
		repositories.NewNotificationRepository(db, log),
		services.Options{DefaultPageSize: 2})
	authenticator := auth.NewAuthenticator("test-secret", "vetchat-test")

	gin.SetMode(gin.TestMode)
	router := gin.New()
	SetupRoutes(router, authenticator, chat, realtime.NewGateway(log, authenticator, chat, realtime.GatewayOptions{}))
	server := httptest.NewServer(router)

	t.Cleanup(func() {
		server.Close()
		orchestrator.Stop()
		_ = db.Close()
	})
	return &harness{server: server, chat: chat, presence: presence, authenticator: authenticator}
}

func (h *harness) token(t *testing.T, profile domain.Profile) string {
	t.Helper()
	token, err := h.authenticator.GenerateToken(profile, []string{"user"}, time.Hour)
	require.NoError(t, err)
	return token
}

// do sends an authenticated request as userID and decodes the JSON response into out.
func (h *harness) do(t *testing.T, userID, method, path string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	request, err := http.NewRequest(method, h.server.URL+path, reader)
	require.NoError(t, err)
	if userID != "" {
		request.Header.Set("Authorization", "Bearer "+h.token(t, domain.Profile{ID: userID, DisplayName: strings.ToUpper(userID)}))
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := http.DefaultClient.Do(request)
	require.NoError(t, err)
	defer func() { _ = response.Body.Close() }()
	if out != nil {
		require.NoError(t, json.NewDecoder(response.Body).Decode(out))
	}
	return response.StatusCode
}

func (h *harness) send(t *testing.T, from, to, content string) string {
	t.Helper()
	sent, err := h.chat.Send(context.Background(), services.SendMessageCommand{SenderID: from, RecipientID: to, Content: content})
	require.NoError(t, err)
	return sent.Message.ConversationID
}

type errorBody struct {
	Error dto.Error `json:"error"`
}

func TestAPI_requires_authentication(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	var body errorBody
	status := h.do(t, "", http.MethodGet, "/api/v1/conversations", nil, &body)

	req.Equal(http.StatusUnauthorized, status)
	req.Equal("authentication_error", body.Error.Code)
}

func TestAPI_start_conversation(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	var first, second dto.Conversation
	req.Equal(http.StatusOK, h.do(t, "owner-1", http.MethodPost, "/api/v1/conversations/start", dto.StartConversationRequest{ParticipantID: "clinic-7"}, &first))
	req.Equal(http.StatusOK, h.do(t, "clinic-7", http.MethodPost, "/api/v1/conversations/start", dto.StartConversationRequest{ParticipantID: "owner-1"}, &second))

	req.Equal(first.ID, second.ID)
	req.ElementsMatch([]string{"owner-1", "clinic-7"}, first.Participants)
	req.Nil(first.LastMessage)

	var body errorBody
	req.Equal(http.StatusBadRequest, h.do(t, "owner-1", http.MethodPost, "/api/v1/conversations/start", dto.StartConversationRequest{ParticipantID: "owner-1"}, &body))
	req.Equal("invalid_argument", body.Error.Code)
	req.Equal(http.StatusBadRequest, h.do(t, "owner-1", http.MethodPost, "/api/v1/conversations/start", map[string]string{}, &body))
}

func TestAPI_list_conversations(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.send(t, "vet-1", "owner-1", "Rex is ready")
	h.send(t, "vet-1", "owner-1", "You can pick him up")

	var body struct {
		Conversations []dto.ConversationSummary `json:"conversations"`
	}
	req.Equal(http.StatusOK, h.do(t, "owner-1", http.MethodGet, "/api/v1/conversations", nil, &body))

	req.Len(body.Conversations, 1)
	summary := body.Conversations[0]
	req.Equal(2, summary.UnreadCount)
	req.Equal("vet-1", summary.Counterpart.ID)
	req.Equal("You can pick him up", summary.LastMessage.Content)
}

func TestAPI_message_history(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	var conversationID string
	for _, content := range []string{"a", "b", "c"} {
		conversationID = h.send(t, "owner-1", "vet-1", content)
	}

	var page dto.MessagePage
	req.Equal(http.StatusOK, h.do(t, "vet-1", http.MethodGet, "/api/v1/conversations/"+conversationID+"/messages", nil, &page))
	req.Len(page.Messages, 2)
	req.Equal("b", page.Messages[0].Content)
	req.Equal("c", page.Messages[1].Content)
	req.NotNil(page.NextCursor)

	var older dto.MessagePage
	req.Equal(http.StatusOK, h.do(t, "vet-1", http.MethodGet, "/api/v1/conversations/"+conversationID+"/messages?before="+*page.NextCursor, nil, &older))
	req.Len(older.Messages, 1)
	req.Equal("a", older.Messages[0].Content)
	req.Nil(older.NextCursor)

	var body errorBody
	req.Equal(http.StatusForbidden, h.do(t, "stranger", http.MethodGet, "/api/v1/conversations/"+conversationID+"/messages", nil, &body))
	req.Equal(http.StatusBadRequest, h.do(t, "vet-1", http.MethodGet, "/api/v1/conversations/"+conversationID+"/messages?limit=abc", nil, &body))
}

func TestAPI_mark_read(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	conversationID := h.send(t, "owner-1", "vet-1", "hello")

	var result struct {
		Count int `json:"count"`
	}
	req.Equal(http.StatusOK, h.do(t, "vet-1", http.MethodPost, "/api/v1/conversations/"+conversationID+"/read", nil, &result))
	req.Equal(1, result.Count)
	req.Equal(http.StatusOK, h.do(t, "vet-1", http.MethodPost, "/api/v1/conversations/"+conversationID+"/read", nil, &result))
	req.Zero(result.Count)

	var body errorBody
	req.Equal(http.StatusForbidden, h.do(t, "intruder", http.MethodPost, "/api/v1/conversations/"+conversationID+"/read", nil, &body))
	req.Equal("authorization_error", body.Error.Code)
	req.Equal(http.StatusNotFound, h.do(t, "vet-1", http.MethodPost, "/api/v1/conversations/"+uuid.NewString()+"/read", nil, &body))
	req.Equal("not_found", body.Error.Code)
}

func TestAPI_ops_endpoints(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.send(t, "owner-1", "vet-1", "metrics please")

	response, err := http.Get(h.server.URL + "/healthz")
	req.NoError(err)
	_ = response.Body.Close()
	req.Equal(http.StatusOK, response.StatusCode)

	response, err = http.Get(h.server.URL + "/metrics")
	req.NoError(err)
	defer func() { _ = response.Body.Close() }()
	raw, err := io.ReadAll(response.Body)
	req.NoError(err)
	req.Contains(string(raw), "vetchat_messages_sent_total")
}
