// Package api exposes the HTTP side of messaging: conversation list,
// history, conversation start and read receipts.
package api

import (
	"fmt"
	"net/http"
	"strconv"

	"vetchat/auth"
	"vetchat/errors"
	"vetchat/infrastructure/dto"
	"vetchat/services"

	"github.com/gin-gonic/gin"
)

type ConversationHandler struct {
	chat services.IChatService
}

func NewConversationHandler(chat services.IChatService) *ConversationHandler {
	return &ConversationHandler{chat: chat}
}

// List returns the caller's conversations, most recently active first.
func (h *ConversationHandler) List(c *gin.Context) {
	summaries, err := h.chat.ListConversations(c.Request.Context(), auth.UserID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": dto.FromSummaries(summaries)})
}

// Messages returns one page of history. ?before=<cursor> walks back in time.
func (h *ConversationHandler) Messages(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			abortWithError(c, fmt.Errorf("%w: limit must be a positive integer", errors.ErrInvalidArgument))
			return
		}
		limit = parsed
	}
	var before *string
	if raw := c.Query("before"); raw != "" {
		before = &raw
	}

	page, err := h.chat.GetMessages(c.Request.Context(), services.GetMessagesCommand{
		UserID:         auth.UserID(c),
		ConversationID: c.Param("id"),
		Limit:          limit,
		Before:         before,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MessagePage{Messages: dto.FromMessages(page.Messages), NextCursor: page.NextCursor})
}

// Start resolves the conversation with another user without sending anything.
func (h *ConversationHandler) Start(c *gin.Context) {
	var request dto.StartConversationRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		abortWithError(c, fmt.Errorf("%w: participantId is required", errors.ErrInvalidArgument))
		return
	}
	conversation, err := h.chat.StartConversation(c.Request.Context(), services.StartConversationCommand{
		UserID:        auth.UserID(c),
		ParticipantID: request.ParticipantID,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromConversation(conversation))
}

// MarkRead is the HTTP twin of the markAsRead frame.
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	count, err := h.chat.MarkRead(c.Request.Context(), services.MarkReadCommand{
		UserID:         auth.UserID(c),
		ConversationID: c.Param("id"),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(errors.HTTPStatus(err), gin.H{
		"error": dto.Error{Code: errors.Code(err), Message: errors.PublicMessage(err)},
	})
}
