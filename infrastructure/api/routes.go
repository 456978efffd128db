package api

import (
	"net/http"

	"vetchat/auth"
	"vetchat/infrastructure/realtime"
	"vetchat/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes mounts the websocket endpoint, the REST API and the ops endpoints.
func SetupRoutes(router *gin.Engine, authenticator *auth.Authenticator,
	chat services.IChatService, gateway *realtime.Gateway) {

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// The gateway authenticates the handshake itself.
	router.GET("/ws", gateway.Handle())

	conversations := NewConversationHandler(chat)
	v1 := router.Group("/api/v1", auth.Middleware(authenticator))
	{
		v1.GET("/conversations", conversations.List)
		v1.POST("/conversations/start", conversations.Start)
		v1.GET("/conversations/:id/messages", conversations.Messages)
		v1.POST("/conversations/:id/read", conversations.MarkRead)
	}
}
