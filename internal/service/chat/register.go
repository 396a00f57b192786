package chat

import (
	"github.com/gin-gonic/gin"

	"github.com/jodi-app/jodi-server/internal/app"
	authn "github.com/jodi-app/jodi-server/internal/auth"
)

// Registrar ties the chat service into the HTTP router
type Registrar struct {
	appCtx *app.Context
}

// NewRegistrar creates a new Registrar for the chat service
func NewRegistrar(appCtx *app.Context) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the chat endpoints to the router group
func (r *Registrar) Register(g *gin.RouterGroup) {
	svc := NewService(r.appCtx)

	grp := g.Group("/chat", authn.Middleware(r.appCtx.Tokens))
	grp.GET("/conversations", svc.Conversations)
	grp.GET("/conversations/:conversationID/messages", svc.Messages)
	grp.POST("/conversations/:conversationID/messages", svc.Send)
	grp.POST("/conversations/:conversationID/read", svc.MarkRead)
	grp.POST("/conversations/:conversationID/suggestions", svc.Suggestions)
	grp.GET("/unread-count", svc.UnreadCount)
	grp.GET("/ws", svc.Socket)
}
