package notification

import (
	"github.com/gin-gonic/gin"

	"github.com/jodi-app/jodi-server/internal/app"
	authn "github.com/jodi-app/jodi-server/internal/auth"
)

// Registrar ties the notification service into the HTTP router
type Registrar struct {
	appCtx *app.Context
}

// NewRegistrar creates a new Registrar for the notification service
func NewRegistrar(appCtx *app.Context) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the notification endpoints to the router group
func (r *Registrar) Register(g *gin.RouterGroup) {
	svc := NewService(r.appCtx)

	grp := g.Group("/notifications", authn.Middleware(r.appCtx.Tokens))
	grp.GET("", svc.List)
	grp.POST("/:notificationID/read", svc.MarkRead)
	grp.POST("/read-all", svc.MarkAllRead)
	grp.POST("/push/subscribe", svc.SubscribePush)
	grp.DELETE("/push/subscribe", svc.UnsubscribePush)
	grp.GET("/push/key", svc.VAPIDKey)
}
