package moderation

import (
	"github.com/gin-gonic/gin"

	"github.com/jodi-app/jodi-server/internal/app"
	authn "github.com/jodi-app/jodi-server/internal/auth"
)

// Registrar ties the moderation service into the HTTP router
type Registrar struct {
	appCtx *app.Context
}

// NewRegistrar creates a new Registrar for the moderation service
func NewRegistrar(appCtx *app.Context) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the moderation endpoints to the router group
func (r *Registrar) Register(g *gin.RouterGroup) {
	svc := NewService(r.appCtx)

	grp := g.Group("/safety", authn.Middleware(r.appCtx.Tokens))
	grp.POST("/reports", svc.Report)
	grp.POST("/blocks", svc.Block)
	grp.DELETE("/blocks/:userID", svc.Unblock)
	grp.GET("/blocks", svc.Blocked)

	admin := g.Group("/admin", authn.Middleware(r.appCtx.Tokens), authn.RequireAdmin())
	admin.GET("/reports", svc.ReportQueue)
	admin.POST("/reports/:reportID/resolve", svc.Resolve)
	admin.GET("/users/:userID/fraud-check", svc.FraudCheck)
}
