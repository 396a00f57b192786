package agents

import (
	"github.com/gin-gonic/gin"

	"github.com/jodi-app/jodi-server/internal/app"
	authn "github.com/jodi-app/jodi-server/internal/auth"
)

// Registrar ties the agents service into the HTTP router
type Registrar struct {
	appCtx *app.Context
}

// NewRegistrar creates a new Registrar for the agents service
func NewRegistrar(appCtx *app.Context) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the agent endpoints to the router group
func (r *Registrar) Register(g *gin.RouterGroup) {
	svc := NewService(r.appCtx)

	grp := g.Group("/agents", authn.Middleware(r.appCtx.Tokens))
	grp.POST("/execute", svc.Execute)
	grp.POST("/execute-parallel", svc.ExecuteParallel)
	grp.GET("/logs", svc.Logs)

	admin := grp.Group("", authn.RequireAdmin())
	admin.GET("/status", svc.Status)
}
