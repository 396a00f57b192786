package billing

import (
	"github.com/gin-gonic/gin"

	"github.com/jodi-app/jodi-server/internal/app"
	authn "github.com/jodi-app/jodi-server/internal/auth"
)

// Registrar ties the billing service into the HTTP router
type Registrar struct {
	appCtx *app.Context
}

// NewRegistrar creates a new Registrar for the billing service
func NewRegistrar(appCtx *app.Context) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the billing endpoints to the router group
func (r *Registrar) Register(g *gin.RouterGroup) {
	svc := NewService(r.appCtx)

	g.GET("/subscriptions/plans", svc.Plans)

	grp := g.Group("/subscriptions", authn.Middleware(r.appCtx.Tokens))
	grp.GET("/current", svc.Current)
	grp.POST("/subscribe", svc.Subscribe)
	grp.POST("/payments/:paymentID/confirm", svc.Confirm)
	grp.POST("/payments/:paymentID/fail", svc.Fail)
	grp.POST("/cancel", svc.Cancel)
	grp.GET("/history", svc.History)
	grp.GET("/payments", svc.Payments)
}
