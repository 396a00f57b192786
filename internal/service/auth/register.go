package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/jodi-app/jodi-server/internal/app"
	authn "github.com/jodi-app/jodi-server/internal/auth"
)

// Registrar ties the auth service into the HTTP router
type Registrar struct {
	appCtx *app.Context
}

// NewRegistrar creates a new Registrar for the auth service
func NewRegistrar(appCtx *app.Context) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the auth endpoints to the router group
func (r *Registrar) Register(g *gin.RouterGroup) {
	svc := NewService(r.appCtx)

	grp := g.Group("/auth")
	grp.POST("/register", svc.Register)
	grp.POST("/login", svc.Login)
	grp.POST("/refresh", svc.Refresh)
	grp.POST("/password/forgot", svc.ForgotPassword)
	grp.POST("/password/reset", svc.ResetPassword)

	authed := grp.Group("", authn.Middleware(r.appCtx.Tokens))
	authed.POST("/logout", svc.Logout)
	authed.GET("/me", svc.Me)
	authed.POST("/otp/request", svc.RequestOTP)
	authed.POST("/otp/verify", svc.VerifyOTP)
	authed.POST("/password/change", svc.ChangePassword)
	authed.DELETE("/account", svc.Deactivate)
}
