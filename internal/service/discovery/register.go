package discovery

import (
	"github.com/gin-gonic/gin"

	"github.com/jodi-app/jodi-server/internal/app"
	authn "github.com/jodi-app/jodi-server/internal/auth"
)

// Registrar ties the discovery service into the HTTP router
type Registrar struct {
	appCtx *app.Context
}

// NewRegistrar creates a new Registrar for the discovery service
func NewRegistrar(appCtx *app.Context) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the discovery and match endpoints to the router group
func (r *Registrar) Register(g *gin.RouterGroup) {
	svc := NewService(r.appCtx)

	disc := g.Group("/discover", authn.Middleware(r.appCtx.Tokens))
	disc.GET("", svc.Discover)
	disc.GET("/recommendations", svc.Recommendations)

	matches := g.Group("/matches", authn.Middleware(r.appCtx.Tokens))
	matches.GET("", svc.Matches)
	matches.POST("/swipe", svc.Swipe)
	matches.GET("/likes-me", svc.LikesMe)
	matches.GET("/likes-me/count", svc.LikeCount)
	matches.DELETE("/:matchID", svc.Unmatch)
}
