package profile

import (
	"github.com/gin-gonic/gin"

	"github.com/jodi-app/jodi-server/internal/app"
	authn "github.com/jodi-app/jodi-server/internal/auth"
)

// Registrar ties the profile service into the HTTP router
type Registrar struct {
	appCtx *app.Context
}

// NewRegistrar creates a new Registrar for the profile service
func NewRegistrar(appCtx *app.Context) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the profile endpoints to the router group
func (r *Registrar) Register(g *gin.RouterGroup) {
	svc := NewService(r.appCtx)

	grp := g.Group("/profiles", authn.Middleware(r.appCtx.Tokens))
	grp.GET("/me", svc.Get)
	grp.PATCH("/me", svc.Update)
	grp.GET("/me/preferences", svc.GetPreferences)
	grp.PUT("/me/preferences", svc.UpdatePreferences)
	grp.PUT("/me/interests", svc.SetInterests)
	grp.POST("/me/photos", svc.AddPhoto)
	grp.DELETE("/me/photos/:photoID", svc.DeletePhoto)
	grp.GET("/search", svc.Search)
	grp.GET("/:userID", svc.GetByID)
}
