package server

import (
	"github.com/gin-gonic/gin"

	svcErr "github.com/jodi-app/jodi-server/internal/errors"
)

// Fail writes the JSON error body for err and aborts the request.
func Fail(c *gin.Context, err error) {
	status, msg := svcErr.HTTPStatus(err)
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
