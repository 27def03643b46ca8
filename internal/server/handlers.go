package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler returns a simple OK for liveness checks.
func HealthHandler(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
