package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fleet-status-backend/internal/store"
)

// GetFleets handles the GET /api/fleets request.
func GetFleets(s store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		fleets, err := s.ListFleets(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve fleets"})
			return
		}
		c.JSON(http.StatusOK, fleets)
	}
}
