package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"fleet-status-backend/internal/store"
)

// GetMachineStatus handles the GET /api/fleets/{fleet_id}/machines request.
// With ?at=RFC3339 it reports the status each machine was in at that instant.
func GetMachineStatus(s store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		fleetID, err := strconv.ParseInt(c.Param("fleet_id"), 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid fleet ID"})
			return
		}

		atParam := c.Query("at")
		if atParam == "" {
			machines, err := s.ListMachines(c.Request.Context(), fleetID)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve machines"})
				return
			}
			c.JSON(http.StatusOK, machines)
			return
		}

		at, err := time.Parse(time.RFC3339, atParam)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'at' timestamp format. Use RFC3339."})
			return
		}
		machines, err := s.MachinesAt(c.Request.Context(), fleetID, at.UTC())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Database error during historical lookup"})
			return
		}
		c.JSON(http.StatusOK, machines)
	}
}
