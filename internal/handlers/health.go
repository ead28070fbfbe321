package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthHandler serves service info and liveness.
type HealthHandler struct {
	DB      *gorm.DB
	Service string
	Version string
}

func NewHealthHandler(db *gorm.DB, service, version string) *HealthHandler {
	return &HealthHandler{DB: db, Service: service, Version: version}
}

// Root describes the service.
func (h *HealthHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": h.Service,
		"version": h.Version,
		"status":  "running",
	})
}

// Health reports DOWN with 503 when the database does not answer a ping.
func (h *HealthHandler) Health(c *gin.Context) {
	database := "not configured"
	if h.DB != nil {
		database = "UP"
		sqlDB, err := h.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DOWN", "database": "DOWN"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "UP", "database": database})
}
