package endpoint

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter creates and configures the Gin router for the endpoint.
func NewRouter(e *Endpoint, logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(RequestID())
	router.Use(Recovery(logger))
	router.Use(Logging(logger))

	// OAuth web callback pages. The platform drives the consent flow
	// and only needs a fixed acknowledgement from both entry points.
	router.GET("/", callbackOK)
	router.GET("/callback", callbackOK)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP", "service": "google-drive-endpoint"})
	})

	router.POST("/functions/:name", e.HandleFunction)

	return router
}

func callbackOK(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
