package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/ai-tutor/internal/common"
	"github.com/suPer8Hu/ai-tutor/internal/config"
	"github.com/suPer8Hu/ai-tutor/internal/httpapi/handlers"
	"github.com/suPer8Hu/ai-tutor/internal/httpapi/middleware"
	"go.uber.org/zap"
)

func NewRouter(h *handlers.Handler, cfg config.Config, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.MaxMultipartMemory = 8 << 20
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recovery(logger))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID"},
			ExposeHeaders:    []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", h.Ping)

	// Chat (JWT required)
	authGroup := r.Group("/chat")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.POST("/turns", h.SubmitTurn)
	authGroup.GET("/conversations/:conversation_id/messages", h.ListMessages)
	authGroup.GET("/conversations/:conversation_id/progress", h.GetProgress)
	authGroup.GET("/jobs/:job_id", h.GetJob)
	return r
}
