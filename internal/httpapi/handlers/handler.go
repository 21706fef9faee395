package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/ai-tutor/internal/chat"
	"github.com/suPer8Hu/ai-tutor/internal/common"
	"go.uber.org/zap"
)

const maxFilesPerTurn = 10

type Handler struct {
	ChatSvc *chat.Service
	Logger  *zap.Logger

	// per-file ceiling; the whole multipart body may hold maxFilesPerTurn of them
	MaxUploadBytes int64
}

func NewHandler(svc *chat.Service, maxUploadBytes int64, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 20 << 20
	}
	return &Handler{ChatSvc: svc, Logger: logger.Named("handlers"), MaxUploadBytes: maxUploadBytes}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}
