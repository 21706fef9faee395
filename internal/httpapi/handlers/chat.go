package handlers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/ai-tutor/internal/auth"
	"github.com/suPer8Hu/ai-tutor/internal/chat"
	"github.com/suPer8Hu/ai-tutor/internal/common"
	"github.com/suPer8Hu/ai-tutor/internal/httpapi/middleware"
	"github.com/suPer8Hu/ai-tutor/internal/ingest"
	"go.uber.org/zap"
)

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}

func claimsFromContext(c *gin.Context) *auth.Claims {
	v, _ := c.Get(middleware.ClaimsKey)
	claims, _ := v.(*auth.Claims)
	if claims == nil {
		return &auth.Claims{}
	}
	return claims
}

type turnReq struct {
	ConversationID string `json:"conversation_id" form:"conversation_id"`
	Message        string `json:"message" form:"message"`
	SessionGoal    string `json:"session_goal" form:"session_goal"`
	Topic          string `json:"topic" form:"topic"`
	Async          bool   `json:"async" form:"async"`
}

// SubmitTurn accepts JSON, or multipart/form-data with repeated "files".
func (h *Handler) SubmitTurn(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var (
		req   turnReq
		files []ingest.File
	)
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes*maxFilesPerTurn)
		if err := c.ShouldBind(&req); err != nil {
			common.Fail(c, http.StatusBadRequest, 10001, "invalid form")
			return
		}
		form, err := c.MultipartForm()
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10001, "invalid form")
			return
		}
		headers := form.File["files"]
		if len(headers) > maxFilesPerTurn {
			common.Fail(c, http.StatusBadRequest, 10002, fmt.Sprintf("at most %d files per message", maxFilesPerTurn))
			return
		}
		opened, closeAll, err := openUploads(headers)
		defer closeAll()
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10001, "unreadable upload")
			return
		}
		files = opened
	} else if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	claims := claimsFromContext(c)
	out, err := h.ChatSvc.ProcessTurn(c.Request.Context(), chat.TurnRequest{
		UserID:         uid,
		Profile:        claims.Profile(),
		ConversationID: strings.TrimSpace(req.ConversationID),
		Message:        req.Message,
		SessionGoal:    req.SessionGoal,
		Topic:          req.Topic,
		Files:          files,
		Async:          req.Async,
	})
	if err != nil {
		h.turnError(c, out, err)
		return
	}

	if out.JobID != "" {
		c.JSON(http.StatusAccepted, gin.H{"code": 0, "message": "accepted", "data": out})
		return
	}
	common.OK(c, out)
}

func openUploads(headers []*multipart.FileHeader) ([]ingest.File, func(), error) {
	var closers []multipart.File
	closeAll := func() {
		for _, f := range closers {
			_ = f.Close()
		}
	}

	files := make([]ingest.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, closeAll, err
		}
		closers = append(closers, f)
		files = append(files, ingest.File{
			Name:     fh.Filename,
			MIMEType: fh.Header.Get("Content-Type"),
			Body:     f,
		})
	}
	return files, closeAll, nil
}

func (h *Handler) turnError(c *gin.Context, out *chat.TurnOutcome, err error) {
	var ve *chat.ValidationError
	switch {
	case errors.As(err, &ve):
		common.Fail(c, http.StatusBadRequest, 10002, ve.Error())
	case errors.Is(err, chat.ErrNotFound):
		common.Fail(c, http.StatusNotFound, 40004, "conversation not found")
	case out != nil:
		h.Logger.Warn("turn failed upstream",
			zap.String("conversation_id", out.ConversationID),
			zap.String("request_id", c.GetString(middleware.RequestIDKey)),
			zap.Error(err))
		common.FailWithData(c, http.StatusBadGateway, 50201, "tutor unavailable", out)
	default:
		h.Logger.Error("turn failed",
			zap.String("request_id", c.GetString(middleware.RequestIDKey)),
			zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}

func (h *Handler) ListMessages(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	conversationID := c.Param("conversation_id")

	limit, _ := strconv.Atoi(c.Query("limit"))
	var beforeID uint64
	if s := c.Query("before_id"); s != "" {
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			beforeID = n
		}
	}

	msgs, err := h.ChatSvc.ListMessages(c.Request.Context(), uid, conversationID, limit, beforeID)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			common.Fail(c, http.StatusNotFound, 40004, "conversation not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list messages")
		return
	}

	var nextBeforeID uint64
	if len(msgs) > 0 {
		nextBeforeID = msgs[len(msgs)-1].ID
	}

	common.OK(c, gin.H{
		"messages":       msgs,
		"next_before_id": nextBeforeID,
	})
}

func (h *Handler) GetProgress(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	conversationID := c.Param("conversation_id")
	summary, err := h.ChatSvc.GetProgress(c.Request.Context(), uid, conversationID)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			common.Fail(c, http.StatusNotFound, 40004, "conversation not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	common.OK(c, gin.H{
		"conversation_id": conversationID,
		"progress":        summary,
	})
}

func (h *Handler) GetJob(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	jobID := c.Param("job_id")
	if jobID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "job_id required")
		return
	}

	j, err := h.ChatSvc.GetJob(c.Request.Context(), uid, jobID)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			// hides other users' jobs too
			common.Fail(c, http.StatusNotFound, 40004, "job not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	common.OK(c, gin.H{"job": j})
}
