package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/suPer8Hu/ai-tutor/internal/ai"
	"github.com/suPer8Hu/ai-tutor/internal/common"
	"github.com/suPer8Hu/ai-tutor/internal/ingest"
	"github.com/suPer8Hu/ai-tutor/internal/tutor"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// Generator produces the model reply for a history; ai.Client implements it.
type Generator interface {
	Generate(ctx context.Context, req ai.Request) (*ai.Result, error)
}

type Deps struct {
	Repo      *Repo
	Generator Generator
	Engine    *tutor.Engine
	Ingestor  *ingest.Ingestor
	Locks     Locker
	// ContextWindowSize bounds the history sent upstream; 0 sends all of it.
	ContextWindowSize int
	Logger            *zap.Logger
}

type Service struct {
	repo              *Repo
	gen               Generator
	engine            *tutor.Engine
	ingestor          *ingest.Ingestor
	locks             Locker
	dispatcher        Dispatcher
	contextWindowSize int
	logger            *zap.Logger
}

func NewService(d Deps) *Service {
	if d.Locks == nil {
		d.Locks = NewLocalLocker()
	}
	if d.Ingestor == nil {
		d.Ingestor = ingest.NewIngestor(ingest.DefaultLimits(), d.Logger)
	}
	if d.Engine == nil {
		d.Engine = tutor.NewEngine(nil, nil)
	}
	if d.ContextWindowSize < 0 {
		d.ContextWindowSize = 0
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Service{
		repo:              d.Repo,
		gen:               d.Generator,
		engine:            d.Engine,
		ingestor:          d.Ingestor,
		locks:             d.Locks,
		contextWindowSize: d.ContextWindowSize,
		logger:            d.Logger.Named("chat"),
	}
}

// UseDispatcher enables asynchronous turns.
func (s *Service) UseDispatcher(d Dispatcher) {
	s.dispatcher = d
}

const titleMaxRunes = 60

type TurnRequest struct {
	UserID  uint64
	Profile tutor.Profile

	// empty starts a new conversation
	ConversationID string
	Message        string
	SessionGoal    string
	Topic          string
	Files          []ingest.File

	// Async acknowledges once the user message is stored and finishes the
	// turn through the dispatcher.
	Async bool
}

// TurnOutcome is what the caller of a turn receives.
type TurnOutcome struct {
	Success        bool           `json:"success"`
	Answer         string         `json:"answer,omitempty"`
	ConversationID string         `json:"conversationId"`
	MessageID      uint64         `json:"messageId,omitempty"`
	JobID          string         `json:"jobId,omitempty"`
	Progress       *tutor.Summary `json:"progress,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// ProcessTurn stores the user's message and either answers it inline or
// hands it to the dispatcher. A non-nil outcome is returned together with
// an upstream error so the caller can still report the conversation id.
func (s *Service) ProcessTurn(ctx context.Context, req TurnRequest) (*TurnOutcome, error) {
	text := strings.TrimSpace(req.Message)
	if text == "" && len(req.Files) == 0 {
		return nil, &ValidationError{Field: "message", Reason: "message or attachment required", Err: ErrEmptyTurn}
	}
	goal, err := tutor.ParseSessionGoal(req.SessionGoal)
	if err != nil {
		return nil, &ValidationError{Field: "session_goal", Reason: err.Error()}
	}
	if req.Async && s.dispatcher == nil {
		return nil, &ValidationError{Field: "async", Reason: "asynchronous turns are not enabled"}
	}

	var conv *Conversation
	if req.ConversationID != "" {
		conv, err = s.ownedConversation(ctx, req.UserID, req.ConversationID)
		if err != nil {
			return nil, err
		}
	}

	parts, usable := s.ingestor.IngestAll(req.Files)
	if text == "" && usable == 0 {
		return nil, &ValidationError{Field: "files", Reason: "none of the attachments could be used", Err: ErrEmptyTurn}
	}
	if text != "" {
		parts = append(parts, genai.NewPartFromText(text))
	}

	if conv == nil {
		conv, err = s.createConversation(ctx, req, goal, text)
		if err != nil {
			return nil, err
		}
	}

	// durability checkpoint
	userMsg := &Message{
		ConversationID: conv.ConversationID,
		UserID:         req.UserID,
		Role:           RoleUser,
		Parts:          parts,
	}
	if err := s.repo.AppendMessage(ctx, userMsg); err != nil {
		return nil, err
	}

	req.Profile.UserID = req.UserID
	if !req.Async {
		return s.complete(ctx, conv.ConversationID, req.Profile, text)
	}

	jobID, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	job := &TurnJob{
		ID:             jobID,
		UserID:         req.UserID,
		ConversationID: conv.ConversationID,
		UserMessageID:  userMsg.ID,
		UserText:       text,
		EducationLevel: req.Profile.EducationLevel,
		FieldOfStudy:   req.Profile.FieldOfStudy,
		Locale:         req.Profile.Locale,
		Status:         JobQueued,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	if err := s.dispatcher.Dispatch(ctx, job.ID); err != nil {
		_ = s.repo.MarkJobFailed(context.WithoutCancel(ctx), job.ID, "dispatch: "+err.Error())
		return nil, fmt.Errorf("dispatch turn job: %w", err)
	}

	return &TurnOutcome{
		Success:        true,
		ConversationID: conv.ConversationID,
		MessageID:      userMsg.ID,
		JobID:          job.ID,
	}, nil
}

// RunJob completes an acknowledged turn and records the job status.
func (s *Service) RunJob(ctx context.Context, jobID string) error {
	claimed, err := s.repo.MarkJobRunning(ctx, jobID)
	if err != nil {
		return err
	}
	if !claimed {
		s.logger.Info("turn job already taken", zap.String("job_id", jobID))
		return nil
	}

	job, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}

	start := time.Now()
	profile := tutor.Profile{
		UserID:         job.UserID,
		EducationLevel: job.EducationLevel,
		FieldOfStudy:   job.FieldOfStudy,
		Locale:         job.Locale,
	}
	out, err := s.complete(ctx, job.ConversationID, profile, job.UserText)
	if err != nil {
		if markErr := s.repo.MarkJobFailed(ctx, jobID, err.Error()); markErr != nil {
			s.logger.Error("mark job failed", zap.String("job_id", jobID), zap.Error(markErr))
		}
		return err
	}

	progress := 0
	if out.Progress != nil {
		progress = out.Progress.Percentage
	}
	if err := s.repo.MarkJobSucceeded(ctx, jobID, out.MessageID, progress); err != nil {
		return err
	}
	s.logger.Info("turn job done",
		zap.String("job_id", jobID),
		zap.String("conversation_id", job.ConversationID),
		zap.Duration("cost", time.Since(start)))
	return nil
}

// complete answers the latest stored user message and evolves the
// conversation's context.
func (s *Service) complete(ctx context.Context, conversationID string, profile tutor.Profile, userText string) (*TurnOutcome, error) {
	unlock, err := s.locks.Lock(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("lock conversation: %w", err)
	}
	defer unlock()

	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	cd, err := tutor.ParseContextData(conv.ContextData)
	if err != nil {
		s.logger.Warn("context_data unreadable, resetting counters",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}
	goal := tutor.SessionGoal(conv.SessionGoal)

	history, err := s.repo.GetHistory(ctx, conversationID, s.contextWindowSize)
	if err != nil {
		return nil, err
	}
	contents := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		contents = append(contents, m.Content())
	}

	res, err := s.gen.Generate(ctx, ai.Request{
		History:           contents,
		SystemInstruction: tutor.BuildSystemInstruction(profile, goal, cd.Outline),
	})
	if err != nil {
		s.logger.Error("model request failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
		return &TurnOutcome{
			Success:        false,
			ConversationID: conversationID,
			Error:          "The tutor is unavailable right now. Your message was saved; please try again in a moment.",
		}, fmt.Errorf("generate reply: %w", err)
	}

	stored := res.StoredText
	if stored == "" && len(res.Media) == 0 {
		stored = res.Text
	}
	modelMsg := &Message{
		ConversationID: conversationID,
		UserID:         profile.UserID,
		Role:           RoleModel,
		Parts:          append([]*genai.Part{genai.NewPartFromText(stored)}, res.Media...),
	}
	if err := s.repo.AppendMessage(ctx, modelMsg); err != nil {
		return nil, err
	}

	cd, newly := s.engine.Advance(ctx, cd, tutor.TurnInput{
		Goal:     goal,
		Profile:  profile,
		UserText: userText,
		Response: stored,
	})
	raw, err := cd.Encode()
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetContext(ctx, conversationID, conv.ContextVersion, raw, cd.CalculatedProgress); err != nil {
		return nil, fmt.Errorf("save context: %w", err)
	}

	summary := cd.Summary(newly)
	return &TurnOutcome{
		Success:        true,
		Answer:         res.Text,
		ConversationID: conversationID,
		MessageID:      modelMsg.ID,
		Progress:       &summary,
	}, nil
}

func (s *Service) createConversation(ctx context.Context, req TurnRequest, goal tutor.SessionGoal, text string) (*Conversation, error) {
	cid, err := common.NewULID()
	if err != nil {
		return nil, err
	}

	cd := tutor.NewContextData()
	cd.SessionContext.Topic = strings.TrimSpace(req.Topic)
	raw, err := cd.Encode()
	if err != nil {
		return nil, err
	}

	conv := &Conversation{
		ConversationID: cid,
		UserID:         req.UserID,
		Title:          conversationTitle(text, req.Files),
		SessionGoal:    string(goal),
		ContextData:    raw,
	}
	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func conversationTitle(text string, files []ingest.File) string {
	t := strings.Join(strings.Fields(text), " ")
	if t == "" && len(files) > 0 {
		t = files[0].Name
	}
	if t == "" {
		return "New conversation"
	}
	r := []rune(t)
	if len(r) > titleMaxRunes {
		return string(r[:titleMaxRunes]) + "..."
	}
	return t
}

func (s *Service) ownedConversation(ctx context.Context, userID uint64, conversationID string) (*Conversation, error) {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, ErrNotFound
	}
	return conv, nil
}

func (s *Service) ListMessages(ctx context.Context, userID uint64, conversationID string, limit int, beforeID uint64) ([]Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if _, err := s.ownedConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, conversationID, limit, beforeID)
}

// GetProgress returns the stored progress summary of a conversation.
func (s *Service) GetProgress(ctx context.Context, userID uint64, conversationID string) (*tutor.Summary, error) {
	conv, err := s.ownedConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	cd, err := tutor.ParseContextData(conv.ContextData)
	if err != nil {
		return nil, err
	}
	summary := cd.Summary(nil)
	return &summary, nil
}

func (s *Service) GetJob(ctx context.Context, userID uint64, jobID string) (*TurnJob, error) {
	job, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, ErrNotFound
	}
	return job, nil
}

// IsUpstream reports whether err came from the model endpoint.
func IsUpstream(err error) bool {
	var ue *ai.UpstreamError
	return errors.As(err, &ue)
}
