package tutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Completer runs a single JSON-mode model request.
type Completer interface {
	CompleteJSON(ctx context.Context, systemInstruction, prompt string) (string, error)
}

const minMilestones = 4

const outlineSystemInstruction = "You design learning plans for a tutoring assistant. Reply with a single JSON object and nothing else."

var goalGuidance = map[SessionGoal]string{
	GoalExplore:      "The learner is exploring out of curiosity. Favour breadth: cover the major sub-areas and how they connect, with interesting real-world links.",
	GoalTestPrep:     "The learner is preparing for an exam. Stay narrow and exam-focused: definitions, core formulas or facts, typical question types and common mistakes.",
	GoalHomeworkHelp: "The learner needs help with homework. Organise milestones as the problem-solving steps needed to work through typical assignments on this topic.",
	GoalPractice:     "The learner wants practice. Order milestones as a progression of exercises from basic drills to mixed, harder problems.",
}

// OutlineGenerator produces a milestone plan for a topic with one model call.
type OutlineGenerator struct {
	completer Completer
	logger    *zap.Logger
	now       func() time.Time
}

func NewOutlineGenerator(c Completer, logger *zap.Logger) *OutlineGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutlineGenerator{completer: c, logger: logger.Named("outline"), now: time.Now}
}

// Generate returns nil when anything goes wrong; a missing outline never
// fails a turn.
func (g *OutlineGenerator) Generate(ctx context.Context, topic string, goal SessionGoal, profile Profile) *LearningOutline {
	if g == nil || g.completer == nil || strings.TrimSpace(topic) == "" || goal == GoalNone {
		return nil
	}

	raw, err := g.completer.CompleteJSON(ctx, outlineSystemInstruction, outlinePrompt(topic, goal, profile))
	if err != nil {
		g.logger.Warn("outline request failed", zap.String("topic", topic), zap.Error(err))
		return nil
	}

	outline, err := parseOutline(raw, topic, g.now())
	if err != nil {
		g.logger.Warn("outline response unusable", zap.String("topic", topic), zap.Error(err))
		return nil
	}
	g.logger.Info("outline generated",
		zap.String("topic", outline.Topic),
		zap.Int("milestones", len(outline.Milestones)))
	return outline
}

func outlinePrompt(topic string, goal SessionGoal, profile Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a learning outline for the topic: %q.\n", topic)
	if guidance, ok := goalGuidance[goal]; ok {
		b.WriteString(guidance)
		b.WriteByte('\n')
	}
	if profile.EducationLevel != "" {
		fmt.Fprintf(&b, "Pitch it at the %s level.\n", profile.EducationLevel)
	}
	if profile.FieldOfStudy != "" {
		fmt.Fprintf(&b, "The learner studies %s.\n", profile.FieldOfStudy)
	}
	fmt.Fprintf(&b, `Requirements:
- At least %d milestones; use as many as the topic genuinely needs.
- Order them from foundational to advanced.
- The final milestone must be about applying or synthesising everything.
- Each milestone has 2-5 short keyPoints.
Respond with exactly this JSON shape:
{"topic": string, "totalMilestones": number, "milestones": [{"id": string, "title": string, "description": string, "keyPoints": [string]}]}`, minMilestones)
	return b.String()
}

type outlineResponse struct {
	Topic           string `json:"topic"`
	TotalMilestones int    `json:"totalMilestones"`
	Milestones      *[]struct {
		ID          string   `json:"id"`
		Title       string   `json:"title"`
		Description string   `json:"description"`
		KeyPoints   []string `json:"keyPoints"`
	} `json:"milestones"`
}

func parseOutline(raw, fallbackTopic string, now time.Time) (*LearningOutline, error) {
	body := extractJSONObject(raw)
	if body == "" {
		return nil, errors.New("no JSON object in response")
	}

	var resp outlineResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("decode outline: %w", err)
	}
	if resp.Milestones == nil {
		return nil, errors.New("milestones missing")
	}

	milestones := make([]Milestone, 0, len(*resp.Milestones))
	for _, m := range *resp.Milestones {
		if strings.TrimSpace(m.Title) == "" {
			continue
		}
		id := strings.TrimSpace(m.ID)
		if id == "" {
			id = fmt.Sprintf("m%d", len(milestones)+1)
		}
		milestones = append(milestones, Milestone{
			ID:          id,
			Title:       strings.TrimSpace(m.Title),
			Description: strings.TrimSpace(m.Description),
			KeyPoints:   m.KeyPoints,
		})
	}
	if len(milestones) < minMilestones {
		return nil, fmt.Errorf("outline has %d milestones, need at least %d", len(milestones), minMilestones)
	}

	topic := strings.TrimSpace(resp.Topic)
	if topic == "" {
		topic = fallbackTopic
	}
	return &LearningOutline{
		Topic:       topic,
		Milestones:  milestones,
		GeneratedAt: now,
		LastUpdated: now,
	}, nil
}

// extractJSONObject strips markdown fences and any prose around the object.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
