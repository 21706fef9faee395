package tutor

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type SessionGoal string

const (
	GoalNone         SessionGoal = ""
	GoalHomeworkHelp SessionGoal = "homework_help"
	GoalTestPrep     SessionGoal = "test_prep"
	GoalExplore      SessionGoal = "explore"
	GoalPractice     SessionGoal = "practice"
)

// ParseSessionGoal accepts the known goals, "" and "none".
func ParseSessionGoal(s string) (SessionGoal, error) {
	switch g := SessionGoal(strings.ToLower(strings.TrimSpace(s))); g {
	case GoalHomeworkHelp, GoalTestPrep, GoalExplore, GoalPractice:
		return g, nil
	case GoalNone, "none":
		return GoalNone, nil
	default:
		return GoalNone, fmt.Errorf("unknown session goal %q", s)
	}
}

const initialComprehension = 0.5

type Milestone struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	KeyPoints   []string   `json:"keyPoints"`
	Completed   bool       `json:"completed"`
	CoveredAt   *time.Time `json:"coveredAt"`
}

type LearningOutline struct {
	Topic       string      `json:"topic"`
	Milestones  []Milestone `json:"milestones"`
	GeneratedAt time.Time   `json:"generatedAt"`
	LastUpdated time.Time   `json:"lastUpdated"`
}

// SessionContext holds what the learner told us up front.
type SessionContext struct {
	Topic string `json:"topic,omitempty"`
}

// ContextData is the per-conversation document stored as context_data.
type ContextData struct {
	SessionContext     SessionContext   `json:"sessionContext"`
	Outline            *LearningOutline `json:"outline,omitempty"`
	OutlineAttempted   bool             `json:"outlineAttempted,omitempty"`
	MessageCount       int              `json:"messageCount"`
	ComprehensionScore float64          `json:"comprehensionScore"`
	CalculatedProgress int              `json:"calculatedProgress"`
}

func NewContextData() ContextData {
	return ContextData{ComprehensionScore: initialComprehension}
}

// ParseContextData decodes a stored blob. An empty blob yields a fresh
// document; a missing comprehensionScore keeps the initial value. A blob
// that cannot be decoded yields a fresh document along with the error, marked
// as having attempted its outline: whatever outline it held is never
// regenerated.
func ParseContextData(raw string) (ContextData, error) {
	cd := NewContextData()
	if strings.TrimSpace(raw) == "" {
		return cd, nil
	}
	if err := json.Unmarshal([]byte(raw), &cd); err != nil {
		fresh := NewContextData()
		fresh.OutlineAttempted = true
		return fresh, fmt.Errorf("decode context_data: %w", err)
	}
	cd.ComprehensionScore = clamp01(cd.ComprehensionScore)
	return cd, nil
}

func (cd ContextData) Encode() (string, error) {
	b, err := json.Marshal(cd)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (cd ContextData) Topic() string {
	if cd.Outline != nil && cd.Outline.Topic != "" {
		return cd.Outline.Topic
	}
	return cd.SessionContext.Topic
}

func (cd ContextData) Milestones() (completed, total int) {
	if cd.Outline == nil {
		return 0, 0
	}
	for _, m := range cd.Outline.Milestones {
		if m.Completed {
			completed++
		}
	}
	return completed, len(cd.Outline.Milestones)
}

// Summary is the progress block returned with each turn.
type Summary struct {
	Percentage          int      `json:"percentage"`
	MilestonesCompleted int      `json:"milestonesCompleted"`
	MilestonesTotal     int      `json:"milestonesTotal"`
	ComprehensionScore  float64  `json:"comprehensionScore"`
	Topic               string   `json:"topic,omitempty"`
	RecentlyCompleted   []string `json:"recentlyCompleted"`
}

func (cd ContextData) Summary(recent []Milestone) Summary {
	done, total := cd.Milestones()
	titles := make([]string, 0, len(recent))
	for _, m := range recent {
		titles = append(titles, m.Title)
	}
	return Summary{
		Percentage:          cd.CalculatedProgress,
		MilestonesCompleted: done,
		MilestonesTotal:     total,
		ComprehensionScore:  cd.ComprehensionScore,
		Topic:               cd.Topic(),
		RecentlyCompleted:   titles,
	}
}
