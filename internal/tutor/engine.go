package tutor

import (
	"context"
	"time"
)

// Engine evolves a conversation's ContextData after each answered turn.
type Engine struct {
	outlines *OutlineGenerator
	topics   TopicExtractor
	now      func() time.Time
}

func NewEngine(outlines *OutlineGenerator, topics TopicExtractor) *Engine {
	if topics == nil {
		topics = PatternTopicExtractor{}
	}
	return &Engine{outlines: outlines, topics: topics, now: time.Now}
}

type TurnInput struct {
	Goal     SessionGoal
	Profile  Profile
	UserText string
	Response string
}

// Advance counts the turn, updates comprehension, generates the outline the
// first time a topic is known, tracks milestones against the response and
// recomputes progress. The outline is requested at most once per
// conversation, successful or not.
func (e *Engine) Advance(ctx context.Context, cd ContextData, in TurnInput) (ContextData, []Milestone) {
	now := e.now()

	cd.MessageCount++
	cd.ComprehensionScore = UpdateComprehension(cd.ComprehensionScore, in.UserText)

	if cd.Outline == nil && !cd.OutlineAttempted && in.Goal != GoalNone {
		if topic := ResolveTopic(cd.SessionContext.Topic, in.UserText, cd.MessageCount, e.topics); topic != "" {
			cd.OutlineAttempted = true
			cd.Outline = e.outlines.Generate(ctx, topic, in.Goal, in.Profile)
		}
	}

	var newly []Milestone
	if cd.Outline != nil {
		o := *cd.Outline
		o.Milestones, newly = TrackMilestones(in.Response, o.Milestones, now)
		if len(newly) > 0 {
			o.LastUpdated = now
		}
		cd.Outline = &o
	}

	cd.CalculatedProgress = CalculateHybridProgress(cd)
	return cd, newly
}
