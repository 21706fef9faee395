package tutor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestEngine(c Completer) *Engine {
	g := NewOutlineGenerator(c, zap.NewNop())
	g.now = func() time.Time { return fixedNow }
	e := NewEngine(g, nil)
	e.now = func() time.Time { return fixedNow }
	return e
}

func TestEngine_GeneratesOutlineOnceAndTracks(t *testing.T) {
	c := &stubCompleter{reply: validOutline}
	e := newTestEngine(c)

	cd, newly := e.Advance(context.Background(), NewContextData(), TurnInput{
		Goal:     GoalTestPrep,
		UserText: "Help me with mechanics",
		Response: "Let's start with forces and mass.",
	})
	require.NotNil(t, cd.Outline)
	assert.Equal(t, 1, cd.MessageCount)
	require.Len(t, newly, 1)
	assert.Equal(t, "Forces and Mass", newly[0].Title)
	assert.Equal(t, fixedNow, cd.Outline.LastUpdated)

	// 1/4 milestones, 0.5 comprehension, 1 message
	assert.Equal(t, CalculateHybridProgress(cd), cd.CalculatedProgress)
	assert.Equal(t, 29, cd.CalculatedProgress)

	cd, _ = e.Advance(context.Background(), cd, TurnInput{Goal: GoalTestPrep, UserText: "thanks", Response: "ok"})
	assert.Len(t, c.prompts, 1)
	assert.Equal(t, 2, cd.MessageCount)
	assert.InDelta(t, 0.55, cd.ComprehensionScore, 1e-9)
}

func TestEngine_FailedOutlineIsNotRetried(t *testing.T) {
	c := &stubCompleter{reply: "nonsense"}
	e := newTestEngine(c)

	cd, _ := e.Advance(context.Background(), NewContextData(), TurnInput{Goal: GoalExplore, UserText: "teach me astronomy", Response: "Stars!"})
	assert.Nil(t, cd.Outline)
	assert.True(t, cd.OutlineAttempted)
	assert.Equal(t, 10, cd.CalculatedProgress)

	cd, _ = e.Advance(context.Background(), cd, TurnInput{Goal: GoalExplore, UserText: "teach me planets", Response: "Planets!"})
	assert.Len(t, c.prompts, 1)
	assert.Equal(t, 20, cd.CalculatedProgress)
}

func TestEngine_NoGoalNoOutline(t *testing.T) {
	c := &stubCompleter{reply: validOutline}
	e := newTestEngine(c)

	cd, _ := e.Advance(context.Background(), NewContextData(), TurnInput{UserText: "help me with algebra", Response: "sure"})
	assert.Nil(t, cd.Outline)
	assert.False(t, cd.OutlineAttempted)
	assert.Empty(t, c.prompts)
}

func TestContextData_RoundTripAndDefaults(t *testing.T) {
	cd, err := ParseContextData("")
	require.NoError(t, err)
	assert.Equal(t, 0.5, cd.ComprehensionScore)

	cd, err = ParseContextData(`{"messageCount":3,"sessionContext":{"topic":"waves"}}`)
	require.NoError(t, err)
	assert.Equal(t, 0.5, cd.ComprehensionScore)
	assert.Equal(t, "waves", cd.Topic())

	cd.ComprehensionScore = 0.7
	raw, err := cd.Encode()
	require.NoError(t, err)
	back, err := ParseContextData(raw)
	require.NoError(t, err)
	assert.Equal(t, cd, back)

	broken, err := ParseContextData("{broken")
	assert.Error(t, err)
	assert.True(t, broken.OutlineAttempted)
	assert.Nil(t, broken.Outline)
}

func TestEngine_CorruptContextNeverRegeneratesOutline(t *testing.T) {
	c := &stubCompleter{reply: validOutline}
	e := newTestEngine(c)

	cd, err := ParseContextData(`{"outline":{"topic":"Optics"`)
	require.Error(t, err)

	cd, _ = e.Advance(context.Background(), cd, TurnInput{Goal: GoalExplore, UserText: "tell me about optics", Response: "sure"})
	assert.Nil(t, cd.Outline)
	assert.Empty(t, c.prompts)
}

func TestBuildSystemInstruction(t *testing.T) {
	o := &LearningOutline{Topic: "Optics", Milestones: []Milestone{
		{Title: "Reflection", Completed: true},
		{Title: "Refraction"},
	}}
	s := BuildSystemInstruction(Profile{EducationLevel: "undergraduate", FieldOfStudy: "physics", Locale: "fr-FR"}, GoalPractice, o)
	assert.Contains(t, s, "generate_image")
	assert.Contains(t, s, "undergraduate")
	assert.Contains(t, s, `"fr-FR"`)
	assert.Contains(t, s, "exercises")
	assert.Contains(t, s, "1. Reflection [covered]")
	assert.Contains(t, s, `next milestone to work towards is "Refraction"`)
}
