package tutor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComprehensionDelta(t *testing.T) {
	tests := []struct {
		msg  string
		want float64
	}{
		{"I don't understand", -0.12},
		{"now I understand, thank you", 0.15},
		{"That makes sense", 0.10},
		{"I’m lost and confused, what do you mean?", -0.15},
		{"What is a derivative?", 0},
		{"got it, thanks", 0.15},
		{"this doesn't make sense", -0.10},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.InDelta(t, tt.want, ComprehensionDelta(tt.msg), 1e-9)
		})
	}
}

func TestUpdateComprehension_Sequence(t *testing.T) {
	score := NewContextData().ComprehensionScore
	assert.Equal(t, 0.5, score)

	score = UpdateComprehension(score, "I don't understand")
	assert.InDelta(t, 0.38, score, 1e-9)

	score = UpdateComprehension(score, "now I understand, thank you")
	assert.InDelta(t, 0.53, score, 1e-9)
}

func TestUpdateComprehension_StaysInUnitInterval(t *testing.T) {
	score := 0.5
	for i := 0; i < 20; i++ {
		score = UpdateComprehension(score, "I'm lost, I don't understand, so confusing")
		assert.GreaterOrEqual(t, score, 0.0)
	}
	assert.Equal(t, 0.0, score)

	for i := 0; i < 20; i++ {
		score = UpdateComprehension(score, "got it, makes sense now, thank you")
		assert.LessOrEqual(t, score, 1.0)
	}
	assert.Equal(t, 1.0, score)
}
