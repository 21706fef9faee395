package tutor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func outlineWith(total, done int) *LearningOutline {
	o := &LearningOutline{Topic: "physics"}
	for i := 0; i < total; i++ {
		o.Milestones = append(o.Milestones, Milestone{ID: string(rune('a' + i)), Title: "t", Completed: i < done})
	}
	return o
}

func TestCalculateHybridProgress(t *testing.T) {
	tests := []struct {
		name string
		cd   ContextData
		want int
	}{
		{"no outline", ContextData{MessageCount: 7, ComprehensionScore: 0.5}, 70},
		{"no outline capped", ContextData{MessageCount: 25}, 100},
		{"empty outline", ContextData{MessageCount: 3, Outline: &LearningOutline{}}, 30},
		{"blended", ContextData{MessageCount: 12, ComprehensionScore: 0.8, Outline: outlineWith(4, 2)}, 61},
		{"all done", ContextData{MessageCount: 10, ComprehensionScore: 1, Outline: outlineWith(3, 3)}, 100},
		{"fresh", ContextData{MessageCount: 0, ComprehensionScore: 0, Outline: outlineWith(5, 0)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CalculateHybridProgress(tt.cd))
		})
	}
}

func TestCalculateHybridProgress_Idempotent(t *testing.T) {
	cd := ContextData{MessageCount: 4, ComprehensionScore: 0.62, Outline: outlineWith(6, 1)}
	first := CalculateHybridProgress(cd)
	assert.Equal(t, first, CalculateHybridProgress(cd))
	done, total := cd.Milestones()
	assert.Equal(t, 1, done)
	assert.Equal(t, 6, total)
}
