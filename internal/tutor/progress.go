package tutor

import "math"

const (
	engagementMessages = 10

	milestoneWeight     = 0.70
	comprehensionWeight = 0.20
	engagementWeight    = 0.10
)

// CalculateHybridProgress blends milestone completion, comprehension and
// engagement into a 0..100 percentage. Without an outline only engagement
// counts, reaching 100 at ten messages. It reads cd and nothing else.
func CalculateHybridProgress(cd ContextData) int {
	engagement := math.Min(1, float64(cd.MessageCount)/engagementMessages) * 100

	done, total := cd.Milestones()
	if total == 0 {
		return clampPercent(math.Round(float64(cd.MessageCount) / engagementMessages * 100))
	}

	milestoneProgress := float64(done) / float64(total) * 100
	score := milestoneProgress*milestoneWeight +
		clamp01(cd.ComprehensionScore)*100*comprehensionWeight +
		engagement*engagementWeight
	return clampPercent(math.Round(score))
}

func clampPercent(v float64) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(v)
}
