package tutor

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	titleMatchThreshold    = 0.5
	keyPointMatchThreshold = 0.6
	minSignificantLen      = 4
)

// TrackMilestones marks milestones covered by the model's response. It does
// not modify its input; the returned slice is a copy, and newly lists the
// milestones that flipped to completed in this call. Completion never
// reverts.
func TrackMilestones(response string, milestones []Milestone, now time.Time) (updated []Milestone, newly []Milestone) {
	updated = make([]Milestone, len(milestones))
	copy(updated, milestones)

	text := strings.ToLower(response)
	for i := range updated {
		m := &updated[i]
		if m.Completed {
			continue
		}
		if !titleCovered(text, m.Title) && !keyPointsCovered(text, m.KeyPoints) {
			continue
		}
		at := now
		m.Completed = true
		m.CoveredAt = &at
		newly = append(newly, *m)
	}
	return updated, newly
}

func titleCovered(text, title string) bool {
	words := significantWords(title)
	if len(words) == 0 {
		return false
	}
	return float64(countPresent(text, words))/float64(len(words)) >= titleMatchThreshold
}

// keyPointsCovered counts a key point as matched when any of its significant
// words occurs in the response.
func keyPointsCovered(text string, keyPoints []string) bool {
	if len(keyPoints) == 0 {
		return false
	}
	matched := 0
	for _, kp := range keyPoints {
		if countPresent(text, significantWords(kp)) > 0 {
			matched++
		}
	}
	return float64(matched)/float64(len(keyPoints)) >= keyPointMatchThreshold
}

func significantWords(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) >= minSignificantLen {
			out = append(out, f)
		}
	}
	return out
}

func countPresent(text string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			n++
		}
	}
	return n
}
