package tutor

import (
	"fmt"
	"strings"
)

// Profile carries the identity provider's personalisation fields.
type Profile struct {
	UserID         uint64
	EducationLevel string
	FieldOfStudy   string
	Locale         string
}

const baseInstruction = `You are a patient, encouraging AI tutor. Explain ideas step by step, check understanding with short questions, and adapt to the learner's level.
When a diagram, illustration or picture would genuinely help, call the generate_image function instead of describing the image in words.`

var goalInstruction = map[SessionGoal]string{
	GoalHomeworkHelp: "The learner is working on homework. Guide them to the answer with hints and worked steps; do not just hand over final answers.",
	GoalTestPrep:     "The learner is preparing for a test. Focus on key facts, typical exam questions and common mistakes, and offer quick self-checks.",
	GoalExplore:      "The learner is exploring a subject out of curiosity. Be broad, make connections and suggest interesting directions.",
	GoalPractice:     "The learner wants practice. Give exercises of increasing difficulty and feedback on their attempts.",
}

// BuildSystemInstruction folds the profile, the session goal and the current
// outline into the system instruction for a chat turn.
func BuildSystemInstruction(p Profile, goal SessionGoal, outline *LearningOutline) string {
	var b strings.Builder
	b.WriteString(baseInstruction)

	var about []string
	if p.EducationLevel != "" {
		about = append(about, "education level: "+p.EducationLevel)
	}
	if p.FieldOfStudy != "" {
		about = append(about, "field of study: "+p.FieldOfStudy)
	}
	if len(about) > 0 {
		fmt.Fprintf(&b, "\n\nAbout the learner (%s).", strings.Join(about, "; "))
	}
	if p.Locale != "" {
		fmt.Fprintf(&b, "\nReply in the language of locale %q unless the learner writes in another language.", p.Locale)
	}
	if g, ok := goalInstruction[goal]; ok {
		b.WriteString("\n\n")
		b.WriteString(g)
	}

	if outline != nil && len(outline.Milestones) > 0 {
		fmt.Fprintf(&b, "\n\nLearning plan for %q:", outline.Topic)
		for i, m := range outline.Milestones {
			status := "pending"
			if m.Completed {
				status = "covered"
			}
			fmt.Fprintf(&b, "\n%d. %s [%s]", i+1, m.Title, status)
		}
		if next := nextMilestone(outline); next != nil {
			fmt.Fprintf(&b, "\nThe next milestone to work towards is %q.", next.Title)
		}
	}
	return b.String()
}

func nextMilestone(o *LearningOutline) *Milestone {
	for i := range o.Milestones {
		if !o.Milestones[i].Completed {
			return &o.Milestones[i]
		}
	}
	return nil
}
