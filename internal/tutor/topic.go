package tutor

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// TopicExtractor infers a study topic from free text.
type TopicExtractor interface {
	ExtractTopic(message string) (string, bool)
}

const (
	maxTopicRunes = 100
	// the raw message stands in for a topic only this early in a conversation
	rawTopicMessageLimit = 2
)

var topicPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:teach me|tell me|learn|learning|study|studying|review|revise|understand|explain|prepare for|preparing for|practice|practise)\s+(?:about\s+|more about\s+)?(.+?)(?:[.?!;\n]|$)`),
	regexp.MustCompile(`(?i)\b(?:help(?: me)? with|questions? (?:about|on)|homework (?:on|about)|exam (?:on|about)|test (?:on|about))\s+(.+?)(?:[.?!;\n]|$)`),
	regexp.MustCompile(`(?i)\b(?:what is|what are|how does|how do)\s+(.+?)(?:[.?!;\n]|$)`),
}

var leadingFiller = regexp.MustCompile(`(?i)^(?:the|a|an|some|my|our|how|what|about)\s+`)

// PatternTopicExtractor recognises phrasings like "help me with X" or
// "I want to learn X". It does not depend on the session goal.
type PatternTopicExtractor struct{}

func (PatternTopicExtractor) ExtractTopic(message string) (string, bool) {
	for _, re := range topicPatterns {
		m := re.FindStringSubmatch(message)
		if len(m) < 2 {
			continue
		}
		topic := cleanTopic(m[1])
		if topic != "" {
			return topic, true
		}
	}
	return "", false
}

func cleanTopic(s string) string {
	s = strings.TrimSpace(s)
	for {
		next := leadingFiller.ReplaceAllString(s, "")
		if next == s {
			break
		}
		s = next
	}
	s = strings.Trim(s, " \t\"'`,:")
	if utf8.RuneCountInString(s) > maxTopicRunes {
		s = string([]rune(s)[:maxTopicRunes])
	}
	return strings.TrimSpace(s)
}

// ResolveTopic picks the topic for outline generation: the explicit session
// topic first, then the extractor, then the raw message text for the first
// messages of a conversation.
func ResolveTopic(sessionTopic, message string, messageCount int, extractor TopicExtractor) string {
	if t := strings.TrimSpace(sessionTopic); t != "" {
		return t
	}
	if extractor != nil {
		if t, ok := extractor.ExtractTopic(message); ok {
			return t
		}
	}
	if messageCount <= rawTopicMessageLimit {
		return cleanTopic(message)
	}
	return ""
}
