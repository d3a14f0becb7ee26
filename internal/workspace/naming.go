package workspace

import (
	"strings"

	"github.com/google/uuid"
)

// topicMaxCharsExclusive bounds a normalized topic name to stay under
// 25 characters, matching the reference generator's word-wise limit.
const topicMaxCharsExclusive = 25
const topicMaxChars = topicMaxCharsExclusive - 1

// TopicPicker proposes a short human-readable topic name for a task's
// first prompt, e.g. by summarizing it with an LLM call. Deployments
// without a topic-generation backend can omit one entirely;
// TaskBranchName falls back to FallbackTopicName when none is
// configured, or the picker fails or returns an empty topic.
type TopicPicker interface {
	PickTopic(prompt string) (string, error)
}

// noopTopicPicker never proposes a topic, so callers always fall
// through to the deterministic fallback derived from the prompt text.
type noopTopicPicker struct{}

// NewNoopTopicPicker returns a TopicPicker that always defers to the
// fallback topic name. It exists so deployments without a configured
// LLM-backed picker still satisfy the TopicPicker interface everywhere
// branch naming is wired.
func NewNoopTopicPicker() TopicPicker { return noopTopicPicker{} }

func (noopTopicPicker) PickTopic(string) (string, error) {
	return "", nil
}

// TaskBranchName picks a topic for prompt (via picker, falling back to
// the prompt's own text on error or empty result) and derives the full
// target branch name `task/<slug>-<short-uuid>` the isolated-workspace
// creation step uses.
func TaskBranchName(picker TopicPicker, prompt string) string {
	topic := ""
	if picker != nil {
		if t, err := picker.PickTopic(prompt); err == nil {
			topic = t
		}
	}
	if topic == "" {
		topic = FallbackTopicName(prompt)
	}
	slug := TopicToBranchSlug(topic)
	short := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return "task/" + slug + "-" + short
}

// FallbackTopicName derives a topic name directly from a prompt's
// first line, with no LLM call: trim, take the first line, normalize.
func FallbackTopicName(prompt string) string {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return "task"
	}
	firstLine := trimmed
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		firstLine = trimmed[:idx]
	}
	firstLine = strings.TrimSpace(firstLine)
	if normalized, ok := NormalizeTaskName(firstLine); ok {
		return normalized
	}
	return "task"
}

// NormalizeTaskName trims raw to its first line, strips surrounding
// quote/backtick characters, and keeps whole words up to (but not
// including) topicMaxCharsExclusive characters. A single word longer
// than that is clipped to topicMaxChars characters rather than dropped.
func NormalizeTaskName(raw string) (string, bool) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", false
	}
	if idx := strings.IndexByte(name, '\n'); idx >= 0 {
		name = strings.TrimSpace(name[:idx])
	}
	name = strings.Trim(name, "`\"'")
	if name == "" {
		return "", false
	}

	words := strings.Fields(name)
	if len(words) == 0 {
		return "", false
	}

	var normalized []string
	charCount := 0
	for _, word := range words {
		wordChars := len([]rune(word))
		separatorChars := 0
		if len(normalized) > 0 {
			separatorChars = 1
		}
		if charCount+separatorChars+wordChars < topicMaxCharsExclusive {
			normalized = append(normalized, word)
			charCount += separatorChars + wordChars
		} else {
			break
		}
	}

	if len(normalized) == 0 {
		runes := []rune(words[0])
		if len(runes) > topicMaxChars {
			runes = runes[:topicMaxChars]
		}
		clipped := string(runes)
		if clipped == "" {
			return "", false
		}
		return clipped, true
	}
	return strings.Join(normalized, " "), true
}

// TopicToBranchSlug lowercases topic, keeps ASCII alphanumerics/-/_,
// turns every other character into '-', collapses repeated separators,
// and falls back to "task" if nothing usable survives.
func TopicToBranchSlug(topic string) string {
	var cleaned strings.Builder
	for _, ch := range topic {
		lower := toLowerRune(ch)
		switch {
		case isAlnum(lower) || lower == '-' || lower == '_':
			cleaned.WriteRune(lower)
		default:
			cleaned.WriteRune('-')
		}
	}
	return slugify(cleaned.String())
}

// SanitizeForPath is the same collapsing-slug transform used for
// environment and branch path segments (worktree directory naming).
func SanitizeForPath(value string) string {
	var out strings.Builder
	for _, ch := range value {
		lower := toLowerRune(ch)
		if isAlnum(lower) || lower == '-' || lower == '_' {
			out.WriteRune(lower)
		} else {
			out.WriteRune('-')
		}
	}
	compact := joinNonEmpty(out.String())
	if compact == "" {
		return "env"
	}
	return compact
}

func slugify(cleaned string) string {
	compact := joinNonEmpty(cleaned)
	if compact == "" {
		return "task"
	}
	return compact
}

func joinNonEmpty(cleaned string) string {
	parts := strings.Split(cleaned, "-")
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "-")
}

func toLowerRune(ch rune) rune {
	if ch >= 'A' && ch <= 'Z' {
		return ch + ('a' - 'A')
	}
	return ch
}

func isAlnum(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9')
}

func isSpace(ch rune) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}
