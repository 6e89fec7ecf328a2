package relay

import (
	"sort"
	"strings"
)

// Sanitizer cleans one text fragment before it is relayed.
type Sanitizer func(string) string

var (
	emphasis = strings.NewReplacer(
		"<b>", "**", "</b>", "**",
		"<strong>", "**", "</strong>", "**",
		"<i>", "_", "</i>", "_",
		"<em>", "_", "</em>", "_",
	)
	answerTags = strings.NewReplacer("<answer>", "", "</answer>", "")
	boxMarkers = strings.NewReplacer("<|begin_of_box|>", "", "<|end_of_box|>", "")
)

// StripEmphasis converts HTML emphasis tags to markdown.
func StripEmphasis(s string) string { return emphasis.Replace(s) }

// StripAnswerTags drops <answer> wrappers.
func StripAnswerTags(s string) string { return answerTags.Replace(s) }

// StripBoxMarkers drops GLM visual box markers.
func StripBoxMarkers(s string) string { return boxMarkers.Replace(s) }

// Chain applies fns in order.
func Chain(fns ...Sanitizer) Sanitizer {
	return func(s string) string {
		for _, fn := range fns {
			s = fn(s)
		}
		return s
	}
}

// Sanitizers selects a Sanitizer by model id prefix.
type Sanitizers struct {
	prefixes []string
	byPrefix map[string]Sanitizer
	fallback Sanitizer
}

// NewSanitizers returns a registry whose unmatched models use fallback.
func NewSanitizers(fallback Sanitizer) *Sanitizers {
	if fallback == nil {
		fallback = func(s string) string { return s }
	}
	return &Sanitizers{byPrefix: make(map[string]Sanitizer), fallback: fallback}
}

// DefaultSanitizers knows the model families with markup quirks.
func DefaultSanitizers() *Sanitizers {
	s := NewSanitizers(Chain(StripAnswerTags, StripEmphasis))
	s.Register("z-ai/glm", Chain(StripBoxMarkers, StripAnswerTags, StripEmphasis))
	s.Register("moonshotai/", Chain(StripAnswerTags, StripEmphasis))
	return s
}

// Register binds fn to every model id starting with prefix.
func (s *Sanitizers) Register(prefix string, fn Sanitizer) {
	prefix = strings.ToLower(prefix)
	if _, ok := s.byPrefix[prefix]; !ok {
		s.prefixes = append(s.prefixes, prefix)
		sort.Slice(s.prefixes, func(i, j int) bool {
			return len(s.prefixes[i]) > len(s.prefixes[j])
		})
	}
	s.byPrefix[prefix] = fn
}

// For returns the sanitizer of the longest registered prefix of model.
func (s *Sanitizers) For(model string) Sanitizer {
	model = strings.ToLower(model)
	for _, p := range s.prefixes {
		if strings.HasPrefix(model, p) {
			return s.byPrefix[p]
		}
	}
	return s.fallback
}
