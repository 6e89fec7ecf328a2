package orchestrator

import (
	"regexp"
	"strings"
)

// ParsedMessage represents a parsed user message.
type ParsedMessage struct {
	Original  string
	Content   string // message without the @target
	Target    string // backend named with @name
	TargetAll bool   // true if @all used
}

var targetRe = regexp.MustCompile(`(?s)^@([\w./:-]+)\s+(.*)$`)

// ParseMessage extracts @backend or @all targeting from msg.
func ParseMessage(msg string) *ParsedMessage {
	parsed := &ParsedMessage{
		Original: msg,
		Content:  msg,
	}

	matches := targetRe.FindStringSubmatch(strings.TrimSpace(msg))
	if len(matches) == 3 {
		target := strings.ToLower(matches[1])
		parsed.Content = matches[2]

		if target == "all" {
			parsed.TargetAll = true
		} else {
			parsed.Target = target
		}
	}

	return parsed
}

// Targets resolves parsed to the backends it addresses: the named one,
// every backend for @all, or the current selection.
func (o *Orchestrator) Targets(parsed *ParsedMessage) ([]Backend, error) {
	switch {
	case parsed.TargetAll:
		return o.Backends(), nil
	case parsed.Target != "":
		return o.Resolve(parsed.Target)
	default:
		return o.Selected(), nil
	}
}
