package orchestrator

import "strings"

// coalescer batches stream deltas into whole-content writes.
type coalescer struct {
	maxBytes int
	pending  strings.Builder // received since the last take
	content  strings.Builder // everything taken so far
	received int             // non-empty deltas seen
}

func newCoalescer(maxBytes int) *coalescer {
	return &coalescer{maxBytes: maxBytes}
}

// add buffers s and reports whether the buffer is due for a flush.
func (c *coalescer) add(s string) bool {
	if s == "" {
		return false
	}
	c.received++
	c.pending.WriteString(s)
	return c.pending.Len() >= c.maxBytes
}

// take moves buffered text into the content and returns the full content.
// It reports false when nothing was buffered.
func (c *coalescer) take() (string, bool) {
	if c.pending.Len() == 0 {
		return c.content.String(), false
	}
	c.content.WriteString(c.pending.String())
	c.pending.Reset()
	return c.content.String(), true
}

// text returns the content taken so far.
func (c *coalescer) text() string {
	return c.content.String()
}
