package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/eachlabs/chorus/internal/provider"
	"github.com/eachlabs/chorus/internal/relay"
	"github.com/eachlabs/chorus/internal/thread"
)

// errorSeparator sits between partial output and the error notice that cut
// it short.
const errorSeparator = "\n\n---\n"

// job produces one backend's answer for one placeholder.
type job struct {
	o        *Orchestrator
	task     *task
	threadID string
	key      thread.Key
	backend  Backend
	history  []relay.Message
	att      *Attachment
	options  Options
}

func (j *job) run() {
	if j.streams() {
		j.stream()
		return
	}
	j.singleShot()
}

// streams picks the path: attachments decide by kind, otherwise the
// backend's capability does.
func (j *job) streams() bool {
	if j.options.SingleShot || j.o.config.Streamer == nil {
		return false
	}
	if j.att != nil {
		return j.att.IsImage()
	}
	return j.backend.Streaming
}

// write applies mutate to the placeholder while this job still owns it.
func (j *job) write(mutate func(*thread.Message)) bool {
	if j.task.ctx.Err() != nil {
		return false
	}
	guard := func() bool {
		return j.task.ctx.Err() == nil && j.o.tasks.owns(j.task)
	}
	ok, err := j.o.store.Replace(j.threadID, j.key, guard, mutate)
	if err != nil {
		j.o.logger.Debug("placeholder write failed", "thread", j.threadID, "backend", j.backend.ID, "error", err)
		return false
	}
	return ok
}

func (j *job) request() relay.Request {
	req := relay.Request{
		Messages:   j.history,
		Model:      j.backend.ID,
		Credential: j.options.Credential,
		Referer:    j.o.config.Referer,
		Title:      j.o.config.Title,
	}
	if j.att.IsImage() {
		req.ImageDataURL = j.att.DataURL
	}
	return req
}

func (j *job) stream() {
	ctx := j.task.ctx
	events, err := j.o.config.Streamer.Stream(ctx, j.request())
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		j.fail(err)
		return
	}

	var (
		c        = newCoalescer(j.o.config.FlushBytes)
		timer    *time.Timer
		tick     <-chan time.Time
		provName string
		keyKind  thread.CredentialKind
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		tick = nil
	}
	defer stopTimer()

	flush := func() bool {
		stopTimer()
		text, ok := c.take()
		if !ok {
			return true
		}
		return j.write(func(m *thread.Message) {
			m.Content = text
			m.Pending = false
			m.ProviderName = provName
			m.CredentialKind = keyKind
		})
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-tick:
			tick = nil
			if !flush() {
				return
			}

		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return
				}
				j.finish(c, flush, provName, keyKind)
				return
			}

			switch ev.Kind {
			case relay.KindMeta:
				provName = ev.Provider
				keyKind = thread.CredentialKind(ev.UsedKeyType)

			case relay.KindDelta:
				if c.add(ev.Text) {
					if !flush() {
						return
					}
				} else if tick == nil {
					timer = time.NewTimer(j.o.config.FlushInterval)
					tick = timer.C
				}

			case relay.KindError:
				stopTimer()
				c.take()
				if ev.Provider != "" {
					provName = ev.Provider
				}
				if ev.UsedKeyType != "" {
					keyKind = thread.CredentialKind(ev.UsedKeyType)
				}
				j.writeError(c.text(), ev.Code, ev.Message, provName, keyKind)
				return

			case relay.KindDone:
				j.finish(c, flush, provName, keyKind)
				return
			}
		}
	}
}

// finish settles a stream that ended normally. A stream that produced no
// text at all gets one single-shot retry.
func (j *job) finish(c *coalescer, flush func() bool, provName string, keyKind thread.CredentialKind) {
	if !flush() {
		return
	}
	if c.received == 0 {
		j.o.logger.Debug("empty stream, falling back", "backend", j.backend.ID)
		j.singleShot()
		return
	}
	j.write(func(m *thread.Message) {
		m.Pending = false
		m.ProviderName = provName
		m.CredentialKind = keyKind
	})
}

func (j *job) singleShot() {
	ctx := j.task.ctx
	if j.o.config.Caller == nil {
		j.writeError("", http.StatusNotImplemented, "no single-shot provider configured", "", "")
		return
	}

	req := j.request()
	resp, err := j.o.config.Caller.Chat(ctx, &provider.ChatRequest{
		Model:        req.Model,
		Messages:     relay.ProviderMessages(req),
		ImageDataURL: req.ImageDataURL,
		Credential:   req.Credential,
		Referer:      req.Referer,
		Title:        req.Title,
	})
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return
		}
		j.fail(err)
		return
	}

	text := j.o.config.Sanitizers.For(j.backend.ID)(resp.Text)
	if strings.TrimSpace(text) == "" {
		text = EmptyText
	}
	j.write(func(m *thread.Message) {
		m.Content = text
		m.Pending = false
		m.ProviderName = resp.Provider
		m.CredentialKind = thread.CredentialKind(resp.UsedKeyType)
	})
}

// fail records err as this backend's answer.
func (j *job) fail(err error) {
	code := http.StatusBadGateway
	message := err.Error()

	var verr *relay.ValidationError
	var apiErr *provider.APIError
	switch {
	case errors.As(err, &verr):
		code, message = verr.Code(), verr.Message
	case errors.As(err, &apiErr):
		code, message = apiErr.StatusCode, apiErr.Message
	case errors.Is(err, provider.ErrNoCredential):
		code = http.StatusBadRequest
	}

	keyKind := provider.KeyShared
	if j.options.Credential != "" {
		keyKind = provider.KeyUser
	}

	j.o.logger.Warn("backend failed", "thread", j.threadID, "backend", j.backend.ID, "code", code, "error", err)
	j.writeError("", code, relay.DescribeError(code, message, j.backend.ID, keyKind), "", thread.CredentialKind(keyKind))
}

// writeError finalizes the placeholder with an error notice. Partial output
// is kept above the notice and the message is marked incomplete.
func (j *job) writeError(partial string, code int, message, provName string, keyKind thread.CredentialKind) {
	j.write(func(m *thread.Message) {
		if partial != "" {
			m.Content = partial + errorSeparator + message
			m.Incomplete = true
		} else {
			m.Content = message
		}
		m.Pending = false
		m.ErrorCode = code
		m.ProviderName = provName
		m.CredentialKind = keyKind
	})
}
