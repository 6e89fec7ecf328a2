package orchestrator

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/eachlabs/chorus/internal/thread"
)

// Options adjust a single dispatch.
type Options struct {
	Backends     []string // overrides the selection
	SingleShot   bool     // skip streaming for every backend
	SystemPrompt string   // overrides the configured prompt
	Credential   string   // overrides the configured key
}

// Option configures Options.
type Option func(*Options)

// WithBackends targets the named backends instead of the selection.
func WithBackends(names ...string) Option {
	return func(o *Options) { o.Backends = names }
}

// SingleShot forces the non-streaming path.
func SingleShot() Option {
	return func(o *Options) { o.SingleShot = true }
}

// WithSystemPrompt sets the leading system message for the thread.
func WithSystemPrompt(prompt string) Option {
	return func(o *Options) { o.SystemPrompt = prompt }
}

// WithCredential uses key instead of the configured credential.
func WithCredential(key string) Option {
	return func(o *Options) { o.Credential = key }
}

// Run tracks the tasks started by one dispatch.
type Run struct {
	ThreadID string
	Backends []Backend
	Keys     []thread.Key // placeholder keys, in backend order
	done     chan struct{}
}

// Done is closed once every task has settled.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until every task has settled.
func (r *Run) Wait() {
	<-r.done
}

// Dispatch appends prompt to the thread and asks every target backend for an
// answer. Work still running on the thread is cancelled first. Answers are
// written into the placeholders identified by Run.Keys as they arrive.
func (o *Orchestrator) Dispatch(ctx context.Context, threadID, prompt string, att *Attachment, opts ...Option) (*Run, error) {
	options := o.options(opts)
	backends, err := o.targets(options)
	if err != nil {
		return nil, err
	}

	o.dispatchMu.Lock()
	defer o.dispatchMu.Unlock()

	if _, err := o.store.Get(threadID); err != nil {
		return nil, err
	}
	o.tasks.cancelThread(threadID)

	if err := o.store.SetSystemPrompt(threadID, o.systemPrompt(options)); err != nil {
		return nil, err
	}
	user, err := o.store.AppendUser(threadID, prompt)
	if err != nil {
		return nil, err
	}
	if att.IsImage() {
		if _, err := o.store.Replace(threadID, user.Key(), nil, func(m *thread.Message) { m.HasImage = true }); err != nil {
			return nil, err
		}
	}

	history, err := o.store.History(threadID)
	if err != nil {
		return nil, err
	}

	o.logger.Debug("dispatch", "thread", threadID, "backends", len(backends))
	return o.start(ctx, threadID, -1, history, backends, att, options)
}

// EditTurn rewrites the turnIndex-th user message (0-based), drops the
// answers that followed it and asks the target backends again. The new
// answers take the place of the old ones. An image the turn had before is
// dropped unless att supplies one again.
func (o *Orchestrator) EditTurn(ctx context.Context, threadID string, turnIndex int, text string, att *Attachment, opts ...Option) (*Run, error) {
	options := o.options(opts)
	backends, err := o.targets(options)
	if err != nil {
		return nil, err
	}

	o.dispatchMu.Lock()
	defer o.dispatchMu.Unlock()

	if _, err := o.store.UserTurn(threadID, turnIndex); err != nil {
		return nil, err
	}
	o.tasks.cancelThread(threadID)

	if err := o.store.SetSystemPrompt(threadID, o.systemPrompt(options)); err != nil {
		return nil, err
	}
	history, at, err := o.store.EditUserTurn(threadID, turnIndex, text)
	if err != nil {
		return nil, err
	}
	// The turn carries an image only if one is sent with it again.
	if edited := history[len(history)-1]; edited.HasImage != att.IsImage() {
		hasImage := att.IsImage()
		if _, err := o.store.Replace(threadID, edited.Key(), nil, func(m *thread.Message) { m.HasImage = hasImage }); err != nil {
			return nil, err
		}
		history[len(history)-1].HasImage = hasImage
	}

	o.logger.Debug("edit turn", "thread", threadID, "turn", turnIndex, "backends", len(backends))
	return o.start(ctx, threadID, at, history, backends, att, options)
}

// Resend asks the target backends again for the turnIndex-th user message.
// Images are not kept, so an image turn is resent as text only.
func (o *Orchestrator) Resend(ctx context.Context, threadID string, turnIndex int, opts ...Option) (*Run, error) {
	turn, err := o.store.UserTurn(threadID, turnIndex)
	if err != nil {
		return nil, err
	}
	return o.EditTurn(ctx, threadID, turnIndex, turn.Content, nil, opts...)
}

func (o *Orchestrator) options(opts []Option) Options {
	var options Options
	for _, opt := range opts {
		opt(&options)
	}
	if options.Credential == "" {
		options.Credential = o.config.Credential
	}
	return options
}

func (o *Orchestrator) targets(options Options) ([]Backend, error) {
	if len(options.Backends) > 0 {
		return o.Resolve(options.Backends...)
	}
	sel := o.Selected()
	if len(sel) == 0 {
		return nil, fmt.Errorf("no backends selected")
	}
	return sel, nil
}

func (o *Orchestrator) systemPrompt(options Options) string {
	if options.SystemPrompt != "" {
		return options.SystemPrompt
	}
	return o.config.SystemPrompt
}

// start inserts placeholders at index at, installs one task per backend
// and launches them. Callers hold dispatchMu.
func (o *Orchestrator) start(ctx context.Context, threadID string, at int, history []thread.Message, backends []Backend, att *Attachment, options Options) (*Run, error) {
	ids := make([]string, len(backends))
	for i, b := range backends {
		ids[i] = b.ID
	}
	keys, err := o.store.InsertPlaceholders(threadID, at, ids, PendingText)
	if err != nil {
		return nil, err
	}

	run := &Run{
		ThreadID: threadID,
		Backends: backends,
		Keys:     keys,
		done:     make(chan struct{}),
	}

	tasks := make([]*task, len(backends))
	for i, b := range backends {
		tasks[i] = o.tasks.install(ctx, threadID, b.ID)
	}

	var g errgroup.Group
	for i, b := range backends {
		job := &job{
			o:        o,
			task:     tasks[i],
			threadID: threadID,
			key:      keys[i],
			backend:  b,
			history:  o.config.Sanitize(backendView(history, b.ID), att),
			att:      att,
			options:  options,
		}
		g.Go(func() error {
			defer o.tasks.release(job.task)
			job.run()
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(run.done)
	}()

	return run, nil
}
