package commands

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/eachlabs/chorus/internal/orchestrator"
	"github.com/eachlabs/chorus/internal/thread"
)

// livePrinter echoes answer growth as labelled fragments. It is fed from
// thread.Store change notifications, which arrive from many goroutines.
type livePrinter struct {
	mu     sync.Mutex
	w      io.Writer
	labels map[string]string
	seen   map[thread.Key]string
	last   string
}

func newLivePrinter(w io.Writer, backends []orchestrator.Backend) *livePrinter {
	labels := make(map[string]string, len(backends))
	for _, b := range backends {
		labels[b.ID] = b.Name()
	}
	return &livePrinter{
		w:      w,
		labels: labels,
		seen:   make(map[thread.Key]string),
	}
}

func (p *livePrinter) observe(_ string, msg thread.Message) {
	if msg.Role != thread.RoleAssistant || msg.Pending {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := msg.Key()
	prev := p.seen[key]
	p.seen[key] = msg.Content
	fragment := msg.Content
	if strings.HasPrefix(msg.Content, prev) {
		fragment = msg.Content[len(prev):]
	}
	if fragment == "" {
		return
	}

	if p.last != msg.BackendID {
		if p.last != "" {
			fmt.Fprintln(p.w)
		}
		fmt.Fprint(p.w, backendStyle.Render("["+p.label(msg.BackendID)+"] "))
		p.last = msg.BackendID
	}
	fmt.Fprint(p.w, fragment)
}

func (p *livePrinter) label(id string) string {
	if l, ok := p.labels[id]; ok {
		return l
	}
	return id
}

// done ends the current line, if any.
func (p *livePrinter) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last != "" {
		fmt.Fprintln(p.w)
		fmt.Fprintln(p.w)
		p.last = ""
	}
}

// printAnswers renders every answer identified by keys, in order.
func printAnswers(w io.Writer, store *thread.Store, run *orchestrator.Run) {
	for i, key := range run.Keys {
		msg, err := store.Message(run.ThreadID, key)
		if err != nil {
			continue
		}
		printAnswer(w, run.Backends[i].Name(), msg)
	}
}

func printAnswer(w io.Writer, label string, msg thread.Message) {
	header := backendStyle.Render(label)
	if msg.ProviderName != "" {
		header += mutedStyle.Render(" via " + msg.ProviderName)
	}
	if msg.CredentialKind != "" {
		header += mutedStyle.Render(" (" + string(msg.CredentialKind) + " key)")
	}
	fmt.Fprintln(w, header)

	body := msg.Content
	switch {
	case msg.Pending:
		body = mutedStyle.Render("cancelled")
	case msg.ErrorCode != 0 && !msg.Incomplete:
		body = errorStyle.Render(body)
	}
	fmt.Fprintln(w, answerBoxStyle.Render(body))
}
