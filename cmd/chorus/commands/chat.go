package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eachlabs/chorus/internal/orchestrator"
	"github.com/eachlabs/chorus/internal/thread"
)

var (
	chatModels     []string
	chatSingleShot bool
	chatSystem     string
)

const chatHelp = `Start an interactive chat. Every prompt goes to the selected models and
their answers stream in side by side.

In the chat:
  @<model> text     ask one model
  @all text         ask every model in the catalog
  /edit N text      rewrite your N-th prompt and ask again
  /resend N         ask again for your N-th prompt
  /use a,b          change the selection
  /history          show the thread
  /models           list the catalog
  /exit             quit

Examples:
  chorus chat
  chorus chat -m gpt-4o-mini,claude-3.5-haiku`

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive multi-model chat",
	Long:  chatHelp,
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringSliceVarP(&chatModels, "model", "m", nil, "backends to select")
	chatCmd.Flags().BoolVar(&chatSingleShot, "single-shot", false, "skip streaming for every backend")
	chatCmd.Flags().StringVar(&chatSystem, "system", "", "system prompt for the thread")
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closer, err := newLogger(cfg, cmd.ErrOrStderr(), true)
	if err != nil {
		return err
	}
	defer closer.Close()

	store := thread.NewStore()
	orch, err := newOrchestrator(cfg, store, logger)
	if err != nil {
		return err
	}
	if len(chatModels) > 0 {
		if err := orch.Select(chatModels...); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	s := newSession(orch, out)
	if chatSingleShot {
		s.opts = append(s.opts, orchestrator.SingleShot())
	}
	if chatSystem != "" {
		s.opts = append(s.opts, orchestrator.WithSystemPrompt(chatSystem))
	}

	printBanner(out, backendNames(orch.Selected()))

	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for {
		fmt.Fprint(out, userPromptStyle.Render("> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		// Ctrl-C stops the answers in flight, not the chat.
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT)
		quit, err := s.handle(ctx, scanner.Text())
		stop()
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("error: "+err.Error()))
		}
		if quit {
			return nil
		}
	}
}

// session is one chat thread driven line by line.
type session struct {
	orch     *orchestrator.Orchestrator
	out      io.Writer
	threadID string
	live     *livePrinter
	opts     []orchestrator.Option
}

func newSession(orch *orchestrator.Orchestrator, out io.Writer) *session {
	store := orch.Store()
	s := &session{
		orch:     orch,
		out:      out,
		threadID: store.Create("").ID,
		live:     newLivePrinter(out, orch.Backends()),
	}
	store.OnChange(s.live.observe)
	return s
}

// handle runs one input line and reports whether the chat should end.
func (s *session) handle(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, s.ask(ctx, line)
	}

	name, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)
	switch name {
	case "exit", "quit":
		return true, nil
	case "help":
		fmt.Fprintln(s.out, mutedStyle.Render(chatHelp))
	case "models":
		s.printModels()
	case "use":
		if err := s.orch.Select(splitNames(rest)...); err != nil {
			return false, err
		}
		fmt.Fprintln(s.out, mutedStyle.Render("asking "+strings.Join(backendNames(s.orch.Selected()), ", ")))
	case "history":
		return false, s.printHistory()
	case "edit":
		numStr, text, _ := strings.Cut(rest, " ")
		turn, err := parseTurn(numStr)
		if err != nil {
			return false, err
		}
		if text = strings.TrimSpace(text); text == "" {
			return false, errors.New("usage: /edit N text")
		}
		run, err := s.orch.EditTurn(ctx, s.threadID, turn, text, nil, s.opts...)
		if err != nil {
			return false, err
		}
		s.wait(run)
	case "resend":
		turn, err := parseTurn(rest)
		if err != nil {
			return false, err
		}
		run, err := s.orch.Resend(ctx, s.threadID, turn, s.opts...)
		if err != nil {
			return false, err
		}
		s.wait(run)
	default:
		return false, fmt.Errorf("unknown command /%s", name)
	}
	return false, nil
}

func (s *session) ask(ctx context.Context, line string) error {
	parsed := orchestrator.ParseMessage(line)
	targets, err := s.orch.Targets(parsed)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return errors.New("no backends selected, see /use")
	}

	opts := append([]orchestrator.Option{orchestrator.WithBackends(backendIDs(targets)...)}, s.opts...)
	run, err := s.orch.Dispatch(ctx, s.threadID, parsed.Content, nil, opts...)
	if err != nil {
		return err
	}
	s.wait(run)
	return nil
}

func (s *session) wait(run *orchestrator.Run) {
	run.Wait()
	s.live.done()
	for i, key := range run.Keys {
		msg, err := s.orch.Store().Message(run.ThreadID, key)
		if err != nil {
			continue
		}
		// everything else was already shown as it arrived
		if msg.Pending {
			printAnswer(s.out, run.Backends[i].Name(), msg)
		}
	}
}

func (s *session) printModels() {
	selected := make(map[string]bool)
	for _, b := range s.orch.Selected() {
		selected[b.ID] = true
	}
	for _, b := range s.orch.Backends() {
		mark := "  "
		if selected[b.ID] {
			mark = userPromptStyle.Render("* ")
		}
		fmt.Fprintf(s.out, "%s%s %s\n", mark, b.Name(), mutedStyle.Render(b.ID))
	}
}

func (s *session) printHistory() error {
	msgs, err := s.orch.Store().History(s.threadID)
	if err != nil {
		return err
	}
	turn := 0
	for _, m := range msgs {
		switch m.Role {
		case thread.RoleUser:
			turn++
			fmt.Fprintf(s.out, "%s %s\n", userPromptStyle.Render(fmt.Sprintf("[%d]", turn)), m.Content)
		case thread.RoleAssistant:
			printAnswer(s.out, m.BackendID, m)
		}
	}
	return nil
}

// parseTurn reads a 1-based turn number.
func parseTurn(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid turn %q", s)
	}
	return n - 1, nil
}

func splitNames(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
}

func backendIDs(backends []orchestrator.Backend) []string {
	ids := make([]string, len(backends))
	for i, b := range backends {
		ids[i] = b.ID
	}
	return ids
}

func backendNames(backends []orchestrator.Backend) []string {
	names := make([]string, len(backends))
	for i, b := range backends {
		names[i] = b.Name()
	}
	return names
}
