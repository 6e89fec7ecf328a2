package commands

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eachlabs/chorus/internal/orchestrator"
	"github.com/eachlabs/chorus/internal/thread"
)

var (
	askModels     []string
	askStream     bool
	askSingleShot bool
	askAttach     string
	askSystem     string
)

var askCmd = &cobra.Command{
	Use:   "ask <prompt>",
	Short: "Ask the selected models once",
	Long: `Send one prompt to several models in parallel and print every answer.

Examples:
  chorus ask "explain CRDTs in two sentences"
  chorus ask -m gpt-4o-mini -m claude-3.5-haiku --stream "write a haiku"
  chorus ask --attach diagram.png "what does this show?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringSliceVarP(&askModels, "model", "m", nil, "backend to ask (repeatable, default: configured selection)")
	askCmd.Flags().BoolVar(&askStream, "stream", false, "print answers as they arrive")
	askCmd.Flags().BoolVar(&askSingleShot, "single-shot", false, "skip streaming for every backend")
	askCmd.Flags().StringVar(&askAttach, "attach", "", "file to send along with the prompt")
	askCmd.Flags().StringVar(&askSystem, "system", "", "system prompt for this request")
}

func runAsk(cmd *cobra.Command, args []string) error {
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

	var att *orchestrator.Attachment
	if askAttach != "" {
		if att, err = loadAttachment(askAttach); err != nil {
			return err
		}
	}

	opts := []orchestrator.Option{orchestrator.WithSystemPrompt(askSystem)}
	if len(askModels) > 0 {
		opts = append(opts, orchestrator.WithBackends(askModels...))
	}
	if askSingleShot {
		opts = append(opts, orchestrator.SingleShot())
	}

	out := cmd.OutOrStdout()
	var live *livePrinter
	if askStream && !jsonOut {
		live = newLivePrinter(out, orch.Backends())
		store.OnChange(live.observe)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	th := store.Create("")
	run, err := orch.Dispatch(ctx, th.ID, strings.Join(args, " "), att, opts...)
	if err != nil {
		return err
	}
	run.Wait()
	if live != nil {
		live.done()
	}

	if jsonOut {
		snapshot, err := store.Get(th.ID)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snapshot)
	}

	printAnswers(out, store, run)
	if ctx.Err() != nil {
		return fmt.Errorf("interrupted")
	}
	return nil
}
