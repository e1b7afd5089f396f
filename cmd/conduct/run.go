package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ShayCichocki/conduct/internal/orchestrator"
	"github.com/ShayCichocki/conduct/internal/progress"
	"github.com/ShayCichocki/conduct/internal/tui"
	"github.com/ShayCichocki/conduct/pkg/models"
)

// feedBufferSize is the progress channel capacity used by the terminal feed.
const feedBufferSize = 256

var (
	runTarget     string
	runSession    string
	runAuthorized bool
	runTUI        bool
	runJSON       bool
)

var runCmd = &cobra.Command{
	Use:   "run <request>",
	Short: "Plan and execute one request",
	Long: `Plan the request into subtasks, run every subtask on its selected
capabilities, and print the final markdown report.

Passing --session continues an existing session: the new plan sees all of
its findings and new subtasks are numbered after the existing ones.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runTarget, "target", "t", "", "Target identifier (host, URL, or name)")
	runCmd.Flags().StringVarP(&runSession, "session", "s", "", "Continue an existing session")
	runCmd.Flags().BoolVar(&runAuthorized, "authorized", false, "Operator is authorized to act against the target")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show a live progress feed")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the full result as JSON")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := orchestrator.Request{
		Request:    strings.Join(args, " "),
		Target:     runTarget,
		SessionID:  runSession,
		Authorized: runAuthorized,
	}

	res, err := withRuntime(ctx, runTUI, func(rt *app) *models.SessionResult {
		return rt.engine.Run(ctx, req)
	})
	if err != nil {
		return err
	}
	return printResult(cmd, res, runJSON)
}

// withRuntime builds the engine, runs fn, and tears everything down. With
// feed set, progress is shown in the terminal feed instead of the log.
func withRuntime(ctx context.Context, feed bool, fn func(rt *app) *models.SessionResult) (*models.SessionResult, error) {
	log := logger
	if feed && writesToTerminal(cfg.Log.Output) {
		// The feed owns the screen.
		log = zap.NewNop()
	}

	var sink progress.Sink = progress.NewLogSink(log)
	var channel *progress.ChannelSink
	if feed {
		channel = progress.NewChannelSink(feedBufferSize, log)
		sink = progress.Multi{sink, channel}
	}

	rt, err := buildRuntime(ctx, cfg, sink, log)
	if err != nil {
		return nil, err
	}
	defer rt.Close()

	if !feed {
		return fn(rt), nil
	}

	program, _ := tui.NewFeedProgram()
	go tui.Forward(program, channel.Events())

	resCh := make(chan *models.SessionResult, 1)
	go func() {
		res := fn(rt)
		channel.Close()
		program.Send(tui.DoneMsg{Result: res})
		resCh <- res
	}()

	res, err := awaitRun(program, resCh)
	if n := channel.DroppedCount(); n > 0 {
		logger.Debug("progress feed dropped events", zap.Uint64("dropped", n))
	}
	return res, err
}

// feedRunner is the blocking part of the terminal feed.
type feedRunner interface {
	Run() (tea.Model, error)
}

// awaitRun runs the feed, then waits for the run's result even when the feed
// quit early or failed, so the runtime is never closed under a live run.
func awaitRun(feed feedRunner, resCh <-chan *models.SessionResult) (*models.SessionResult, error) {
	_, feedErr := feed.Run()
	res := <-resCh
	if feedErr != nil {
		return nil, fmt.Errorf("progress feed: %w", feedErr)
	}
	return res, nil
}

func writesToTerminal(output string) bool {
	return output == "" || output == "stderr" || output == "stdout"
}

func printResult(cmd *cobra.Command, res *models.SessionResult, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		return writeJSON(out, res)
	}

	switch res.Status {
	case models.ResultStatusBlocked:
		fmt.Fprintln(out, color.RedString("Blocked:"), res.Error)
		return errors.New("run blocked")
	case models.ResultStatusError:
		if res.Report != "" {
			fmt.Fprint(out, res.Report)
		}
		fmt.Fprintln(out, color.RedString("Error:"), res.Error)
		return errors.New("run failed")
	}

	fmt.Fprintln(out, res.Report)
	fmt.Fprintf(out, "%s session %s · cycle %d · %d findings\n",
		color.GreenString("✓"), res.SessionID, res.Cycle, len(res.Findings))
	for _, a := range res.Artifacts {
		loc := a.Path
		if a.Remote != "" {
			loc += " → " + a.Remote
		}
		fmt.Fprintf(out, "  %s %s\n", a.Kind, loc)
	}
	return nil
}
