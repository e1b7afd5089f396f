package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ShayCichocki/conduct/internal/mission"
	"github.com/ShayCichocki/conduct/pkg/models"
)

var (
	missionTarget     string
	missionSession    string
	missionAuthorized bool
	missionMaxCycles  int
	missionUnbounded  bool
	missionVerify     bool
	missionTUI        bool
	missionJSON       bool
)

var missionCmd = &cobra.Command{
	Use:   "mission <objective>",
	Short: "Run repeated cycles against one objective",
	Long: `Run the objective cycle after cycle on a single session until a worker
reports the objective reached, a cycle is blocked or fails, the cycle budget
is spent, or a stop is requested with 'conduct mission stop'.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMission,
}

var missionStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask a running mission to stop after its current cycle",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sig, err := mission.NewStopSignal(cfg.Mission.SignalsDir, logger)
		if err != nil {
			return err
		}
		defer sig.Close()
		if err := sig.Send(); err != nil {
			return fmt.Errorf("send stop signal: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stop requested (%s)\n", sig.Path())
		return nil
	},
}

func init() {
	missionCmd.Flags().StringVarP(&missionTarget, "target", "t", "", "Target identifier (host, URL, or name)")
	missionCmd.Flags().StringVarP(&missionSession, "session", "s", "", "Continue an existing session")
	missionCmd.Flags().BoolVar(&missionAuthorized, "authorized", false, "Operator is authorized to act against the target")
	missionCmd.Flags().IntVar(&missionMaxCycles, "max-cycles", 0, "Cycle budget (default from config)")
	missionCmd.Flags().BoolVar(&missionUnbounded, "unbounded", false, "Ignore the cycle budget")
	missionCmd.Flags().BoolVar(&missionVerify, "verify", false, "Confirm the objective marker with a reasoning pass")
	missionCmd.Flags().BoolVar(&missionTUI, "tui", false, "Show a live progress feed")
	missionCmd.Flags().BoolVar(&missionJSON, "json", false, "Print the last result as JSON")
	missionCmd.AddCommand(missionStopCmd)
}

func runMission(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	maxCycles := missionMaxCycles
	if maxCycles <= 0 {
		maxCycles = cfg.Mission.MaxCycles
	}
	req := mission.MissionRequest{
		Request:    strings.Join(args, " "),
		Target:     missionTarget,
		MaxCycles:  maxCycles,
		Unbounded:  missionUnbounded,
		Authorized: missionAuthorized,
		SessionID:  missionSession,
	}

	sig, err := mission.NewStopSignal(cfg.Mission.SignalsDir, logger)
	if err != nil {
		return err
	}
	defer sig.Close()
	// A stop left over from an earlier mission must not end this one.
	sig.Clear()

	res, err := withRuntime(ctx, missionTUI, func(rt *app) *models.SessionResult {
		opts := []mission.Option{
			mission.WithStopper(sig),
			mission.WithCooldown(cfg.Mission.Cooldown),
			mission.WithProgress(rt.sink),
			mission.WithLogger(rt.logger),
		}
		if missionVerify || cfg.Mission.Verify {
			if rt.completer == nil {
				rt.logger.Warn("objective verification needs an llm provider; marker accepted as-is")
			} else {
				opts = append(opts, mission.WithVerifier(mission.NewReasoningVerifier(rt.completer, rt.logger)))
			}
		}
		return mission.New(rt.engine, opts...).RunMission(ctx, req)
	})
	if err != nil {
		return err
	}

	logger.Debug("mission returned", zap.String("status", string(res.Status)), zap.Int("cycle", res.Cycle))
	if err := printResult(cmd, res, missionJSON); err != nil || missionJSON {
		return err
	}

	reached := color.YellowString("not reached")
	if res.ObjectiveReached() {
		reached = color.GreenString("reached")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Objective %s at cycle %d\n", reached, res.Cycle)
	return nil
}
