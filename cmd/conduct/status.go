package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/conduct/internal/session"
	"github.com/ShayCichocki/conduct/internal/state"
	"github.com/ShayCichocki/conduct/pkg/models"
)

var (
	statusLimit int
	statusPurge time.Duration
	statusJSON  bool
)

var statusCmd = &cobra.Command{
	Use:   "status [session-id]",
	Short: "Show persisted sessions",
	Long: `Without arguments, list the most recently updated sessions.
With a session id, show its subtasks, findings, and artifacts.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 10, "Number of sessions to list")
	statusCmd.Flags().DurationVar(&statusPurge, "purge", 0, "Delete sessions not updated within this duration")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the session as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	backend, err := openBackend(cfg.Store)
	if err != nil {
		return err
	}
	defer backend.Close()

	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	if statusPurge > 0 {
		n, err := state.Purge(ctx, backend, statusPurge)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Purged %d sessions older than %s\n", n, formatDuration(statusPurge))
		return nil
	}

	if len(args) == 1 {
		blob, err := backend.Load(ctx, args[0])
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		if blob == nil {
			return fmt.Errorf("session %q not found", args[0])
		}
		sess, err := session.Decode(blob)
		if err != nil {
			return err
		}
		if statusJSON {
			return writeJSON(out, sess)
		}
		displaySession(out, sess)
		return nil
	}

	records, err := backend.List(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "No sessions. Run 'conduct run <request>' to start.")
		return nil
	}
	if statusLimit > 0 && len(records) > statusLimit {
		records = records[:statusLimit]
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("SESSION", "UPDATED", "SIZE")
	for _, r := range records {
		t.Row(r.ID, formatDuration(time.Since(r.UpdatedAt))+" ago", formatBytes(r.Size))
	}
	fmt.Fprintln(out, t.String())
	return nil
}

func displaySession(w io.Writer, s *models.Session) {
	fmt.Fprintf(w, "Session: %s\n", color.CyanString(s.ID))
	fmt.Fprintf(w, "  Request: %s\n", s.Request)
	if s.Target != "" {
		fmt.Fprintf(w, "  Target: %s (authorized: %t)\n", s.Target, s.Authorized)
	}
	fmt.Fprintf(w, "  Cycle: %d\n", s.Cycle)
	fmt.Fprintf(w, "  Updated: %s ago\n", formatDuration(time.Since(s.UpdatedAt)))
	fmt.Fprintf(w, "  Subtasks: %d/%d done\n", s.CountDone(), len(s.Subtasks))

	if len(s.Subtasks) > 0 {
		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("ID", "CYCLE", "TYPE", "STATUS", "WORKERS", "TITLE")
		for _, st := range s.Subtasks {
			t.Row(fmt.Sprint(st.ID), fmt.Sprint(st.Cycle), st.TaskType,
				string(st.Status), strings.Join(st.Workers, ","), st.Title)
		}
		fmt.Fprintln(w, t.String())
	}

	if len(s.Findings) > 0 {
		fmt.Fprintln(w, "Findings:")
		for _, f := range s.Findings {
			fmt.Fprintf(w, "  %s %s (%s, subtask %d)\n", severityLabel(f.Severity), f.Title, f.WorkerID, f.SubtaskID)
		}
	}
	if len(s.Knowledge) > 0 {
		fmt.Fprintf(w, "Knowledge: %d items\n", len(s.Knowledge))
	}
	for _, a := range s.Artifacts {
		fmt.Fprintf(w, "Artifact: %s %s\n", a.Kind, a.Path)
	}
}

func severityLabel(s models.Severity) string {
	label := "[" + string(s) + "]"
	switch s {
	case models.SeverityCritical, models.SeverityHigh:
		return color.RedString(label)
	case models.SeverityMedium:
		return color.YellowString(label)
	default:
		return color.New(color.Faint).Sprint(label)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd", days)
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
