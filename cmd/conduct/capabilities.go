package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var capabilitiesCmd = &cobra.Command{
	Use:     "capabilities [category]",
	Aliases: []string{"caps"},
	Short:   "List the capability directory",
	Long: `List every capability in the directory: the built-in catalog merged with
capabilities.catalog_path. With a category, list only the capabilities that
serve it, in selection order.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := buildDirectory(cfg, nil)
		if err != nil {
			return err
		}

		entries := dir.Entries()
		if len(args) == 1 {
			ids := dir.ForCategory(args[0])
			if len(ids) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No capability serves %q\n", args[0])
				return nil
			}
			entries = entries[:0]
			for _, id := range ids {
				if e, ok := dir.Get(id); ok {
					entries = append(entries, e)
				}
			}
		}

		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("ID", "MODE", "PRIORITY", "AUTONOMY", "CATEGORIES")
		for _, e := range entries {
			t.Row(e.ID, string(e.Mode), fmt.Sprint(e.Priority), fmt.Sprint(e.Autonomy), strings.Join(e.Categories, ","))
		}
		fmt.Fprintln(cmd.OutOrStdout(), t.String())
		return nil
	},
}
