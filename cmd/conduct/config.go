package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/conduct/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify conduct configuration.

Without arguments, displays the effective configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the value in the user config file.

Configuration is stored at ~/.config/conduct/config.yaml
Project-specific overrides can be placed in .conduct.yaml`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch len(args) {
		case 0:
			for _, key := range config.Keys() {
				value, _ := cfg.Get(key)
				fmt.Fprintf(out, "%s: %s\n", key, value)
			}
			for _, provider := range []string{config.ProviderAnthropic, config.ProviderGemini} {
				fmt.Fprintf(out, "# %s api key source: %s\n", provider, config.GetAPIKeySource(cfg, provider))
			}
			return nil
		case 1:
			value, err := cfg.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(out, value)
			return nil
		default:
			path := configPath
			if path == "" {
				path = config.GetUserConfigPath()
			}
			if err := config.SetAtPath(path, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(out, "Set %s in %s\n", args[0], path)
			return nil
		}
	},
}
