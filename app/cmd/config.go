package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lexcodex/quill/agent"
)

// newConfigCmd registers subcommands that inspect or mutate config.yaml
// through the typed config, so unknown keys and bad values fail before
// anything is written.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or modify the workspace config",
	}
	cmd.AddCommand(newConfigGetCmd(), newConfigSetCmd(), newConfigShowCmd())
	return cmd
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Read a config value by dotted key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := agent.LoadConfig(cfgFile)
			if err != nil {
				return err
			}
			value, err := configValue(cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Update a config value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := agent.LoadConfig(cfgFile)
			if err != nil {
				return err
			}
			if err := applyConfigValue(cfg, args[0], args[1]); err != nil {
				return err
			}
			if err := agent.SaveConfig(cfgFile, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], args[1])
			return nil
		},
	}
}

// newConfigShowCmd prints every known key with its effective value,
// defaults included.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := agent.LoadConfig(cfgFile)
			if err != nil {
				return err
			}
			for _, key := range sortedConfigKeys() {
				value, err := configValue(cfg, key)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-26s %s\n", key, value)
			}
			return nil
		},
	}
}
