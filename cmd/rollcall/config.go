package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/rollcall/internal/config"
	"github.com/jackzampolin/rollcall/internal/output"
	"github.com/jackzampolin/rollcall/internal/svcctx"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage rollcall configuration",
}

var configInitCmd = &cobra.Command{
	Use:         "init",
	Short:       "Write the default config to the home directory",
	Annotations: map[string]string{annotationNoConfig: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		h := svcctx.HomeFrom(cmd.Context())
		if err := h.EnsureExists(); err != nil {
			return err
		}
		path := h.ConfigPath()
		if h.ConfigExists() && !configForce {
			return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Show prints the configuration after defaults, the config file, and
ROLLCALL_* environment overrides are applied. ${ENV_VAR} references are
printed unresolved.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := svcctx.ConfigFrom(cmd.Context()).Get()
		format := output.GetFormat()
		if format == output.FormatTable {
			format = output.FormatYAML
		}
		return output.To(os.Stdout, format, cfg)
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing config file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
