package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/rollcall/internal/config"
	"github.com/jackzampolin/rollcall/internal/home"
	"github.com/jackzampolin/rollcall/internal/output"
	"github.com/jackzampolin/rollcall/internal/providers"
	"github.com/jackzampolin/rollcall/internal/svcctx"
	"github.com/jackzampolin/rollcall/version"
)

// annotationNoConfig marks commands that run without loading config.
const annotationNoConfig = "rollcall/no-config"

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	logLevel     string
	logFormat    string
)

var rootCmd = &cobra.Command{
	Use:   "rollcall",
	Short: "Validate transportation enrollment forms against a student roster",
	Long: `Rollcall reads scanned enrollment forms, extracts the student fields on
them, and checks each form against a reference roster.

Each run:
  - Extracts key/value fields with a cloud form recognizer or a local reader
  - Normalizes names, dates, grades, phones, and addresses
  - Matches every form to at most one roster student (id, exact name, fuzzy name)
  - Writes a CSV or XLSX report with per-field discrepancies`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.SilenceUsage = true

	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.rollcall/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "rollcall home directory (default: ~/.rollcall)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "", "output format: yaml, json, or table (default: table on a terminal, else yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "info", "log level: debug, info, warn, or error",
	)
	rootCmd.PersistentFlags().StringVar(
		&logFormat, "log-format", "text", "log format: text or json",
	)

	// Set up output, logging, and services before any command runs
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(outputFormat)
		if err != nil {
			return err
		}
		output.SetFormat(format)

		logger, err := newLogger(os.Stderr, logLevel, logFormat)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)

		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		svc := &svcctx.Services{Logger: logger, Home: h}

		if cmd.Annotations[annotationNoConfig] != "true" {
			file := cfgFile
			if file == "" && h.ConfigExists() {
				file = h.ConfigPath()
			}
			mgr, err := config.NewManager(file)
			if err != nil {
				return err
			}
			mgr.SetLogger(logger)
			cfg := mgr.Get()
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			svc.Config = mgr
			svc.Registry = providers.NewRegistryFromConfig(cfg.ToRegistryConfig())
		}

		cmd.SetContext(svcctx.WithServices(cmd.Context(), svc))
		return nil
	}

	rootCmd.AddCommand(versionCmd)
}

// newLogger builds the process logger. Logs go to stderr so stdout carries
// only command output.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q (want text or json)", format)
	}
}
