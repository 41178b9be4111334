package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/martinemde/attractor/config"
	"github.com/martinemde/attractor/logging"
)

var (
	configPath string
	verbose    bool
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4"))
	toolStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")).Italic(true)
)

var rootCmd = &cobra.Command{
	Use:   "agentloop",
	Short: "Reason-then-act agent runner",
	Long: `agentloop sends a prompt to a model, runs the tools it asks for and
streams the answer back.

Usage:
  agentloop run "What time is it in Tokyo?"
  agentloop run --transcript session.yaml "Summarize README.md"
  agentloop config`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ./agentloop.yaml or ~/.agentloop/agentloop.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if verbose {
		cfg.Log.Development = true
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

func createLogger(cfg config.Config) *zap.Logger {
	logger, err := logging.New(logging.Options{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, warnStyle.Render(fmt.Sprintf("Warning: %v; logging disabled", err)))
		return zap.NewNop()
	}
	return logger
}

func printError(err error) {
	fmt.Fprintln(os.Stderr, errStyle.Render(fmt.Sprintf("Error: %v", err)))
}
