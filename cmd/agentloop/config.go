package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/martinemde/attractor/config"
)

var configInit bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Show the configuration after defaults, the config file and
AGENTLOOP_* environment overrides are applied.`,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configInit, "init", false, "Write the default config to ./agentloop.yaml")
}

func runConfig(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if configInit {
		return initConfig(cmd)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	data, err := cfg.YAML()
	if err != nil {
		return err
	}

	if used := config.Used(configPath); used != "" {
		fmt.Fprintln(out, titleStyle.Render("Configuration from "+used))
	} else {
		fmt.Fprintln(out, warnStyle.Render("No config file found. Showing defaults and environment overrides:"))
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, string(data))
	fmt.Fprintln(out)
	fmt.Fprintln(out, labelStyle.Render("Config file locations (in order of precedence):"))
	fmt.Fprintln(out, "  1. --config <path>")
	fmt.Fprintln(out, "  2. ./agentloop.yaml")
	fmt.Fprintln(out, "  3. ~/.agentloop/agentloop.yaml")
	fmt.Fprintln(out, labelStyle.Render("Environment overrides use the "+config.EnvPrefix+"_ prefix, e.g. "+config.EnvPrefix+"_MODEL_NAME."))
	return nil
}

func initConfig(cmd *cobra.Command) error {
	const path = config.FileName + ".yaml"
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintln(cmd.OutOrStdout(), warnStyle.Render(path+" already exists."))
		return nil
	}
	data, err := config.Default().YAML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Created "+path+" with default settings."))
	return nil
}
