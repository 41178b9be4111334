package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/martinemde/attractor/agentloop"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the built-in tools",
	Long: `List the tools the agent can call.

  agentloop tools           # names and descriptions
  agentloop tools --verbose # include parameters`,
	Run: func(cmd *cobra.Command, args []string) {
		reg := agentloop.NewToolRegistry()
		agentloop.RegisterCoreTools(reg, agentloop.NewLocalWorkspace(""))
		printTools(cmd, reg)
	},
}

func printTools(cmd *cobra.Command, reg *agentloop.ToolRegistry) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render("Available Tools"))
	fmt.Fprintln(out)
	for _, def := range reg.Definitions() {
		fmt.Fprintf(out, "  %s\n", toolStyle.Render(def.Name))
		fmt.Fprintf(out, "    %s\n", labelStyle.Render(def.Description))
		if !verbose {
			continue
		}
		props, _ := def.Parameters["properties"].(map[string]any)
		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			desc := ""
			if p, ok := props[name].(map[string]any); ok {
				desc, _ = p["description"].(string)
			}
			fmt.Fprintf(out, "      %s %s\n", valueStyle.Render(name), labelStyle.Render(desc))
		}
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, labelStyle.Render(fmt.Sprintf("  Total: %d tools available", reg.Count())))
}
