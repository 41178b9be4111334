package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RegisterCoreTools registers read_file, list_directory and current_time.
// The file tools operate on ws.
func RegisterCoreTools(reg *ToolRegistry, ws Workspace) {
	registerReadFile(reg, ws)
	registerListDirectory(reg, ws)
	registerCurrentTime(reg, time.Now)
}

func registerReadFile(reg *ToolRegistry, ws Workspace) {
	reg.Register(Tool{
		Definition: ToolDefinition{
			Name:        "read_file",
			Description: "Read a text file. Returns line-numbered content.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"file_path": map[string]any{
						"type":        "string",
						"description": "Path to the file, absolute or relative to the working directory.",
					},
					"offset": map[string]any{
						"type":        "integer",
						"description": "1-based line number to start reading from.",
					},
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum number of lines to read. Default: 2000.",
					},
				},
				"required": []string{"file_path"},
			},
		},
		Run: func(ctx context.Context, tc *ToolContext, input json.RawMessage) (string, error) {
			args, err := ParseToolArguments(input)
			if err != nil {
				return "", err
			}
			filePath, ok := GetStringArg(args, "file_path")
			if !ok || filePath == "" {
				return "", fmt.Errorf("file_path is required")
			}
			offset, _ := GetIntArg(args, "offset")
			limit, _ := GetIntArg(args, "limit")
			if limit == 0 {
				limit = 2000
			}
			out, err := ws.ReadFile(filePath, offset, limit)
			if err != nil {
				return "", err
			}
			tc.Report(fmt.Sprintf("read %d lines from %s", strings.Count(out, "\n"), filePath))
			return out, nil
		},
	})
}

func registerListDirectory(reg *ToolRegistry, ws Workspace) {
	reg.Register(Tool{
		Definition: ToolDefinition{
			Name:        "list_directory",
			Description: "List the entries of a directory, optionally recursing.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Directory to list. Default: the working directory.",
					},
					"depth": map[string]any{
						"type":        "integer",
						"description": "How many levels to descend. Default: 1.",
					},
					"hidden": map[string]any{
						"type":        "boolean",
						"description": "Include entries whose name starts with a dot.",
					},
				},
			},
		},
		Run: func(ctx context.Context, tc *ToolContext, input json.RawMessage) (string, error) {
			args, err := ParseToolArguments(input)
			if err != nil {
				return "", err
			}
			path, _ := GetStringArg(args, "path")
			if path == "" {
				path = "."
			}
			depth, _ := GetIntArg(args, "depth")
			hidden, _ := GetBoolArg(args, "hidden")
			entries, err := ws.ListDirectory(path, depth, func(dir string) {
				tc.Report("scanned " + dir + "\n")
			})
			if err != nil {
				return "", err
			}
			if !hidden {
				entries = visibleEntries(entries)
			}
			if len(entries) == 0 {
				return "(empty directory)", nil
			}
			var sb strings.Builder
			for _, e := range entries {
				if e.IsDir {
					fmt.Fprintf(&sb, "%s/\n", e.Path)
				} else {
					fmt.Fprintf(&sb, "%s (%d bytes)\n", e.Path, e.Size)
				}
			}
			return sb.String(), nil
		},
	})
}

func registerCurrentTime(reg *ToolRegistry, now func() time.Time) {
	reg.Register(Tool{
		Definition: ToolDefinition{
			Name:        "current_time",
			Description: "Return the current date and time.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"timezone": map[string]any{
						"type":        "string",
						"description": "IANA time zone name such as Europe/Paris. Default: UTC.",
					},
				},
			},
		},
		Run: func(ctx context.Context, tc *ToolContext, input json.RawMessage) (string, error) {
			args, err := ParseToolArguments(input)
			if err != nil {
				return "", err
			}
			loc := time.UTC
			if tz, ok := GetStringArg(args, "timezone"); ok && tz != "" {
				if loc, err = time.LoadLocation(tz); err != nil {
					return "", fmt.Errorf("unknown timezone %q", tz)
				}
			}
			return now().In(loc).Format(time.RFC3339), nil
		},
	})
}

func visibleEntries(entries []DirEntry) []DirEntry {
	out := entries[:0]
	for _, e := range entries {
		if !strings.HasPrefix(e.Path, ".") && !strings.Contains(e.Path, "/.") {
			out = append(out, e)
		}
	}
	return out
}
