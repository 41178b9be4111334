package agentloop

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// BuildEnvironmentContext renders the environment block appended to a
// system prompt. The model line is omitted when model is empty.
func BuildEnvironmentContext(ws Workspace, model string, now time.Time) string {
	dir := ws.WorkingDirectory()
	fields := [][2]string{
		{"Working directory", dir},
		{"Is git repository", fmt.Sprint(insideGitRepo(dir))},
		{"Platform", ws.Platform()},
		{"OS version", ws.OSVersion()},
		{"Today's date", now.Format(time.DateOnly)},
	}
	if model != "" {
		fields = append(fields, [2]string{"Model", model})
	}

	lines := make([]string, 0, len(fields)+2)
	lines = append(lines, "<environment>")
	for _, f := range fields {
		lines = append(lines, f[0]+": "+f[1])
	}
	lines = append(lines, "</environment>")
	return strings.Join(lines, "\n")
}

// insideGitRepo reports whether dir or an ancestor holds a .git entry.
func insideGitRepo(dir string) bool {
	for d := dir; ; {
		if _, err := os.Stat(filepath.Join(d, ".git")); err == nil {
			return true
		}
		parent := filepath.Dir(d)
		if parent == d {
			return false
		}
		d = parent
	}
}
