package agentloop

import (
	"context"
	"fmt"
	"strings"
)

// TruncationMode specifies which part of an oversized output is kept.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// defaultCharLimit applies to tools without an entry in DefaultToolCharLimits.
const defaultCharLimit = 30000

// DefaultToolCharLimits are per-tool character limits.
var DefaultToolCharLimits = map[string]int{
	"read_file":      50000,
	"list_directory": 20000,
	"current_time":   1000,
}

// DefaultTruncationModes are per-tool truncation modes. Tools without an
// entry use head/tail.
var DefaultTruncationModes = map[string]TruncationMode{
	"read_file":      TruncateHeadTail,
	"list_directory": TruncateTail,
	"current_time":   TruncateTail,
}

// DefaultToolLineLimits are per-tool line limits, applied after the
// character limit.
var DefaultToolLineLimits = map[string]int{
	"list_directory": 500,
}

// TruncateOutput cuts output to at most maxChars characters plus a marker
// telling the model what was removed.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if maxChars <= 0 || len(output) <= maxChars {
		return output
	}
	removed := len(output) - maxChars
	if mode == TruncateTail {
		return fmt.Sprintf("[Output truncated: the first %d characters were removed.]\n\n", removed) +
			output[len(output)-maxChars:]
	}
	half := maxChars / 2
	return output[:half] +
		fmt.Sprintf("\n\n[Output truncated: %d characters were removed from the middle. "+
			"Re-run the tool with narrower arguments to see them.]\n\n", removed) +
		output[len(output)-(maxChars-half):]
}

// TruncateLines keeps the first and last lines of output up to maxLines.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if maxLines <= 0 || len(lines) <= maxLines {
		return output
	}
	head := maxLines / 2
	tail := maxLines - head
	omitted := len(lines) - head - tail
	return strings.Join(lines[:head], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tail:], "\n")
}

// TruncateToolOutput applies the character limit, then the line limit, for
// toolName. Entries in charLimits and lineLimits override the defaults.
func TruncateToolOutput(output, toolName string, charLimits, lineLimits map[string]int) string {
	maxChars, ok := charLimits[toolName]
	if !ok {
		if maxChars, ok = DefaultToolCharLimits[toolName]; !ok {
			maxChars = defaultCharLimit
		}
	}
	mode, ok := DefaultTruncationModes[toolName]
	if !ok {
		mode = TruncateHeadTail
	}
	result := TruncateOutput(output, maxChars, mode)

	maxLines, ok := lineLimits[toolName]
	if !ok {
		maxLines = DefaultToolLineLimits[toolName]
	}
	return TruncateLines(result, maxLines)
}

// TruncationHook bounds tool output before it is committed. The untruncated
// output is still visible to hooks registered before it.
type TruncationHook struct {
	CharLimits map[string]int
	LineLimits map[string]int
}

func (h *TruncationHook) Name() string { return "truncation" }

// PostActing implements PostActingHook.
func (h *TruncationHook) PostActing(_ context.Context, use ToolUseBlock, result ToolResultBlock) (ToolResultBlock, error) {
	result.Output = TruncateToolOutput(result.Output, use.Name, h.CharLimits, h.LineLimits)
	return result, nil
}
