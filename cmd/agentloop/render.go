package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/martinemde/attractor/agentloop"
)

// renderer prints agent events as they arrive.
type renderer struct {
	out           io.Writer
	showReasoning bool
	streamed      bool
	midLine       bool
}

func newRenderer(out io.Writer, showReasoning bool) *renderer {
	return &renderer{out: out, showReasoning: showReasoning}
}

func (r *renderer) consume(events <-chan agentloop.Event) {
	for ev := range events {
		r.render(ev)
	}
}

func (r *renderer) render(ev agentloop.Event) {
	str := func(key string) string {
		s, _ := ev.Data[key].(string)
		return s
	}
	switch ev.Kind {
	case agentloop.EventAssistantTextDelta:
		delta := str("delta")
		fmt.Fprint(r.out, delta)
		r.streamed = true
		r.midLine = !strings.HasSuffix(delta, "\n")
	case agentloop.EventReasoningDelta:
		if r.showReasoning {
			fmt.Fprint(r.out, dimStyle.Render(str("delta")))
			r.midLine = true
		}
	case agentloop.EventToolCallStart:
		r.line(fmt.Sprintf("%s %s %s", toolStyle.Render("→"), toolStyle.Render(str("tool_name")), labelStyle.Render(str("input"))))
	case agentloop.EventToolCallEnd:
		mark, style := "✓", okStyle
		if str("status") != string(agentloop.StatusSuccess) {
			mark, style = "✗", errStyle
		}
		r.line(style.Render(fmt.Sprintf("%s %s (%s)", mark, str("tool_name"), str("status"))))
	case agentloop.EventLoopDetection:
		r.line(warnStyle.Render("! repeated tool calls detected; asking the model to change approach"))
	case agentloop.EventTurnLimit:
		r.line(warnStyle.Render("! iteration limit reached"))
	case agentloop.EventInterrupted:
		r.line(warnStyle.Render(fmt.Sprintf("! interrupted: %v", ev.Data["reason"])))
	}
}

func (r *renderer) line(s string) {
	if r.midLine {
		fmt.Fprintln(r.out)
		r.midLine = false
	}
	fmt.Fprintln(r.out, s)
}

// finish prints the reply when it was not streamed as text deltas.
func (r *renderer) finish(reply agentloop.Msg) {
	if r.midLine {
		fmt.Fprintln(r.out)
		r.midLine = false
	}
	synthesized := reply.Metadata["interrupted"] == true || reply.Metadata["max_iters_reached"] == true
	if synthesized || !r.streamed {
		fmt.Fprintln(r.out, reply.Text())
	}
}
