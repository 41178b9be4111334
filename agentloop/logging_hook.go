package agentloop

import (
	"context"

	"go.uber.org/zap"
)

// LoggingHook writes a structured log line at every extension point.
// Streaming chunks are logged at debug level only.
type LoggingHook struct {
	logger *zap.Logger
}

// NewLoggingHook creates a LoggingHook. A nil logger discards output.
func NewLoggingHook(logger *zap.Logger) *LoggingHook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingHook{logger: logger}
}

func (h *LoggingHook) Name() string { return "logging" }

func (h *LoggingHook) with(ctx context.Context) *zap.Logger {
	step := StepFromContext(ctx)
	return h.logger.With(zap.String("agent", step.Agent), zap.Int("iteration", step.Iteration))
}

func (h *LoggingHook) PreCall(ctx context.Context, inputs []Msg) ([]Msg, error) {
	h.with(ctx).Info("call started", zap.Int("inputs", len(inputs)))
	return inputs, nil
}

func (h *LoggingHook) PreReasoning(ctx context.Context, msgs []Msg) ([]Msg, error) {
	h.with(ctx).Debug("reasoning", zap.Int("messages", len(msgs)))
	return msgs, nil
}

func (h *LoggingHook) OnReasoningChunk(ctx context.Context, c Chunk) error {
	if c.Done {
		h.with(ctx).Info("tool call finalized",
			zap.String("tool", c.ToolName),
			zap.String("call_id", c.ToolUseID))
	}
	return nil
}

func (h *LoggingHook) PostReasoning(ctx context.Context, msgs []Msg) ([]Msg, error) {
	uses := 0
	for _, m := range msgs {
		uses += len(m.ToolUses())
	}
	h.with(ctx).Debug("reasoning finished", zap.Int("messages", len(msgs)), zap.Int("tool_calls", uses))
	return msgs, nil
}

func (h *LoggingHook) PreActing(ctx context.Context, use ToolUseBlock) (ToolUseBlock, error) {
	h.with(ctx).Debug("dispatching tool",
		zap.String("tool", use.Name),
		zap.String("call_id", use.ID),
		zap.ByteString("input", use.Input))
	return use, nil
}

func (h *LoggingHook) PostActing(ctx context.Context, use ToolUseBlock, result ToolResultBlock) (ToolResultBlock, error) {
	fields := []zap.Field{
		zap.String("tool", use.Name),
		zap.String("call_id", result.ID),
		zap.String("status", string(result.Status)),
		zap.Int("output_bytes", len(result.Output)),
	}
	if result.IsError() {
		h.with(ctx).Warn("tool finished", fields...)
	} else {
		h.with(ctx).Info("tool finished", fields...)
	}
	return result, nil
}

func (h *LoggingHook) PostCall(ctx context.Context, reply Msg) (Msg, error) {
	h.with(ctx).Info("call finished", zap.String("reply_id", reply.ID), zap.Any("metadata", reply.Metadata))
	return reply, nil
}

func (h *LoggingHook) OnError(ctx context.Context, err error) {
	h.with(ctx).Error("call failed", zap.Error(err))
}
