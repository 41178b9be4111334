// Package agentloop runs a reason-then-act agent against a streaming model.
//
// An Agent alternates between reasoning steps, where the model's delta
// stream is folded into conversation messages, and acting steps, where the
// tool invocations the model requested are executed and their results
// committed. The loop ends when the model stops calling tools, when it
// only calls tools that do not exist, when the iteration bound is reached,
// or when Interrupt is observed.
//
// # Guarantees
//
// Every tool invocation the agent commits is followed by exactly one
// result with the same id, real or synthesized, whatever path ends the
// call. Results are committed in invocation order. A failed model stream
// commits nothing from its step.
//
// # Hooks
//
// Hooks implement any of PreCallHook, PreReasoningHook, ReasoningChunkHook,
// PostReasoningHook, PreActingHook, ActingChunkHook, PostActingHook,
// PostCallHook and ErrorHook. They run in registration order and each
// transforming hook receives the previous hook's output. Built-in hooks:
// EventHook, LoggingHook, TruncationHook and LoopDetectionHook.
//
// # Quick Start
//
//	client := unifiedllm.NewClient(unifiedllm.WithProvider("openai", unifiedllm.NewOpenAIAdapter(key)))
//	tools := agentloop.NewToolRegistry()
//	agentloop.RegisterCoreTools(tools, agentloop.NewLocalWorkspace(""))
//
//	agent := agentloop.NewAgent("assistant", client,
//	    agentloop.WithTools(tools),
//	    agentloop.WithConfig(agentloop.Config{Model: "gpt-5.2", MaxIters: 10}),
//	    agentloop.WithHooks(&agentloop.TruncationHook{}),
//	)
//	reply, err := agent.Call(ctx, agentloop.UserMsg("What time is it in Paris?"))
package agentloop
