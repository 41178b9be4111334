// Package unifiedllm is the provider-agnostic model client used by the
// agent engine. It defines the shared message and stream-event types, a
// Client that routes requests to registered ProviderAdapters through
// middleware, and adapters for gollm, the OpenAI Responses API, Ollama and
// Gemini.
//
// # Streaming
//
// Every adapter turns its provider's wire stream into StreamEvents. Text and
// reasoning arrive as TextDelta and ReasoningDelta; tool calls arrive as
// ToolCallStart, zero or more ToolCallDelta argument fragments, and a
// ToolCallEnd. Providers that only deliver whole tool calls (Ollama, Gemini)
// emit Start and End with the complete arguments and no fragments.
//
//	client := unifiedllm.NewClient(
//	    unifiedllm.WithProvider("openai", unifiedllm.NewOpenAIAdapter(os.Getenv("OPENAI_API_KEY"))),
//	    unifiedllm.WithStreamMiddleware(unifiedllm.RetryStreamMiddleware(unifiedllm.DefaultRetryPolicy())),
//	)
//	events, err := client.Stream(ctx, unifiedllm.Request{
//	    Model:    "gpt-5.2",
//	    Messages: []unifiedllm.Message{unifiedllm.UserMessage("Hello")},
//	})
//
// # Errors
//
// Provider failures arrive as *ProviderError classified by ErrorKind.
// IsRetryable consults the kind for Retry and RetryStreamMiddleware, and a
// server Retry-After overrides the policy backoff.
//
// # Model Catalog
//
// GetModelInfo resolves ids and aliases to a provider:
//
//	info := unifiedllm.GetModelInfo("sonnet")
//	models := unifiedllm.ListModels("ollama")
package unifiedllm
