package unifiedllm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"sync"
)

// Middleware wraps a blocking provider call.
type Middleware func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error)

// StreamMiddleware wraps stream establishment. It sees the request and the
// returned channel, not the events.
type StreamMiddleware func(ctx context.Context, req Request, next func(context.Context, Request) (<-chan StreamEvent, error)) (<-chan StreamEvent, error)

// Client routes requests to registered provider adapters. A request goes to
// its explicit Provider, else to the catalog provider of its model when
// that provider is registered, else to the default provider.
type Client struct {
	mu              sync.RWMutex
	providers       map[string]ProviderAdapter
	defaultProvider string
	middleware      []Middleware
	streamMW        []StreamMiddleware
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithProvider registers an adapter under name.
func WithProvider(name string, adapter ProviderAdapter) ClientOption {
	return func(c *Client) { c.providers[name] = adapter }
}

// WithDefaultProvider names the fallback provider.
func WithDefaultProvider(name string) ClientOption {
	return func(c *Client) { c.defaultProvider = name }
}

// WithMiddleware appends blocking middleware. The first registered runs
// outermost.
func WithMiddleware(mw ...Middleware) ClientOption {
	return func(c *Client) { c.middleware = append(c.middleware, mw...) }
}

// WithStreamMiddleware appends stream middleware, outermost first.
func WithStreamMiddleware(mw ...StreamMiddleware) ClientOption {
	return func(c *Client) { c.streamMW = append(c.streamMW, mw...) }
}

// NewClient builds a Client. A lone provider becomes the default.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{providers: make(map[string]ProviderAdapter)}
	for _, opt := range opts {
		opt(c)
	}
	if c.defaultProvider == "" && len(c.providers) == 1 {
		for name := range c.providers {
			c.defaultProvider = name
		}
	}
	return c
}

// RegisterProvider adds or replaces an adapter. The first provider
// registered on a client without a default becomes the default.
func (c *Client) RegisterProvider(name string, adapter ProviderAdapter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[name] = adapter
	if c.defaultProvider == "" {
		c.defaultProvider = name
	}
}

// resolveProvider picks the adapter for req.
func (c *Client) resolveProvider(req Request) (ProviderAdapter, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	name := req.Provider
	if name == "" {
		if info := GetModelInfo(req.Model); info != nil {
			if _, ok := c.providers[info.Provider]; ok {
				name = info.Provider
			}
		}
	}
	if name == "" {
		name = c.defaultProvider
	}
	if name == "" {
		return nil, &ConfigurationError{Message: "no provider specified and no default provider configured"}
	}
	adapter, ok := c.providers[name]
	if !ok {
		return nil, &ConfigurationError{Message: fmt.Sprintf("provider %q is not registered", name)}
	}
	return adapter, nil
}

// chain wraps call so that mws[0] runs outermost.
func chain[T any](mws []func(context.Context, Request, func(context.Context, Request) (T, error)) (T, error),
	call func(context.Context, Request) (T, error)) func(context.Context, Request) (T, error) {
	for _, mw := range slices.Backward(mws) {
		next := call
		call = func(ctx context.Context, r Request) (T, error) { return mw(ctx, r, next) }
	}
	return call
}

// Complete sends a blocking request through middleware to the resolved
// adapter.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	adapter, err := c.resolveProvider(req)
	if err != nil {
		return nil, err
	}
	if req.Provider == "" {
		req.Provider = adapter.Name()
	}
	c.mu.RLock()
	mws := make([]func(context.Context, Request, func(context.Context, Request) (*Response, error)) (*Response, error), len(c.middleware))
	for i, mw := range c.middleware {
		mws[i] = mw
	}
	c.mu.RUnlock()
	return chain(mws, adapter.Complete)(ctx, req)
}

// Stream opens a stream through middleware on the resolved adapter.
func (c *Client) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	adapter, err := c.resolveProvider(req)
	if err != nil {
		return nil, err
	}
	if req.Provider == "" {
		req.Provider = adapter.Name()
	}
	c.mu.RLock()
	mws := make([]func(context.Context, Request, func(context.Context, Request) (<-chan StreamEvent, error)) (<-chan StreamEvent, error), len(c.streamMW))
	for i, mw := range c.streamMW {
		mws[i] = mw
	}
	c.mu.RUnlock()
	return chain(mws, adapter.Stream)(ctx, req)
}

// Providers returns the registered provider names, sorted.
func (c *Client) Providers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.providers))
}

// Close closes every adapter that holds resources and joins their errors.
func (c *Client) Close() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var errs []error
	for _, adapter := range c.providers {
		if closer, ok := adapter.(Closer); ok {
			errs = append(errs, closer.Close())
		}
	}
	return errors.Join(errs...)
}

// envProvider builds an adapter when its credentials are in the
// environment. build is not called when the trigger variables are unset.
type envProvider struct {
	name  string
	keys  []string
	build func(ctx context.Context, value string) (ProviderAdapter, error)
}

var envProviders = []envProvider{
	{"openai", []string{"OPENAI_API_KEY"}, func(_ context.Context, key string) (ProviderAdapter, error) {
		return NewOpenAIAdapter(key), nil
	}},
	{"gemini", []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}, func(ctx context.Context, key string) (ProviderAdapter, error) {
		return NewGeminiAdapter(ctx, key)
	}},
	{"ollama", []string{"OLLAMA_HOST"}, func(context.Context, string) (ProviderAdapter, error) {
		return NewOllamaAdapterFromEnv()
	}},
	{"anthropic", []string{"ANTHROPIC_API_KEY"}, func(_ context.Context, key string) (ProviderAdapter, error) {
		return NewGollmAdapter("anthropic", key)
	}},
}

// NewClientFromEnv builds a Client from opts, then registers an adapter for
// every provider whose credentials are in the environment: OPENAI_API_KEY,
// GEMINI_API_KEY or GOOGLE_API_KEY, OLLAMA_HOST and ANTHROPIC_API_KEY.
func NewClientFromEnv(ctx context.Context, opts ...ClientOption) (*Client, error) {
	c := NewClient(opts...)
	for _, p := range envProviders {
		value := firstEnv(p.keys...)
		if value == "" {
			continue
		}
		adapter, err := p.build(ctx, value)
		if err != nil {
			return nil, fmt.Errorf("%s from environment: %w", p.name, err)
		}
		c.RegisterProvider(p.name, adapter)
	}
	return c, nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
