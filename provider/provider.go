// Package provider implements the outbound driver for each LLM
// backend the gateway can call. The interface is deliberately narrow —
// one non-streaming completion call — because streaming, embeddings,
// and tool calling are explicit Non-goals: the gateway's job is to
// meter and charge completions, not proxy the full provider surface.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Message is a single chat turn in an OpenAI-compatible request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response is the normalized result of a completion call, carrying
// exactly what the cost engine and usage record need.
type Response struct {
	Content      string
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	// Raw preserves the provider's original response body for passthrough.
	Raw any
}

// Provider drives one LLM backend.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai", "anthropic").
	Name() string
	// GenerateCompletion issues a single non-streaming completion call.
	GenerateCompletion(ctx context.Context, model string, messages []Message, maxTokens *int, temperature *float64) (*Response, error)
}

// Config holds the per-driver HTTP client configuration. Callers build
// one of these per request when the org uses a BYOK credential, and
// once at startup for the platform-managed default.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Registry holds one Provider instance per provider name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// GetForModel finds the driver for a given model name.
func (r *Registry) GetForModel(model string) (Provider, error) {
	name := DetectProvider(model)
	p, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("provider %s not registered for model: %s", name, model)
	}
	return p, nil
}

// DetectProvider maps a model name to the provider that serves it.
// Narrowed to the three drivers this gateway ships: OpenAI, Anthropic,
// and the deterministic mock used in tests and local development. Any
// unrecognized model name defaults to "openai", matching the ground
// truth router's treatment of unknown models as OpenAI-compatible
// rather than leaving them unroutable.
func DetectProvider(model string) string {
	m := strings.ToLower(model)
	patterns := map[string][]string{
		"openai":    {"gpt", "o1", "o3", "davinci", "text-embedding"},
		"anthropic": {"claude"},
		"mock":      {"mock-"},
	}
	for name, prefixes := range patterns {
		for _, prefix := range prefixes {
			if strings.Contains(m, prefix) {
				return name
			}
		}
	}
	return "openai"
}

// NewDriverForBYOK builds a short-lived driver bound to a decrypted
// BYOK key, used once for the request that needed it rather than
// registered on the shared Registry.
func NewDriverForBYOK(providerName, apiKey string) (Provider, error) {
	cfg := Config{APIKey: apiKey}
	switch providerName {
	case "openai":
		return NewOpenAIProvider(cfg), nil
	case "anthropic":
		return NewAnthropicProvider(cfg), nil
	default:
		return nil, fmt.Errorf("no BYOK driver available for provider %s", providerName)
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: timeout,
	}
}
