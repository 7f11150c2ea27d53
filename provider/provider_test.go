package provider_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/levee-labs/credit-gateway/provider"
)

func TestDetectProvider(t *testing.T) {
	require.Equal(t, "openai", provider.DetectProvider("gpt-4o"))
	require.Equal(t, "anthropic", provider.DetectProvider("claude-3-5-sonnet-20241022"))
	require.Equal(t, "mock", provider.DetectProvider("mock-standard"))
	require.Equal(t, "openai", provider.DetectProvider("llama-3-70b"))
}

func TestRegistryGetForModel(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register(provider.NewMockProvider())

	p, err := reg.GetForModel("mock-standard")
	require.NoError(t, err)
	require.Equal(t, "mock", p.Name())

	_, err = reg.GetForModel("gpt-4o")
	require.Error(t, err, "openai isn't registered in this test")
}

func TestMockProviderIsDeterministic(t *testing.T) {
	p := provider.NewMockProvider()
	messages := []provider.Message{{Role: "user", Content: "hello there, how are you doing today?"}}

	r1, err := p.GenerateCompletion(context.Background(), "mock-standard", messages, nil, nil)
	require.NoError(t, err)
	r2, err := p.GenerateCompletion(context.Background(), "mock-standard", messages, nil, nil)
	require.NoError(t, err)

	require.Equal(t, r1.InputTokens, r2.InputTokens)
	require.Equal(t, r1.OutputTokens, r2.OutputTokens)
	require.Equal(t, r1.OutputTokens, r1.InputTokens*2)
}

func TestMockProviderEnforcesMinimumInputTokens(t *testing.T) {
	p := provider.NewMockProvider()
	r, err := p.GenerateCompletion(context.Background(), "mock-standard", []provider.Message{{Role: "user", Content: "hi"}}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 10, r.InputTokens)
}

func TestMockProviderRespectsMaxTokensCap(t *testing.T) {
	p := provider.NewMockProvider()
	maxTokens := 5
	messages := []provider.Message{{Role: "user", Content: "a long message that would normally produce more tokens than the cap allows"}}
	r, err := p.GenerateCompletion(context.Background(), "mock-standard", messages, &maxTokens, nil)
	require.NoError(t, err)
	require.Equal(t, 5, r.OutputTokens)
}
