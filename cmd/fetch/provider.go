package main

import (
	"fmt"
	"time"

	"github.com/fetchctl/fetch/internal/agent"
	"github.com/fetchctl/fetch/internal/agent/providers"
	"github.com/fetchctl/fetch/internal/config"
)

// buildProvider constructs the agent.LLMProvider named by cfg.LLM.DefaultProvider,
// reading its credentials and endpoint overrides out of cfg.LLM.Providers. This
// mirrors the teacher's per-provider config blocks (config_llm.go) but, since
// fetch has no gateway-side provider router, picks exactly one provider up
// front rather than building a fallback chain.
func buildProvider(cfg *config.Config) (agent.LLMProvider, error) {
	name := cfg.LLM.DefaultProvider
	if name == "" {
		name = "anthropic"
	}
	providerCfg := cfg.LLM.Providers[name]

	switch name {
	case "anthropic":
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:  providerCfg.APIKey,
			BaseURL: providerCfg.BaseURL,
		})
	case "openai":
		return providers.NewOpenAIProvider(providerCfg.APIKey), nil
	case "google":
		return providers.NewGoogleProvider(providers.GoogleConfig{
			APIKey: providerCfg.APIKey,
		})
	case "azure":
		return providers.NewAzureOpenAIProvider(providers.AzureOpenAIConfig{
			Endpoint:   providerCfg.BaseURL,
			APIKey:     providerCfg.APIKey,
			APIVersion: providerCfg.APIVersion,
		})
	case "bedrock":
		return providers.NewBedrockProvider(providers.BedrockConfig{
			Region: cfg.LLM.Bedrock.Region,
		})
	case "copilot_proxy":
		return providers.NewCopilotProxyProvider(providers.CopilotProxyConfig{
			BaseURL: providerCfg.BaseURL,
		})
	case "ollama":
		return providers.NewOllamaProvider(providers.OllamaConfig{
			BaseURL:      providerCfg.BaseURL,
			DefaultModel: providerCfg.DefaultModel,
			Timeout:      30 * time.Second,
		}), nil
	case "openrouter":
		return providers.NewOpenRouterProvider(providers.OpenRouterConfig{
			APIKey:       providerCfg.APIKey,
			DefaultModel: providerCfg.DefaultModel,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q (configure llm.default_provider)", name)
	}
}
