package provider

import (
	"corelms/internal/config"
	"corelms/internal/domain"
)

// Build wires one provider adapter per configured backend, keyed by the
// names used in the provider-order setting.
func Build(cfg config.LLMConfig) map[string]domain.QuestionProvider {
	return map[string]domain.QuestionProvider{
		"openrouter": NewOpenRouter(cfg.OpenRouter),
		"hfrouter":   NewHFRouter(cfg.HFRouter),
		"ollama":     NewOllama(cfg.Ollama),
	}
}
