package generation

import (
	"context"
	"strconv"
	"strings"

	"corelms/internal/cache"
	"corelms/internal/config"
	"corelms/internal/domain"
	"corelms/internal/logger"

	"go.uber.org/zap"
)

// LoadRuntimeSnapshot reads the admin runtime overrides hash once and merges
// it over the static LLM configuration, returning an effective copy. Jobs
// and requests take one snapshot up front and never read the override store
// again mid-algorithm, so a flag flip cannot change behavior half-way
// through a lesson loop.
//
// Hash fields: "provider_order", and per provider "<name>.enabled",
// "<name>.model", "<name>.base_url", "<name>.api_key". Unknown fields are
// ignored; a missing or unreadable hash leaves the static config untouched.
func LoadRuntimeSnapshot(ctx context.Context, kv domain.Cache, base config.LLMConfig) config.LLMConfig {
	effective := base

	fields, err := kv.HGetAll(ctx, cache.RuntimeLLMKey())
	if err != nil {
		if err != domain.ErrCacheMiss {
			logger.Get().Warn("runtime overrides unavailable, using static config", zap.Error(err))
		}
		return effective
	}
	if len(fields) == 0 {
		return effective
	}

	if order, ok := fields["provider_order"]; ok && strings.TrimSpace(order) != "" {
		effective.ProviderOrder = order
	}
	applyProviderOverrides(&effective.OpenRouter, "openrouter", fields)
	applyProviderOverrides(&effective.HFRouter, "hfrouter", fields)
	applyProviderOverrides(&effective.Ollama, "ollama", fields)
	return effective
}

func applyProviderOverrides(pc *config.ProviderConfig, name string, fields map[string]string) {
	if v, ok := fields[name+".enabled"]; ok {
		if enabled, err := strconv.ParseBool(v); err == nil {
			pc.Enabled = enabled
		}
	}
	if v, ok := fields[name+".model"]; ok && v != "" {
		pc.Model = v
	}
	if v, ok := fields[name+".base_url"]; ok && v != "" {
		pc.BaseURL = v
	}
	if v, ok := fields[name+".api_key"]; ok && v != "" {
		pc.APIKey = v
	}
}

// ProviderOrderList splits the configured comma-separated order into names.
func ProviderOrderList(order string) []string {
	var names []string
	for _, part := range strings.Split(order, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}
