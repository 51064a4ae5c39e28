package generation

import (
	"context"
	"strings"
	"time"

	"corelms/internal/cache"
	"corelms/internal/domain"
	"corelms/internal/logger"

	"go.uber.org/zap"
)

const healthcheckTimeout = 3 * time.Second

// Preflight resolves the provider order to try for a generation run. The
// order is healthcheck-informed and cached for a short TTL so lessons inside
// one job (and jobs close in time) do not re-probe providers.
type Preflight struct {
	kv  domain.Cache
	ttl time.Duration
}

func NewPreflight(kv domain.Cache, ttl time.Duration) *Preflight {
	return &Preflight{kv: kv, ttl: ttl}
}

// ProviderOrder returns provider names in the order the orchestrator should
// try them: healthy providers first, keeping the configured default order
// within each group. The computed order is cached; a cached order is reused
// as-is, filtered to names present in providers.
func (p *Preflight) ProviderOrder(ctx context.Context, providers map[string]domain.QuestionProvider, defaultOrder []string) []string {
	if cached, err := p.kv.Get(ctx, cache.ProviderOrderKey()); err == nil && cached != "" {
		if order := filterKnown(strings.Split(cached, ","), providers); len(order) > 0 {
			return order
		}
	}

	var healthy, unhealthy []string
	for _, name := range defaultOrder {
		provider, ok := providers[name]
		if !ok || !provider.Enabled() {
			continue
		}
		probeCtx, cancel := context.WithTimeout(ctx, healthcheckTimeout)
		ok, reason := provider.Healthcheck(probeCtx)
		cancel()
		if ok {
			healthy = append(healthy, name)
		} else {
			logger.Get().Debug("provider healthcheck failed",
				zap.String("provider", name), zap.String("reason", reason))
			unhealthy = append(unhealthy, name)
		}
	}
	order := append(healthy, unhealthy...)

	if len(order) > 0 {
		if err := p.kv.Set(ctx, cache.ProviderOrderKey(), strings.Join(order, ","), p.ttl); err != nil {
			logger.Get().Warn("failed to cache provider order", zap.Error(err))
		}
	}
	return order
}

func filterKnown(names []string, providers map[string]domain.QuestionProvider) []string {
	var order []string
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if _, ok := providers[name]; ok {
			order = append(order, name)
		}
	}
	return order
}
