package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"corelms/internal/config"
	"corelms/internal/domain"
	"corelms/internal/logger"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.uber.org/zap"
)

// OllamaProvider talks to a self-hosted Ollama server. It is typically last
// in the provider order: slow but available when the hosted routers are
// down or rate limited.
type OllamaProvider struct {
	cfg config.ProviderConfig
}

func NewOllama(cfg config.ProviderConfig) domain.QuestionProvider {
	return &OllamaProvider{cfg: cfg}
}

func (p *OllamaProvider) Name() string { return "ollama" }

func (p *OllamaProvider) Enabled() bool {
	return p.cfg.Enabled && p.cfg.BaseURL != "" && p.cfg.Model != ""
}

func (p *OllamaProvider) MinCallTime() time.Duration { return p.cfg.MinCallTime }
func (p *OllamaProvider) ReadTimeout() time.Duration { return p.cfg.TimeoutRead }

func (p *OllamaProvider) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GenerateResult, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(p.cfg.BaseURL),
		ollama.WithModel(p.cfg.Model),
		ollama.WithHTTPClient(&http.Client{Timeout: req.ReadTimeout}),
		ollama.WithFormat("json"),
	)
	if err != nil {
		return nil, fmt.Errorf("ollama client: %w", err)
	}

	temperature := p.cfg.Temperature
	prompt := buildGeneratePrompt(req.Title, req.Text, req.Count)
	if req.RepairText != "" {
		temperature = 0
		prompt = buildRepairPrompt(req.RepairText)
	}

	content, err := llm.Call(ctx, systemPrompt+"\n\n"+prompt, llms.WithTemperature(temperature))
	if err != nil {
		return nil, fmt.Errorf("ollama call: %w", err)
	}

	questions, parseErr := ParseQuestions(content)
	if parseErr != nil {
		logger.Get().Debug("ollama response failed to parse", zap.Error(parseErr))
		return &domain.GenerateResult{Raw: content}, nil
	}
	return &domain.GenerateResult{Questions: questions, Raw: content}, nil
}

// Healthcheck probes the Ollama tags endpoint, the cheapest call that
// confirms the server is up without loading a model.
func (p *OllamaProvider) Healthcheck(ctx context.Context) (bool, string) {
	if !p.Enabled() {
		return false, "disabled"
	}
	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/api/tags"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err.Error()
	}
	resp, err := (&http.Client{Timeout: 3 * time.Second}).Do(httpReq)
	if err != nil {
		return false, err.Error()
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return true, ""
}
