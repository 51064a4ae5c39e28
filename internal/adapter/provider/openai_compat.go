package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"corelms/internal/config"
	"corelms/internal/domain"
	"corelms/internal/logger"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// openAICompat serves every backend speaking the OpenAI chat-completions
// dialect. OpenRouter and the Hugging Face router differ only in base URL,
// credentials and model naming.
type openAICompat struct {
	name string
	cfg  config.ProviderConfig
}

func NewOpenRouter(cfg config.ProviderConfig) domain.QuestionProvider {
	return &openAICompat{name: "openrouter", cfg: cfg}
}

func NewHFRouter(cfg config.ProviderConfig) domain.QuestionProvider {
	return &openAICompat{name: "hfrouter", cfg: cfg}
}

func (p *openAICompat) Name() string { return p.name }

func (p *openAICompat) Enabled() bool {
	return p.cfg.Enabled && p.cfg.APIKey != "" && p.cfg.Model != ""
}

func (p *openAICompat) MinCallTime() time.Duration { return p.cfg.MinCallTime }
func (p *openAICompat) ReadTimeout() time.Duration { return p.cfg.TimeoutRead }

// client builds a per-call client so the dynamic read timeout computed by
// the orchestrator applies to this call only.
func (p *openAICompat) client(readTimeout time.Duration) *openai.Client {
	clientCfg := openai.DefaultConfig(p.cfg.APIKey)
	clientCfg.BaseURL = p.cfg.BaseURL
	clientCfg.HTTPClient = &http.Client{Timeout: readTimeout + p.cfg.TimeoutConnect}
	return openai.NewClientWithConfig(clientCfg)
}

func (p *openAICompat) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GenerateResult, error) {
	temperature := p.cfg.Temperature
	prompt := buildGeneratePrompt(req.Title, req.Text, req.Count)
	if req.RepairText != "" {
		temperature = 0
		prompt = buildRepairPrompt(req.RepairText)
	}

	resp, err := p.client(req.ReadTimeout).CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.cfg.Model,
		Temperature: float32(temperature),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s chat completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", p.name)
	}

	content := resp.Choices[0].Message.Content
	questions, parseErr := ParseQuestions(content)
	if parseErr != nil {
		// Raw is kept so the orchestrator can run a repair pass.
		logger.Get().Debug("provider response failed to parse",
			zap.String("provider", p.name), zap.Error(parseErr))
		return &domain.GenerateResult{Raw: content}, nil
	}
	return &domain.GenerateResult{Questions: questions, Raw: content}, nil
}

func (p *openAICompat) Healthcheck(ctx context.Context) (bool, string) {
	if !p.Enabled() {
		return false, "disabled"
	}
	if _, err := p.client(3 * time.Second).ListModels(ctx); err != nil {
		return false, err.Error()
	}
	return true, ""
}
