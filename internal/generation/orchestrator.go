package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"corelms/internal/config"
	"corelms/internal/domain"
	"corelms/internal/logger"

	"go.uber.org/zap"
)

// Outcome is a successful generation result for one lesson.
type Outcome struct {
	Questions []domain.GeneratedQuestion
	Provider  string
	Attempts  int

	// Why aggregates the per-attempt failure reasons that preceded success.
	// It is attached to job metadata for observability and never surfaced as
	// an error.
	Why string
}

// Orchestrator produces validated questions for one lesson by trying
// providers in order under a global wall-clock budget shared across
// providers and retries. The budget is application-level accounting, not an
// OS timeout: remaining time is recomputed before every blocking call.
type Orchestrator struct {
	providers map[string]domain.QuestionProvider
	validator *Validator

	budget          time.Duration
	maxRetries      int
	backoffBase     time.Duration
	attemptOverhead time.Duration
	safetyMargin    time.Duration
}

func NewOrchestrator(providers map[string]domain.QuestionProvider, cfg config.LLMConfig) *Orchestrator {
	return &Orchestrator{
		providers:       providers,
		validator:       NewValidator(),
		budget:          cfg.Budget,
		maxRetries:      cfg.MaxRetries,
		backoffBase:     cfg.BackoffBase,
		attemptOverhead: cfg.AttemptOverhead,
		safetyMargin:    cfg.SafetyMargin,
	}
}

type attemptResult struct {
	valid      []domain.GeneratedQuestion
	raw        string
	degenerate bool
	why        string
}

// Generate tries each provider in order until one yields at least minQ
// validated questions. On exhaustion it returns an AI_GENERATION_EXHAUSTED
// domain error whose hint carries the aggregated reasons; the caller is then
// expected to fall back to the heuristic generator.
func (o *Orchestrator) Generate(ctx context.Context, title, text string, n, minQ int, order []string) (*Outcome, error) {
	start := time.Now()
	remaining := func() time.Duration { return o.budget - time.Since(start) }

	log := logger.Get()
	var best []domain.GeneratedQuestion
	bestProvider := ""
	bestAttempts := 0
	var reasons []string

providers:
	for _, name := range order {
		provider, ok := o.providers[name]
		if !ok {
			continue
		}
		if !provider.Enabled() {
			reasons = append(reasons, name+": disabled")
			continue
		}

		rem := remaining()
		if rem <= 0 {
			reasons = append(reasons, "budget_exhausted")
			break
		}
		if rem < provider.MinCallTime() {
			reasons = append(reasons, fmt.Sprintf("%s: skipped, %s remaining below min call time", name, rem.Round(time.Millisecond)))
			continue
		}

		// Cap attempts so the worst case still fits the remaining budget.
		maxAttempts := o.maxRetries
		if perAttempt := provider.ReadTimeout() + o.attemptOverhead; perAttempt > 0 {
			if fit := int(rem / perAttempt); fit < maxAttempts {
				maxAttempts = fit
			}
		}
		if maxAttempts < 1 {
			maxAttempts = 1
		}

		attempts := 0
		repairUsed := false
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			rem = remaining()
			if rem-o.safetyMargin <= 0 {
				reasons = append(reasons, "budget_exhausted")
				break providers
			}
			if rem < provider.MinCallTime() {
				reasons = append(reasons, name+": remaining below min call time")
				break
			}

			attempts++
			res := o.attempt(ctx, provider, domain.GenerateRequest{
				Title:       title,
				Text:        text,
				Count:       n,
				ReadTimeout: o.dynamicTimeout(provider, rem),
			})
			if res.why != "" {
				reasons = append(reasons, fmt.Sprintf("%s attempt %d: %s", name, attempt, res.why))
			}

			if len(res.valid) == 0 && res.raw != "" && !res.degenerate && !repairUsed {
				// The model produced text that failed schema validation.
				// One zero-temperature reformat pass per provider.
				repairUsed = true
				if rem = remaining(); rem-o.safetyMargin > 0 && rem >= provider.MinCallTime() {
					attempts++
					repair := o.attempt(ctx, provider, domain.GenerateRequest{
						Title:       title,
						Text:        text,
						Count:       n,
						ReadTimeout: o.dynamicTimeout(provider, rem),
						RepairText:  res.raw,
					})
					if repair.why != "" {
						reasons = append(reasons, name+" repair: "+repair.why)
					}
					if !repair.degenerate {
						res.valid = repair.valid
					}
				}
			}

			if len(res.valid) > len(best) {
				best = res.valid
				bestProvider = name
				bestAttempts = attempts
			}
			if len(best) >= minQ {
				if len(best) > n {
					best = best[:n]
				}
				log.Info("generation succeeded",
					zap.String("provider", bestProvider),
					zap.Int("attempts", bestAttempts),
					zap.Int("questions", len(best)))
				return &Outcome{
					Questions: best,
					Provider:  bestProvider,
					Attempts:  bestAttempts,
					Why:       strings.Join(reasons, "; "),
				}, nil
			}

			if attempt < maxAttempts {
				o.backoff(ctx, attempt, remaining())
			}
		}
	}

	why := strings.Join(reasons, "; ")
	log.Warn("generation exhausted", zap.String("why", why))
	return nil, domain.NewError(domain.ErrAIGenerationExhausted, "all providers and budget exhausted", nil).WithHint(why)
}

// dynamicTimeout shrinks the provider's configured read timeout when the
// remaining budget minus the safety margin is lower, so a single attempt can
// never blow the whole budget.
func (o *Orchestrator) dynamicTimeout(provider domain.QuestionProvider, rem time.Duration) time.Duration {
	timeout := provider.ReadTimeout()
	if dyn := rem - o.safetyMargin; dyn < timeout {
		timeout = dyn
	}
	return timeout
}

func (o *Orchestrator) attempt(ctx context.Context, provider domain.QuestionProvider, req domain.GenerateRequest) attemptResult {
	callCtx, cancel := context.WithTimeout(ctx, req.ReadTimeout+o.attemptOverhead)
	defer cancel()

	res, err := provider.Generate(callCtx, req)
	if err != nil {
		return attemptResult{why: err.Error()}
	}

	valid := o.validator.FilterValid(res.Questions)
	if IsDegenerate(valid) {
		return attemptResult{raw: res.Raw, degenerate: true, why: "degenerate answers"}
	}
	if len(valid) == 0 {
		why := "no valid questions"
		if len(res.Questions) > 0 {
			why = fmt.Sprintf("all %d candidates rejected", len(res.Questions))
		}
		return attemptResult{raw: res.Raw, why: why}
	}
	return attemptResult{valid: valid, raw: res.Raw}
}

func (o *Orchestrator) backoff(ctx context.Context, attempt int, rem time.Duration) {
	delay := o.backoffBase * time.Duration(attempt)
	if delay <= 0 || delay >= rem {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
