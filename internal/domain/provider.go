package domain

import (
	"context"
	"time"
)

// GeneratedQuestion is the normalized candidate shape every provider adapter
// maps its response into. Option lists, alternate key names and
// answer-as-index variants are resolved at the adapter boundary.
type GeneratedQuestion struct {
	Type          QuestionType `json:"type"`
	Prompt        string       `json:"prompt"`
	CorrectAnswer string       `json:"correct_answer"`
	Explanation   string       `json:"explanation,omitempty"`
}

// GenerateRequest asks a provider for Count candidate questions about one
// lesson. ReadTimeout is the dynamic per-call read timeout computed by the
// orchestrator from the remaining budget. RepairText, when set, switches the
// call into the zero-temperature repair mode: the provider is asked to
// reformat the broken raw output into strict JSON instead of generating anew.
type GenerateRequest struct {
	Title       string
	Text        string
	Count       int
	ReadTimeout time.Duration
	RepairText  string
}

// GenerateResult carries the parsed candidates plus the raw response text.
// Raw is kept even when Questions is empty so the orchestrator can attempt a
// repair pass on output that existed but failed schema validation.
type GenerateResult struct {
	Questions []GeneratedQuestion
	Raw       string
}

// QuestionProvider is the uniform contract every AI backend adapter
// implements.
type QuestionProvider interface {
	Name() string

	// Enabled reports whether the provider is configured and switched on in
	// the effective (runtime-merged) settings. Disabled providers are skipped
	// outright by the orchestrator.
	Enabled() bool

	// MinCallTime is the smallest remaining budget for which starting a call
	// to this provider is worthwhile. The orchestrator skips the provider
	// when the remaining budget is below it.
	MinCallTime() time.Duration

	// ReadTimeout is the provider's configured per-call read timeout. The
	// orchestrator shrinks it dynamically when the remaining budget is lower.
	ReadTimeout() time.Duration

	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)

	// Healthcheck is a quick reachability probe used to pick provider order.
	Healthcheck(ctx context.Context) (bool, string)
}
