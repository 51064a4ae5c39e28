package dto

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
	Status  int    `json:"status"`
}

// StartQuizResponse is the body returned from starting a quiz session.
type StartQuizResponse struct {
	QuizID           string             `json:"quiz_id"`
	Questions        []QuestionResponse `json:"questions"`
	StartedAt        int64              `json:"started_at"`
	TimeLimitSeconds int                `json:"time_limit_seconds,omitempty"`
}

// QuestionResponse is one question as shown to a learner. Correct answers
// and explanations never leave the server before grading.
type QuestionResponse struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Prompt string `json:"prompt"`
}

// SubmitQuizRequest carries a learner's answers keyed by question id.
type SubmitQuizRequest struct {
	Answers map[string]string `json:"answers"`
}

// SubmitQuizResponse is the graded outcome.
type SubmitQuizResponse struct {
	AttemptID string `json:"attempt_id"`
	Score     int    `json:"score"`
	Passed    bool   `json:"passed"`
	Correct   int    `json:"correct"`
	Total     int    `json:"total"`
}

// EnqueueImportRequest asks for a module import from an uploaded archive.
type EnqueueImportRequest struct {
	ObjectKey string `json:"object_key"`
	Title     string `json:"title"`
}

// EnqueueResponse reports the id of the job an enqueue produced.
type EnqueueResponse struct {
	JobID string `json:"job_id"`
}

// JobResponse is a job's observable state.
type JobResponse struct {
	ID     string            `json:"id"`
	Kind   string            `json:"kind"`
	Status string            `json:"status"`
	Meta   map[string]string `json:"meta,omitempty"`
	Result string            `json:"result,omitempty"`
}
