package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"corelms/internal/domain"
)

// rawQuestion tolerates the key-name drift observed across models: the stem
// may arrive as prompt/question/text, the answer as correct_answer/answer/
// correct (letter, index or list), options either inlined in the prompt or
// as a separate array, the explanation as explanation/rationale.
type rawQuestion struct {
	Type          string          `json:"type"`
	Prompt        string          `json:"prompt"`
	Question      string          `json:"question"`
	Text          string          `json:"text"`
	Options       []string        `json:"options"`
	CorrectAnswer json.RawMessage `json:"correct_answer"`
	Answer        json.RawMessage `json:"answer"`
	Correct       json.RawMessage `json:"correct"`
	Explanation   string          `json:"explanation"`
	Rationale     string          `json:"rationale"`
}

type rawPayload struct {
	Questions []rawQuestion `json:"questions"`
}

// ParseQuestions normalizes a model response into candidate questions. It
// strips markdown fences, accepts either {"questions":[...]} or a bare
// array, and resolves shape drift per item. Items it cannot make sense of
// are skipped; schema-level failure returns an error so the caller can keep
// the raw text for a repair pass.
func ParseQuestions(raw string) ([]domain.GeneratedQuestion, error) {
	content := extractJSON(raw)

	var payload rawPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil || len(payload.Questions) == 0 {
		var bare []rawQuestion
		if err := json.Unmarshal([]byte(content), &bare); err != nil {
			return nil, fmt.Errorf("response is not quiz JSON: %w", err)
		}
		payload.Questions = bare
	}

	questions := make([]domain.GeneratedQuestion, 0, len(payload.Questions))
	for _, rq := range payload.Questions {
		if q, ok := normalizeQuestion(rq); ok {
			questions = append(questions, q)
		}
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("no usable questions in response")
	}
	return questions, nil
}

func normalizeQuestion(rq rawQuestion) (domain.GeneratedQuestion, bool) {
	prompt := firstNonEmpty(rq.Prompt, rq.Question, rq.Text)
	if strings.TrimSpace(prompt) == "" {
		return domain.GeneratedQuestion{}, false
	}
	if len(rq.Options) > 0 {
		var sb strings.Builder
		sb.WriteString(strings.TrimRight(prompt, "\n"))
		for i, opt := range rq.Options {
			if i >= 4 {
				break
			}
			fmt.Fprintf(&sb, "\n%c) %s", 'A'+i, strings.TrimSpace(opt))
		}
		prompt = sb.String()
	}

	answerRaw := rq.CorrectAnswer
	if len(answerRaw) == 0 {
		answerRaw = rq.Answer
	}
	if len(answerRaw) == 0 {
		answerRaw = rq.Correct
	}
	answer := resolveAnswer(answerRaw)

	return domain.GeneratedQuestion{
		Type:          normalizeType(rq.Type, answer),
		Prompt:        prompt,
		CorrectAnswer: answer,
		Explanation:   firstNonEmpty(rq.Explanation, rq.Rationale),
	}, true
}

// resolveAnswer turns whatever the model put in the answer slot into the
// letter form the validator expects. Indexes are treated as zero-based.
func resolveAnswer(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var idx float64
	if err := json.Unmarshal(raw, &idx); err == nil {
		return indexToLetter(int(idx))
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			if part := resolveAnswer(item); part != "" {
				parts = append(parts, part)
			}
		}
		return strings.Join(parts, ",")
	}
	return ""
}

func indexToLetter(idx int) string {
	if idx < 0 || idx > 3 {
		return ""
	}
	return string(rune('A' + idx))
}

func normalizeType(t, answer string) domain.QuestionType {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "single", "single_choice", "single-choice", "choice":
		return domain.QuestionSingle
	case "multi", "multiple", "multi_choice", "multiple_choice", "multiple-choice":
		return domain.QuestionMulti
	case "case", "open", "open_case", "open-case":
		return domain.QuestionCase
	case "":
		// Untyped items: infer multi from a multi-letter answer.
		if strings.ContainsAny(answer, ",;") {
			return domain.QuestionMulti
		}
		return domain.QuestionSingle
	default:
		return domain.QuestionType(t)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// extractJSON strips markdown code fences and surrounding prose, keeping the
// outermost JSON value.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.IndexAny(s, "{[")
	end := strings.LastIndexAny(s, "}]")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
