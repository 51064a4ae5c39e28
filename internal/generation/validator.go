package generation

import (
	"regexp"
	"sort"
	"strings"

	"corelms/internal/domain"
)

const (
	minPromptLen      = 18
	minOptionLen      = 2
	minExplanationLen = 5
	requiredOptions   = 4

	// degeneracyThreshold is how many valid questions may share one correct
	// answer before the whole batch is discarded as model collapse.
	degeneracyThreshold = 3
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)

	// optionLineRe matches one labeled option at the start of a line,
	// tolerating "A)", "A.", "A:" and "A -" label styles.
	optionLineRe = regexp.MustCompile(`(?m)^[ \t]*([A-Da-d])[ \t]*[).:-][ \t]*(\S.*)$`)

	letterRe = regexp.MustCompile(`[A-Da-d]`)
)

func normalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// ParseOptions extracts the labeled options embedded in a choice question's
// prompt. The returned map is keyed by the upper-case option letter.
func ParseOptions(prompt string) map[string]string {
	options := make(map[string]string)
	for _, m := range optionLineRe.FindAllStringSubmatch(prompt, -1) {
		letter := strings.ToUpper(m[1])
		text := strings.TrimSpace(m[2])
		if _, seen := options[letter]; !seen {
			options[letter] = text
		}
	}
	return options
}

// AnswerLetters resolves a declared correct answer into the distinct option
// letters it names, using the same tolerant extraction as option parsing.
// "B", "b)", "A,C" and "A, C" all resolve; free text without a lone letter
// resolves to nothing.
func AnswerLetters(answer string) []string {
	seen := make(map[string]bool)
	var letters []string
	for _, part := range strings.FieldsFunc(answer, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t'
	}) {
		part = strings.Trim(part, ").:-")
		if len(part) != 1 || !letterRe.MatchString(part) {
			continue
		}
		letter := strings.ToUpper(part)
		if !seen[letter] {
			seen[letter] = true
			letters = append(letters, letter)
		}
	}
	sort.Strings(letters)
	return letters
}

// Validator accepts or rejects candidate questions one batch at a time.
// Rejected candidates are dropped silently; only an aggregate shortfall
// triggers a retry of the whole batch upstream.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// FilterValid returns the subset of candidates that pass every rule, in
// input order. Case-insensitive prompt duplicates within the batch keep only
// the first occurrence.
func (v *Validator) FilterValid(batch []domain.GeneratedQuestion) []domain.GeneratedQuestion {
	seenPrompts := make(map[string]bool)
	var valid []domain.GeneratedQuestion
	for _, q := range batch {
		if !v.isValid(q, seenPrompts) {
			continue
		}
		seenPrompts[strings.ToLower(normalizeWhitespace(q.Prompt))] = true
		valid = append(valid, q)
	}
	return valid
}

func (v *Validator) isValid(q domain.GeneratedQuestion, seenPrompts map[string]bool) bool {
	switch q.Type {
	case domain.QuestionSingle, domain.QuestionMulti, domain.QuestionCase:
	default:
		// Unsupported types are rejected outright, never coerced.
		return false
	}

	prompt := normalizeWhitespace(q.Prompt)
	if len([]rune(prompt)) < minPromptLen {
		return false
	}
	if seenPrompts[strings.ToLower(prompt)] {
		return false
	}

	if len([]rune(strings.TrimSpace(q.Explanation))) < minExplanationLen {
		return false
	}

	if q.Type == domain.QuestionCase {
		return strings.TrimSpace(q.CorrectAnswer) != ""
	}

	options := ParseOptions(q.Prompt)
	if len(options) != requiredOptions {
		return false
	}
	distinctTexts := make(map[string]bool)
	for _, text := range options {
		if len([]rune(text)) < minOptionLen {
			return false
		}
		distinctTexts[strings.ToLower(normalizeWhitespace(text))] = true
	}
	if len(distinctTexts) != requiredOptions {
		return false
	}

	letters := AnswerLetters(q.CorrectAnswer)
	for _, l := range letters {
		if _, ok := options[l]; !ok {
			return false
		}
	}
	switch q.Type {
	case domain.QuestionSingle:
		return len(letters) == 1
	case domain.QuestionMulti:
		return len(letters) >= 2
	}
	return false
}

// IsDegenerate reports whether a validated batch shows answer collapse:
// three or more questions sharing the identical resolved correct answer.
// Such a batch is discarded whole and the attempt retried.
func IsDegenerate(batch []domain.GeneratedQuestion) bool {
	counts := make(map[string]int)
	for _, q := range batch {
		letters := AnswerLetters(q.CorrectAnswer)
		if len(letters) == 0 {
			continue
		}
		key := strings.Join(letters, ",")
		counts[key]++
		if counts[key] >= degeneracyThreshold {
			return true
		}
	}
	return false
}
