package generation

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"regexp"
	"strings"

	"corelms/internal/domain"
)

const (
	minFactPool  = 10
	maxFactPool  = 40
	minFactLen   = 25
	maxFactLen   = 170
	optionLabels = "ABCD"
)

var (
	bulletLineRe = regexp.MustCompile(`^[ \t]*(?:[-*•]|\d+[.)])[ \t]+(.+)$`)
	sentenceRe   = regexp.MustCompile(`[.!?]+`)
)

// fillerFacts pads a thin fact pool so question construction never starves.
// The %s slot receives the lesson title.
var fillerFacts = []string{
	"The lesson %q covers material required for this module.",
	"Reviewing the theory text of %q before answering is recommended.",
	"The topics in %q build on the preceding lessons of the module.",
	"Completing %q is part of the module's learning path.",
	"The lesson %q introduces terminology used later in the course.",
	"Practical examples in %q illustrate the core concepts.",
}

// ExtractFacts pulls candidate fact statements out of lesson text. Numbered
// and bulleted lines win; medium-length plain lines come next; sentence
// splitting is the last resort. The pool is deduplicated, capped at 40 and
// padded with title-derived filler up to 10 entries.
func ExtractFacts(title, text string) []string {
	var facts []string

	lines := strings.Split(text, "\n")
	for _, line := range lines {
		if m := bulletLineRe.FindStringSubmatch(line); m != nil {
			facts = appendFact(facts, m[1])
		}
	}

	if len(facts) < minFactPool {
		for _, line := range lines {
			trimmed := strings.TrimSpace(line)
			n := len([]rune(trimmed))
			if n >= minFactLen && n <= maxFactLen {
				facts = appendFact(facts, trimmed)
			}
		}
	}

	if len(facts) < minFactPool {
		for _, sentence := range sentenceRe.Split(text, -1) {
			trimmed := normalizeWhitespace(sentence)
			if len([]rune(trimmed)) >= minFactLen {
				facts = appendFact(facts, trimmed)
			}
		}
	}

	if len(facts) > maxFactPool {
		facts = facts[:maxFactPool]
	}
	for i := 0; len(facts) < minFactPool; i++ {
		filler := fmt.Sprintf(fillerFacts[i%len(fillerFacts)], title)
		if i >= len(fillerFacts) {
			filler = fmt.Sprintf("%s (part %d)", filler, i/len(fillerFacts)+1)
		}
		facts = appendFact(facts, filler)
	}
	return facts
}

func appendFact(facts []string, candidate string) []string {
	candidate = normalizeWhitespace(candidate)
	if candidate == "" {
		return facts
	}
	lower := strings.ToLower(candidate)
	for _, f := range facts {
		if strings.ToLower(f) == lower {
			return facts
		}
	}
	return append(facts, candidate)
}

// HeuristicGenerator synthesizes choice questions from lesson text without
// any AI backend. It is deterministic for a given seed string, always
// returns exactly the requested count and never fails.
type HeuristicGenerator struct {
	rng *rand.Rand
}

// NewHeuristicGenerator seeds the generator. Callers pass a stable
// identifier (lesson id + job id) so a regeneration run is reproducible.
func NewHeuristicGenerator(seed string) *HeuristicGenerator {
	h := fnv.New64a()
	h.Write([]byte(seed))
	return &HeuristicGenerator{rng: rand.New(rand.NewSource(int64(h.Sum64())))}
}

// Generate builds exactly target questions. Roughly every third question is
// multi-choice; the rest are single-choice.
func (g *HeuristicGenerator) Generate(title, text string, target int) []domain.GeneratedQuestion {
	facts := ExtractFacts(title, text)
	questions := make([]domain.GeneratedQuestion, 0, target)
	for i := 0; i < target; i++ {
		if (i+1)%3 == 0 {
			questions = append(questions, g.buildMulti(title, facts))
		} else {
			questions = append(questions, g.buildSingle(title, facts))
		}
	}
	return questions
}

func (g *HeuristicGenerator) buildSingle(title string, facts []string) domain.GeneratedQuestion {
	picked := g.sample(facts, 4)
	if len(picked) < 4 {
		return fallbackQuestion(title)
	}
	correctIdx := g.rng.Intn(4)
	correct := picked[correctIdx]

	var sb strings.Builder
	fmt.Fprintf(&sb, "Which of the following statements from the lesson %q is accurate?\n", title)
	for i, opt := range picked {
		text := opt
		if i != correctIdx {
			text = distort(text)
		}
		fmt.Fprintf(&sb, "%c) %s\n", optionLabels[i], text)
	}

	return domain.GeneratedQuestion{
		Type:          domain.QuestionSingle,
		Prompt:        strings.TrimRight(sb.String(), "\n"),
		CorrectAnswer: string(optionLabels[correctIdx]),
		Explanation:   "The lesson text states: " + truncate(correct, 140),
	}
}

func (g *HeuristicGenerator) buildMulti(title string, facts []string) domain.GeneratedQuestion {
	picked := g.sample(facts, 4)
	if len(picked) < 4 {
		return fallbackQuestion(title)
	}
	correctA := g.rng.Intn(4)
	correctB := g.rng.Intn(3)
	if correctB >= correctA {
		correctB++
	}
	correctSet := map[int]bool{correctA: true, correctB: true}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Select all statements that accurately reflect the lesson %q.\n", title)
	var answers []string
	for i, opt := range picked {
		text := opt
		if correctSet[i] {
			answers = append(answers, string(optionLabels[i]))
		} else {
			text = distort(text)
		}
		fmt.Fprintf(&sb, "%c) %s\n", optionLabels[i], text)
	}

	return domain.GeneratedQuestion{
		Type:          domain.QuestionMulti,
		Prompt:        strings.TrimRight(sb.String(), "\n"),
		CorrectAnswer: strings.Join(answers, ","),
		Explanation:   "Two of the options restate the lesson text verbatim; the others are altered.",
	}
}

// sample draws n distinct facts in random order without mutating the pool.
func (g *HeuristicGenerator) sample(facts []string, n int) []string {
	if len(facts) < n {
		return nil
	}
	idx := g.rng.Perm(len(facts))[:n]
	picked := make([]string, n)
	for i, j := range idx {
		picked[i] = facts[j]
	}
	return picked
}

// distort turns a true fact into a distractor by negating its claim.
func distort(fact string) string {
	return "It is not the case that " + lowerFirst(fact)
}

func lowerFirst(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	runes[0] = []rune(strings.ToLower(string(runes[0])))[0]
	return string(runes)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

// fallbackQuestion is the hard-coded safe item used when a fact pool is too
// small to build a real question. With filler padding this should be rare.
func fallbackQuestion(title string) domain.GeneratedQuestion {
	prompt := fmt.Sprintf("What should you do after studying the lesson %q?\n"+
		"A) Complete the lesson quiz to confirm understanding\n"+
		"B) Skip the remaining lessons of the module\n"+
		"C) Delete the module from your learning path\n"+
		"D) Ignore the theory text entirely", title)
	return domain.GeneratedQuestion{
		Type:          domain.QuestionSingle,
		Prompt:        prompt,
		CorrectAnswer: "A",
		Explanation:   "Each lesson is confirmed by passing its quiz before moving on.",
	}
}
