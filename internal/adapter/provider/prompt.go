package provider

import (
	"fmt"
	"strings"
)

// maxLessonChars bounds how much theory text goes into one prompt so a long
// lesson cannot blow the provider's context window.
const maxLessonChars = 6000

const systemPrompt = "You generate corporate training quiz questions. " +
	"Respond with a single JSON object and nothing else."

const outputShape = `{"questions":[{"type":"single","prompt":"...","correct_answer":"A","explanation":"..."}]}`

func buildGeneratePrompt(title, text string, count int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Create %d quiz questions for the corporate training lesson %q.\n\n", count, title)
	sb.WriteString("Rules:\n")
	sb.WriteString("- Base every question strictly on the lesson text below.\n")
	sb.WriteString("- type is \"single\" or \"multi\"; make roughly one in three questions \"multi\".\n")
	sb.WriteString("- prompt contains the question followed by exactly 4 options, one per line, labeled \"A)\" to \"D)\".\n")
	sb.WriteString("- correct_answer is one option letter for \"single\", comma-joined letters for \"multi\".\n")
	sb.WriteString("- explanation states in one sentence why the answer is correct.\n")
	fmt.Fprintf(&sb, "- Respond with JSON only, shaped exactly like: %s\n\n", outputShape)
	sb.WriteString("Lesson text:\n")
	sb.WriteString(clip(text, maxLessonChars))
	return sb.String()
}

func buildRepairPrompt(raw string) string {
	var sb strings.Builder
	sb.WriteString("The following quiz output is malformed. Reformat it into strict JSON ")
	fmt.Fprintf(&sb, "shaped exactly like %s. ", outputShape)
	sb.WriteString("Keep the existing questions, options, answers and explanations; do not invent new content or drop items.\n\n")
	sb.WriteString(clip(raw, maxLessonChars))
	return sb.String()
}

func clip(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
