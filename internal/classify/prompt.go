package classify

import (
	"strings"

	"github.com/pbaille/studylog/internal/domain"
)

// Format selects how the model is asked to lay out its answer
type Format string

const (
	FormatParagraph Format = "paragraph"
	FormatLine      Format = "line"
	FormatJSON      Format = "json"
)

// Delimiter returns the prefix delimiter for the format
func (f Format) Delimiter() Delimiter {
	if f == FormatLine {
		return Line
	}
	return Paragraph
}

// ParseAnswer dispatches to the parser matching the format
func (f Format) ParseAnswer(text string, taxonomy domain.Taxonomy) Result {
	if f == FormatJSON {
		return ParseStructured(text, taxonomy)
	}
	return Parse(text, taxonomy, f.Delimiter())
}

// SystemPrompt returns the instructions sent ahead of the question
func SystemPrompt(taxonomy domain.Taxonomy, format Format) string {
	var sb strings.Builder

	sb.WriteString("You are a study assistant. Each question belongs to exactly one unit of one subject.\n\n")

	candidates := taxonomy.Candidates()
	if len(candidates) > 0 {
		sb.WriteString("Candidates:\n")
		for _, c := range candidates {
			sb.WriteString("- ")
			sb.WriteString(c)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	} else {
		sb.WriteString("There are no candidate units yet.\n\n")
	}

	switch format {
	case FormatJSON:
		sb.WriteString(`Return a JSON object with this structure:
{"subject": "Subject", "unit": "Unit", "answer": "your answer"}

Rules:
- "subject" and "unit" must be copied exactly from one candidate
- If no candidate fits, use "` + domain.UnsortedSubject + `" and "` + domain.UnsortedUnit + `"
- "answer" answers the question from the point of view of that unit

Return ONLY the JSON, no other text.`)
	case FormatLine:
		sb.WriteString(`Start your reply with one line naming the single most relevant unit in this form:
Subject,Unit

From the next line on, answer the question from the point of view of that unit.`)
	default:
		sb.WriteString(`Start your reply with one line naming the single most relevant unit in this form:
Subject,Unit

Leave one blank line, then answer the question from the point of view of that unit.`)
	}

	return sb.String()
}

// UserPrompt wraps the learner's question
func UserPrompt(question string) string {
	question = strings.TrimSpace(question)
	if question == "" {
		return "Question: (see the attached image)"
	}
	return "Question: " + question
}
