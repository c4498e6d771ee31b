package answer

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// DefaultInstruction closes every grounding prompt.
const DefaultInstruction = "Answer concisely with source reference."

var citationRe = regexp.MustCompile(`\[(\d+)\]`)

// BuildPrompt renders the retrieved chunks and the question into one grounding prompt:
//
//	Sources:
//	[<id>]: <text>
//	...
//	Question: <question>
//	<instruction>
func BuildPrompt(question string, chunks []domain.Chunk, instruction string) string {
	if instruction == "" {
		instruction = DefaultInstruction
	}

	var b strings.Builder
	b.WriteString("\nSources:\n")
	for _, c := range chunks {
		b.WriteByte('[')
		b.WriteString(strconv.Itoa(c.ID))
		b.WriteString("]: ")
		b.WriteString(c.Text)
		b.WriteByte('\n')
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	b.WriteByte('\n')
	b.WriteString(instruction)
	return b.String()
}

// ExtractCitation returns the first bracketed integer in text.
func ExtractCitation(text string) (int, bool) {
	m := citationRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		// digits beyond int range
		return 0, false
	}
	return id, true
}
