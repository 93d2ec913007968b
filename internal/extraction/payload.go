package extraction

import (
	"strings"

	"github.com/dvloznov/statement-consolidator/internal/apperror"
)

// Form is the shape of the structured part of a model response.
type Form int

const (
	// FormBrace is a JSON object.
	FormBrace Form = iota
	// FormLine is a METADATA line followed by comma separated records.
	FormLine
)

func (f Form) String() string {
	if f == FormLine {
		return "line"
	}
	return "brace"
}

const metadataPrefix = "METADATA|"

// Payload is the structured portion of a raw model response.
type Payload struct {
	Form Form
	Text string
}

// ExtractPayload locates the structured data inside raw. A line starting
// with METADATA| selects the line form; otherwise the span from the first
// '{' to the last '}' is returned.
func ExtractPayload(raw string) (Payload, error) {
	text := stripFences(raw)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), metadataPrefix) {
			return Payload{Form: FormLine, Text: strings.Join(lines[i:], "\n")}, nil
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return Payload{}, apperror.ErrNoStructuredData
	}
	return Payload{Form: FormBrace, Text: text[start : end+1]}, nil
}

// stripFences removes Markdown code fence lines such as ``` and ```json.
func stripFences(raw string) string {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	out := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
