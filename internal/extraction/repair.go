package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/statement-consolidator/internal/apperror"
	"github.com/dvloznov/statement-consolidator/internal/logger"
)

// DefaultRepairAttempts bounds the comma insertion loop in Repair.
const DefaultRepairAttempts = 20

// sanitizeJSON fixes the mistakes models commonly make in JSON output:
// // line comments, trailing commas before '}' or ']', and adjacent objects
// without a separating comma. String literals are left untouched.
func sanitizeJSON(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)

	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
			b.WriteByte(c)
		case '/':
			if i+1 < len(s) && s[i+1] == '/' {
				for i < len(s) && s[i] != '\n' {
					i++
				}
				if i < len(s) {
					b.WriteByte('\n')
				}
				continue
			}
			b.WriteByte(c)
		case ',':
			if next := nextSignificant(s, i+1); next == '}' || next == ']' {
				continue
			}
			b.WriteByte(c)
		case '}':
			b.WriteByte(c)
			if nextSignificant(s, i+1) == '{' {
				b.WriteByte(',')
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// nextSignificant returns the next byte at or after i that is neither
// whitespace nor part of a // comment, or 0 at end of input.
func nextSignificant(s string, i int) byte {
	for i < len(s) {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
			i++
		case '/':
			if i+1 < len(s) && s[i+1] == '/' {
				for i < len(s) && s[i] != '\n' {
					i++
				}
				continue
			}
			return s[i]
		default:
			return s[i]
		}
	}
	return 0
}

// Repair parses a brace form payload, fixing it where it can. After the
// textual clean up, each syntax error that reports an offset inside the
// text gets a comma inserted before the offending byte, up to maxAttempts
// times.
func Repair(ctx context.Context, text string, maxAttempts int) (map[string]any, error) {
	log := logger.FromContext(ctx)
	if maxAttempts <= 0 {
		maxAttempts = DefaultRepairAttempts
	}

	text = sanitizeJSON(stripFences(text))

	for attempt := 0; ; attempt++ {
		var doc map[string]any
		err := json.Unmarshal([]byte(text), &doc)
		if err == nil {
			if doc == nil {
				return nil, fmt.Errorf("Repair: payload is null: %w", apperror.ErrUnrepairableStructuredData)
			}
			return doc, nil
		}

		var syntaxErr *json.SyntaxError
		if !errors.As(err, &syntaxErr) {
			return nil, fmt.Errorf("Repair: %v: %w", err, apperror.ErrUnrepairableStructuredData)
		}
		pos := int(syntaxErr.Offset) - 1
		if pos < 0 || pos >= len(text) || syntaxErr.Error() == "unexpected end of JSON input" {
			return nil, fmt.Errorf("Repair: %v: %w", err, apperror.ErrUnrepairableStructuredData)
		}
		if attempt >= maxAttempts {
			log.Warn().Int("attempts", attempt).Err(err).Msg("giving up on repairing model JSON")
			return nil, fmt.Errorf("Repair: %d attempts exhausted: %w", attempt, apperror.ErrUnrepairableStructuredData)
		}

		log.Debug().Int("attempt", attempt+1).Int("offset", pos).Str("error", syntaxErr.Error()).Msg("inserting comma into model JSON")
		text = text[:pos] + "," + text[pos:]
	}
}
