package llm

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Stage names the local strategy that produced a JSON object.
type Stage string

const (
	StageStrict    Stage = "strict"
	StageRepaired  Stage = "repaired"
	StageExtracted Stage = "extracted"
	StageConverted Stage = "converted"
)

var smartQuotes = strings.NewReplacer("“", `"`, "”", `"`, "„", `"`, "‟", `"`)

// ParseObject tries, in order, a strict parse, a repaired parse and extraction
// of the first balanced object span. It never calls the provider.
func ParseObject(raw string) (json.RawMessage, Stage, bool) {
	text := strings.TrimSpace(raw)
	if obj, ok := strictObject(text); ok {
		return obj, StageStrict, true
	}
	if obj, ok := strictObject(Repair(text)); ok {
		return obj, StageRepaired, true
	}
	if span, ok := extractObjectSpan(text); ok {
		if obj, ok := strictObject(span); ok {
			return obj, StageExtracted, true
		}
		if obj, ok := strictObject(Repair(span)); ok {
			return obj, StageExtracted, true
		}
	}
	return nil, "", false
}

func strictObject(s string) (json.RawMessage, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") || !json.Valid([]byte(s)) {
		return nil, false
	}
	return json.RawMessage(s), true
}

// Repair rewrites common model formatting faults: markdown fences, a leading
// language tag, typographic quotes, trailing commas, raw newlines inside
// strings and truncated output. When the text cannot be repaired the
// pre-stripped text is returned.
func Repair(s string) string {
	s = stripFences(strings.TrimSpace(s))
	s = stripLanguageTag(s)
	s = smartQuotes.Replace(s)
	// a truncated "key": has no value to repair towards
	if strings.HasSuffix(s, ":") {
		s += "null"
	}
	repaired, err := jsonrepair.JSONRepair(s)
	if err != nil {
		return s
	}
	return repaired
}

// stripFences keeps only the body of the first markdown code block, dropping
// any prose around it.
func stripFences(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	body := s[start+3:]
	// the remainder of the opening fence line is a language tag
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = strings.TrimPrefix(strings.TrimSpace(body), "json")
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func stripLanguageTag(s string) string {
	if len(s) < 4 || !strings.EqualFold(s[:4], "json") {
		return s
	}
	rest := strings.TrimSpace(s[4:])
	if strings.HasPrefix(rest, "{") || strings.HasPrefix(rest, "[") {
		return rest
	}
	return s
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// extractObjectSpan returns the first balanced {...} span. Unterminated objects
// return everything from the first brace so Repair can close them.
func extractObjectSpan(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return s[start:], true
}
