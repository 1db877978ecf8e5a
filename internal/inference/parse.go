package inference

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed label.schema.json
var labelSchemaJSON string

var labelSchema = jsonschema.MustCompileString("label.schema.json", labelSchemaJSON)

// ParseLabels turns a model's free-text answer into a LabelResult. Prose
// around the JSON object is ignored and malformed JSON is repaired once.
func ParseLabels(model, text string) Outcome[*LabelResult] {
	obj, ok := extractObject(text)
	if !ok {
		return failure[*LabelResult](OutcomeUnparseable, &ParseError{Model: model, Raw: text, Err: errors.New("no JSON object in response")})
	}

	// An object is present from here on, so any decode problem is a parse
	// failure rather than a missing answer.
	if err := checkNesting(obj); err != nil {
		return failure[*LabelResult](OutcomeParseFailure, &ParseError{Model: model, Raw: text, Err: err})
	}
	doc, err := decodeLenient(obj)
	if err != nil {
		return failure[*LabelResult](OutcomeParseFailure, &ParseError{Model: model, Raw: text, Err: err})
	}

	if err := labelSchema.Validate(doc); err != nil {
		return failure[*LabelResult](OutcomeParseFailure, &ParseError{Model: model, Raw: text, Err: fmt.Errorf("schema validation: %w", err)})
	}

	result := normalizeLabels(doc.(map[string]any))
	if result.Primary == "" {
		return failure[*LabelResult](OutcomeParseFailure, &ParseError{Model: model, Raw: text, Err: errors.New("no labels in response")})
	}
	return success(result)
}

// extractObject returns the first balanced {...} in s, skipping braces inside
// strings. A truncated object is returned as-is for repair.
func extractObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
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

// checkNesting rejects closers that do not match the innermost opener, such
// as "[}". Repair would otherwise guess at the intended structure. Unclosed
// openers are left for repair.
func checkNesting(obj string) error {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(obj); i++ {
		c := obj[i]
		if inString {
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
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			want := byte('{')
			if c == ']' {
				want = '['
			}
			if len(stack) == 0 || stack[len(stack)-1] != want {
				return fmt.Errorf("mismatched %q at offset %d", c, i)
			}
			stack = stack[:len(stack)-1]
		}
	}
	return nil
}

func decodeLenient(obj string) (any, error) {
	var doc any
	err := json.Unmarshal([]byte(obj), &doc)
	if err == nil {
		return doc, nil
	}

	repaired, rerr := jsonrepair.JSONRepair(obj)
	if rerr != nil {
		return nil, fmt.Errorf("invalid JSON (%v) and repair failed: %w", err, rerr)
	}
	if err := json.Unmarshal([]byte(repaired), &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON after repair: %w", err)
	}
	return doc, nil
}

func normalizeLabels(doc map[string]any) *LabelResult {
	result := &LabelResult{Labels: []Label{}}
	seen := make(map[string]bool)

	raw, _ := doc["labels"].([]any)
	for _, entry := range raw {
		var label Label
		switch v := entry.(type) {
		case string:
			label.Name = v
		case map[string]any:
			label.Name, _ = v["name"].(string)
			if c, ok := v["confidence"].(float64); ok {
				// Some models answer in percent.
				if c > 1 {
					c /= 100
				}
				label.Confidence = &c
			}
		}
		label.Name = normalizeName(label.Name)
		if label.Name == "" || seen[label.Name] {
			continue
		}
		seen[label.Name] = true
		result.Labels = append(result.Labels, label)
	}

	primary, _ := doc["primary"].(string)
	result.Primary = normalizeName(primary)
	switch {
	case result.Primary == "" && len(result.Labels) > 0:
		result.Primary = result.Labels[0].Name
	case result.Primary != "" && len(result.Labels) == 0:
		result.Labels = append(result.Labels, Label{Name: result.Primary})
	}
	return result
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// CleanRewrite strips code fences and wrapping quotes from a rewrite answer.
func CleanRewrite(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	for _, q := range []string{`"`, "'", "`"} {
		if len(s) >= 2 && strings.HasPrefix(s, q) && strings.HasSuffix(s, q) {
			s = strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	if strings.HasPrefix(s, "“") && strings.HasSuffix(s, "”") {
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(s, "“"), "”"))
	}
	return s
}
