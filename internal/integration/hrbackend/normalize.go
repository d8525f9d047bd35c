package hrbackend

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode"
)

// normalize rewrites every object key of a JSON document to snake_case, so DTOs only need
// one set of tags whatever casing the backend answers with. Numbers keep their exact text.
func normalize(body []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return json.Marshal(normalizeValue(v))
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			key := snakeKey(k)
			// an exact snake_case key wins over a converted duplicate
			if _, taken := out[key]; taken && key != k {
				continue
			}
			out[key] = normalizeValue(val)
		}
		return out
	case []any:
		for i := range t {
			t[i] = normalizeValue(t[i])
		}
		return t
	default:
		return v
	}
}

// snakeKey converts camelCase, PascalCase and kebab-case keys: "EmployeeID" and "employeeId"
// become "employee_id", "overtimeHours50" becomes "overtime_hours_50".
func snakeKey(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 4)

	for i, r := range runes {
		switch {
		case r == '-' || r == ' ':
			r = '_'
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			r = unicode.ToLower(r)
		case unicode.IsDigit(r):
			if i > 0 && unicode.IsLetter(runes[i-1]) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}
