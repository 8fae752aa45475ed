package extraction

import "encoding/json"

// ExtractJSONObject returns the first balanced {...} object embedded in text.
// Braces inside string literals are ignored. Candidates that are not valid
// JSON are skipped.
func ExtractJSONObject(text string) (string, bool) {
	for start := 0; start < len(text); start++ {
		if text[start] != '{' {
			continue
		}
		end := findObjectEnd(text, start)
		if end < 0 {
			continue
		}
		candidate := text[start:end]
		if json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}
	return "", false
}

// findObjectEnd returns the index just past the brace closing the object that
// opens at start, or -1 when the object never closes.
func findObjectEnd(text string, start int) int {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]

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
				return i + 1
			}
		}
	}
	return -1
}
