package service

import (
	"encoding/base64"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultLanguage is used when a submission names an unknown language.
const DefaultLanguage = "javascript"

var languageIDs = map[string]int{
	"javascript": 63,
	"python":     71,
	"java":       62,
	"cpp":        54,
	"c":          50,
	"go":         60,
	"typescript": 74,
	"ruby":       72,
	"rust":       73,
	"csharp":     51,
	"php":        68,
	"kotlin":     78,
	"swift":      83,
}

var languageAliases = map[string]string{
	"js":      "javascript",
	"node":    "javascript",
	"nodejs":  "javascript",
	"py":      "python",
	"python3": "python",
	"c++":     "cpp",
	"golang":  "go",
	"ts":      "typescript",
	"rb":      "ruby",
	"rs":      "rust",
	"c#":      "csharp",
	"cs":      "csharp",
	"kt":      "kotlin",
}

// NormalizeLanguage lowercases tag and resolves common aliases.
func NormalizeLanguage(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if canonical, ok := languageAliases[tag]; ok {
		return canonical
	}
	return tag
}

// LanguageID maps a language tag to its Judge0 id. Unknown tags resolve to
// fallback, and to javascript when fallback itself is unknown.
func LanguageID(tag, fallback string) (id int, resolved string, known bool) {
	name := NormalizeLanguage(tag)
	if id, ok := languageIDs[name]; ok {
		return id, name, true
	}
	fb := NormalizeLanguage(fallback)
	if id, ok := languageIDs[fb]; ok {
		return id, fb, false
	}
	return languageIDs[DefaultLanguage], DefaultLanguage, false
}

// Languages lists the supported canonical tags in sorted order.
func Languages() []string {
	out := make([]string, 0, len(languageIDs))
	for name := range languageIDs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DecodeSource returns the decoded program when code looks like base64 of
// printable UTF-8 text, and code unchanged otherwise.
func DecodeSource(code string) string {
	compact := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return -1
		}
		return r
	}, strings.TrimSpace(code))
	if len(compact) < 4 || len(compact)%4 != 0 || !isBase64Alphabet(compact) {
		return code
	}
	decoded, err := base64.StdEncoding.DecodeString(compact)
	if err != nil || len(decoded) == 0 {
		return code
	}
	if !isPrintableText(decoded) {
		return code
	}
	return string(decoded)
}

func isBase64Alphabet(s string) bool {
	padding := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '=':
			padding++
			if padding > 2 {
				return false
			}
		case padding > 0:
			// '=' is only allowed at the end.
			return false
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '+', c == '/':
		default:
			return false
		}
	}
	return true
}

func isPrintableText(b []byte) bool {
	if !utf8.Valid(b) {
		return false
	}
	for _, r := range string(b) {
		if r == '\n' || r == '\r' || r == '\t' {
			continue
		}
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
