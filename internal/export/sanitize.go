package export

import (
	"strings"
	"unicode"
)

const maxNameLen = 120

// SanitizeName makes s safe to use as a file name, replacing anything that
// is not a letter, digit or common punctuation.
func SanitizeName(s string, maxLen int) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if isAllowedNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	cleaned := strings.TrimSpace(b.String())
	if maxLen > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxLen {
			cleaned = strings.TrimSpace(string(runes[:maxLen]))
		}
	}
	return cleaned
}

// Filename is the attachment name offered for a project's export.
func Filename(projectName string, f Format) string {
	name := SanitizeName(projectName, maxNameLen)
	if strings.Trim(name, "._") == "" {
		name = "export"
	}
	return name + "." + string(f)
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ' ', '-', '_', '.', ',', '(', ')':
		return true
	default:
		return false
	}
}
