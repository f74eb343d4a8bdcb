package strutil

import "strings"

// ShellEscape returns a single-quoted shell literal for value.
func ShellEscape(value string) string {
	if value == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}

// Redact replaces every occurrence of secret in s with a placeholder,
// so command lines can be logged without exposing credentials.
func Redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "[HIDDEN]")
}
