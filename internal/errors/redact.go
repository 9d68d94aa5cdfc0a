package errors

import (
	"regexp"
	"sort"
	"strings"
)

// Redacted replaces any value considered secret.
const Redacted = "[REDACTED]"

// Patterns that should be redacted from free-form strings (command output, probe errors).
var sensitivePatterns = []*regexp.Regexp{
	// Credentials embedded in URLs
	regexp.MustCompile(`(?i)(https?://)[^/\s:@]+:[^/\s@]+@`),

	// Passwords and API keys in key=value form
	regexp.MustCompile(`(?i)(password|passwd|pwd|secret|api[_-]?key|token|bearer|passphrase)[=:]["']?[^\s"'&]+`),

	// SSH keys or similar
	regexp.MustCompile(`(?i)(ssh-rsa|ssh-ed25519|-----BEGIN [A-Z ]+ KEY-----)[^\s]+`),
}

// Environment variable names whose values are never captured.
var sensitiveKeyPattern = regexp.MustCompile(`(?i)(KEY|TOKEN|SECRET|PASSWORD|PASSWD|PASSPHRASE|CREDENTIAL|AUTH|COOKIE|SESSION|PRIVATE)`)

// IsSensitiveKey reports whether an environment variable name looks like it holds a secret.
func IsSensitiveKey(name string) bool {
	return sensitiveKeyPattern.MatchString(name)
}

// SanitizeString removes sensitive information from a string.
func SanitizeString(s string) string {
	result := s
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			if strings.HasPrefix(strings.ToLower(match), "http") {
				scheme := match[:strings.Index(match, "://")+3]
				return scheme + Redacted + "@"
			}
			return Redacted
		})
	}
	return result
}

// SanitizeError returns the sanitized message of err.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeString(err.Error())
}

// RedactEnv turns a KEY=VALUE list into a sorted map with secret values replaced.
func RedactEnv(environ []string) map[string]string {
	out := make(map[string]string, len(environ))
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		if IsSensitiveKey(name) {
			out[name] = Redacted
			continue
		}
		out[name] = SanitizeString(value)
	}
	return out
}

// SortedKeys returns the keys of m in order, for stable output.
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
