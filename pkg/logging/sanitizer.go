package logging

import (
	"regexp"
)

const (
	// MaxQueryLogLength is the maximum length of a query to log
	MaxQueryLogLength = 100
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// Connection string passwords, in URL query and ADO keyword form:
	// password=x, pwd=x, pass=x (up to the next delimiter).
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// HTTP authorization values as they appear in report server and LLM
	// provider errors: NTLM and Negotiate handshakes, Basic and Bearer tokens.
	authHeaderPattern = regexp.MustCompile(`\b(NTLM|Negotiate|Basic|Bearer)\s+[A-Za-z0-9+/=._~-]{16,}`)

	// LLM provider keys: key=... query values and sk-/sk-ant- style secrets.
	apiKeyPattern    = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9-_]{20,}`)
	secretKeyPattern = regexp.MustCompile(`\bsk-[A-Za-z0-9-_]{16,}`)

	// user:pass@host credentials in sqlserver:// and http(s):// URLs.
	urlCredentialsPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s?]+`)

	// Secret-looking keys in JSON bodies, e.g. "password":"x"
	jsonSecretPattern = regexp.MustCompile(`(?i)("(?:password|pwd|api_?key|apikey|secret|token)"\s*:\s*)"(?:[^"\\]|\\.)*"`)
)

// SanitizeConnectionString removes credentials from a SQL Server connection
// string in either URL or keyword form.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	return urlCredentialsPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeError renders an error from the driver, the report server or an
// LLM provider with credentials and tokens removed.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return redactSecrets(err.Error())
}

// SanitizeQuery shortens a SQL query to MaxQueryLogLength and strips
// credential-looking fragments.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}
	sanitized := TruncateString(query, MaxQueryLogLength)
	sanitized = passwordPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	return apiKeyPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func redactSecrets(s string) string {
	s = passwordPattern.ReplaceAllString(s, "${1}="+RedactedText)
	s = authHeaderPattern.ReplaceAllString(s, "${1} "+RedactedText)
	s = apiKeyPattern.ReplaceAllString(s, "${1}="+RedactedText)
	s = secretKeyPattern.ReplaceAllString(s, RedactedText)
	s = urlCredentialsPattern.ReplaceAllString(s, "://"+RedactedText+"@"+RedactedText)
	return s
}
