// Package logging provides redaction helpers. Backend errors and connection
// strings routinely embed credentials; anything that may reach a log line
// goes through here first.
package logging

import "regexp"

// RedactedText replaces sensitive data in log output.
const RedactedText = "[REDACTED]"

var (
	// password=x, pwd=x, pass=x in key=value connection strings
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// user:pass@host inside connection URLs
	urlCredentialsPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@`)

	// bearer tokens and JWTs
	bearerPattern = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/-]+=*`)

	// apikey=..., auth_token=..., service_key=... style query/form fields
	keyFieldPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|anon_key|service_key|auth_token|access_token|refresh_token)=[^;&\s]+`)
)

// Sanitize redacts credential material from a string before logging.
func Sanitize(s string) string {
	if s == "" {
		return ""
	}
	s = passwordPattern.ReplaceAllString(s, "${1}="+RedactedText)
	s = urlCredentialsPattern.ReplaceAllString(s, "://"+RedactedText+"@")
	s = bearerPattern.ReplaceAllString(s, "Bearer "+RedactedText)
	s = keyFieldPattern.ReplaceAllString(s, "${1}="+RedactedText)
	return s
}

// SanitizeError redacts credential material from an error message.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return Sanitize(err.Error())
}
