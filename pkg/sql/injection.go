package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a SQL injection pattern detected in
// operator-supplied input.
type InjectionCheckResult struct {
	Fingerprint string // libinjection fingerprint for pattern analysis
	Input       string // the value that triggered detection
}

// CheckForInjection screens a free-form string (search term, raw query) with
// libinjection. Returns nil when no injection pattern is detected.
//
// Detection feeds the audit side-channel; it does not by itself block
// execution, since elevated operators legitimately run DDL that fingerprints
// as "injection".
func CheckForInjection(input string) *InjectionCheckResult {
	if input == "" {
		return nil
	}
	isSQLi, fingerprint := libinjection.IsSQLi(input)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{
		Fingerprint: string(fingerprint),
		Input:       input,
	}
}
