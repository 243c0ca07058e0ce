package sql

import (
	"fmt"
	"regexp"
)

// maxIdentifierLength matches the PostgreSQL limit, the tightest of the
// supported dialects.
const maxIdentifierLength = 63

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateIdentifier checks a table or column name against the identifier
// allow-list. Every identifier interpolated into generated SQL must pass
// this check first; values never get interpolated at all, only bound.
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier must not be empty")
	}
	if len(name) > maxIdentifierLength {
		return fmt.Errorf("identifier %q exceeds %d characters", name, maxIdentifierLength)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("identifier %q contains characters outside [A-Za-z0-9_]", name)
	}
	return nil
}

// ValidateSortDirection normalizes a sort direction to ASC or DESC.
func ValidateSortDirection(dir string) (string, error) {
	switch dir {
	case "", "asc", "ASC":
		return "ASC", nil
	case "desc", "DESC":
		return "DESC", nil
	}
	return "", fmt.Errorf("sort direction %q is not asc or desc", dir)
}
