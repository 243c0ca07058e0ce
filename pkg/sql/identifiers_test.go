package sql

import (
	"strings"
	"testing"
)

func TestValidateIdentifier(t *testing.T) {
	valid := []string{"users", "_private", "Table1", "a", "order_items", strings.Repeat("x", 63)}
	for _, name := range valid {
		if err := ValidateIdentifier(name); err != nil {
			t.Errorf("ValidateIdentifier(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{
		"",
		"1table",
		"user-name",
		"users; DROP TABLE users",
		`users"`,
		"users name",
		"naïve",
		strings.Repeat("x", 64),
	}
	for _, name := range invalid {
		if err := ValidateIdentifier(name); err == nil {
			t.Errorf("ValidateIdentifier(%q) = nil, want error", name)
		}
	}
}

func TestValidateSortDirection(t *testing.T) {
	for input, want := range map[string]string{"": "ASC", "asc": "ASC", "ASC": "ASC", "desc": "DESC", "DESC": "DESC"} {
		got, err := ValidateSortDirection(input)
		if err != nil || got != want {
			t.Errorf("ValidateSortDirection(%q) = (%q, %v), want (%q, nil)", input, got, err, want)
		}
	}
	for _, input := range []string{"ascending", "desc; drop", "up"} {
		if _, err := ValidateSortDirection(input); err == nil {
			t.Errorf("ValidateSortDirection(%q) = nil error, want error", input)
		}
	}
}
