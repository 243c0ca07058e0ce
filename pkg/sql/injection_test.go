package sql

import "testing"

func TestCheckForInjection(t *testing.T) {
	if result := CheckForInjection("'; DROP TABLE users--"); result == nil {
		t.Error("expected injection detection for classic payload")
	} else if result.Fingerprint == "" {
		t.Error("expected non-empty fingerprint")
	}

	clean := []string{"", "alice", "12345", "a plain search term"}
	for _, input := range clean {
		if result := CheckForInjection(input); result != nil {
			t.Errorf("CheckForInjection(%q) = %+v, want nil", input, result)
		}
	}
}
