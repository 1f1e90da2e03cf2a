package types

import (
	"errors"
	"testing"
)

func TestDetectVersion(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		expected    int
		expectError bool
	}{
		{"v2 payload", `{"x402Version":2,"payload":{}}`, 2, false},
		{"v1 payload", `{"x402Version":1,"scheme":"exact","network":"base"}`, 1, false},
		{"missing version", `{"payload":{}}`, 0, true},
		{"not json", `not-json`, 0, true},
		{"unknown version", `{"x402Version":9}`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, err := DetectVersion([]byte(tt.body))

			if tt.expectError {
				if err == nil {
					t.Fatalf("Expected error, got version %d", version)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if version != tt.expected {
				t.Errorf("Expected version %d, got %d", tt.expected, version)
			}
		})
	}
}

func TestDetectVersionUnknownIsTyped(t *testing.T) {
	_, err := DetectVersion([]byte(`{"x402Version":42}`))
	if err == nil {
		t.Fatal("Expected error for unknown version")
	}

	var unsupported *UnsupportedVersionError
	if !errors.As(err, &unsupported) {
		t.Fatalf("Expected UnsupportedVersionError, got %T: %v", err, err)
	}
	if unsupported.Version != 42 {
		t.Errorf("Expected version 42 in error, got %d", unsupported.Version)
	}
}
