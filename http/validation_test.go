package http

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
)

// wellFormedPayload builds a header-shaped payload map that passes every
// validation check; tests mutate it to provoke specific failures.
func wellFormedPayload() map[string]interface{} {
	return map[string]interface{}{
		"x402Version": 1,
		"resource": map[string]interface{}{
			"url":         "http://test.com",
			"description": "Test",
			"mimeType":    "application/json",
		},
		"accepted": map[string]interface{}{},
		"payload":  map[string]interface{}{},
	}
}

// encodePayload renders a payload map as the base64 header value.
func encodePayload(t *testing.T, payload map[string]interface{}) string {
	t.Helper()
	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	return base64.StdEncoding.EncodeToString(jsonBytes)
}

// expectExactError asserts the validator rejects header with exactly
// wantError.
func expectExactError(t *testing.T, header, wantError string) {
	t.Helper()
	_, err := ValidateAndDecodePaymentHeader(header)
	if err == nil {
		t.Errorf("expected error but got none")
		return
	}
	if err.Error() != wantError {
		t.Errorf("expected error %q, got %q", wantError, err.Error())
	}
}

func TestValidateAndDecodePaymentHeader(t *testing.T) {
	t.Run("Empty/Invalid Base64", func(t *testing.T) {
		expectExactError(t, "", "payment header is empty")
		expectExactError(t, "invalid@#$%", "invalid payment header format: not valid base64")
	})

	t.Run("Valid Base64 but Invalid JSON", func(t *testing.T) {
		for _, content := range []string{"not json at all", "{invalid json}"} {
			encoded := base64.StdEncoding.EncodeToString([]byte(content))
			_, err := ValidateAndDecodePaymentHeader(encoded)
			if err == nil {
				t.Errorf("expected error for %q but got none", content)
				continue
			}
			if !strings.HasPrefix(err.Error(), "invalid payment header format: not valid JSON") {
				t.Errorf("expected JSON error, got %q", err.Error())
			}
		}
	})

	t.Run("Missing Required Fields", func(t *testing.T) {
		// Each case deletes one field (or nested field) from a
		// well-formed payload.
		tests := []struct {
			name          string
			mutate        func(map[string]interface{})
			expectedError string
		}{
			{
				name:          "missing x402Version",
				mutate:        func(p map[string]interface{}) { delete(p, "x402Version") },
				expectedError: "missing required field: x402Version",
			},
			{
				name:          "missing resource",
				mutate:        func(p map[string]interface{}) { delete(p, "resource") },
				expectedError: "missing required field: resource",
			},
			{
				name:          "missing resource.url",
				mutate:        func(p map[string]interface{}) { delete(p["resource"].(map[string]interface{}), "url") },
				expectedError: "missing required field: resource.url",
			},
			{
				name:          "missing resource.description",
				mutate:        func(p map[string]interface{}) { delete(p["resource"].(map[string]interface{}), "description") },
				expectedError: "missing required field: resource.description",
			},
			{
				name:          "missing resource.mimeType",
				mutate:        func(p map[string]interface{}) { delete(p["resource"].(map[string]interface{}), "mimeType") },
				expectedError: "missing required field: resource.mimeType",
			},
			{
				name:          "missing accepted",
				mutate:        func(p map[string]interface{}) { delete(p, "accepted") },
				expectedError: "missing required field: accepted",
			},
			{
				name:          "missing payload",
				mutate:        func(p map[string]interface{}) { delete(p, "payload") },
				expectedError: "missing required field: payload",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				payload := wellFormedPayload()
				tt.mutate(payload)
				expectExactError(t, encodePayload(t, payload), tt.expectedError)
			})
		}
	})

	t.Run("Invalid Field Types", func(t *testing.T) {
		// Each case replaces one field with a wrongly-typed value.
		tests := []struct {
			name          string
			mutate        func(map[string]interface{})
			expectedError string
		}{
			{
				name:          "x402Version as string",
				mutate:        func(p map[string]interface{}) { p["x402Version"] = "1" },
				expectedError: "invalid field type: x402Version must be a number",
			},
			{
				name:          "resource as string",
				mutate:        func(p map[string]interface{}) { p["resource"] = "not an object" },
				expectedError: "invalid field type: resource must be an object",
			},
			{
				name:          "resource.url as number",
				mutate:        func(p map[string]interface{}) { p["resource"].(map[string]interface{})["url"] = 123 },
				expectedError: "invalid field type: resource.url must be a string",
			},
			{
				name:          "accepted as array",
				mutate:        func(p map[string]interface{}) { p["accepted"] = []interface{}{} },
				expectedError: "invalid field type: accepted must be an object",
			},
			{
				name:          "payload as string",
				mutate:        func(p map[string]interface{}) { p["payload"] = "not an object" },
				expectedError: "invalid field type: payload must be an object",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				payload := wellFormedPayload()
				tt.mutate(payload)
				expectExactError(t, encodePayload(t, payload), tt.expectedError)
			})
		}
	})

	t.Run("Valid Payload", func(t *testing.T) {
		payload := map[string]interface{}{
			"x402Version": 2,
			"resource": map[string]interface{}{
				"url":         "http://test.com/api",
				"description": "Test API",
				"mimeType":    "application/json",
			},
			"accepted": map[string]interface{}{
				"scheme":            "exact",
				"network":           "eip155:84532",
				"asset":             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
				"amount":            "10000",
				"payTo":             "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
				"maxTimeoutSeconds": 60,
			},
			"payload": map[string]interface{}{
				"signature": "0x123...",
			},
		}

		decoded, err := ValidateAndDecodePaymentHeader(encodePayload(t, payload))
		if err != nil {
			t.Fatalf("expected no error but got: %v", err)
		}
		if decoded == nil {
			t.Fatal("expected decoded payload but got nil")
		}
		if decoded.X402Version != 2 {
			t.Errorf("expected x402Version 2, got %d", decoded.X402Version)
		}
		if decoded.Resource.URL != "http://test.com/api" {
			t.Errorf("expected resource.url http://test.com/api, got %s", decoded.Resource.URL)
		}
	})
}
