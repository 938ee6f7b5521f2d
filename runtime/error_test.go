package runtime

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestFetchError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *FetchError
		expected string
	}{
		{
			name:     "status with snippet",
			err:      &FetchError{Kind: FetchErrorStatus, Source: "salutations", StatusCode: 500, Status: "500 Internal Server Error", Snippet: "boom"},
			expected: "Failed to fetch salutations: 500 Internal Server Error: boom",
		},
		{
			name:     "status without status text",
			err:      &FetchError{Kind: FetchErrorStatus, Source: "origins", StatusCode: 404},
			expected: "Failed to fetch origins: 404 Not Found",
		},
		{
			name:     "content type",
			err:      &FetchError{Kind: FetchErrorContentType, Source: "origins", ContentType: "text/html"},
			expected: "Response from origins is not JSON. Content-Type: text/html",
		},
		{
			name:     "decode",
			err:      &FetchError{Kind: FetchErrorDecode, Source: "origins", Err: errors.New("unexpected end of JSON input")},
			expected: "Failed to parse JSON from origins: unexpected end of JSON input",
		},
		{
			name:     "transport",
			err:      &FetchError{Kind: FetchErrorTransport, Source: "origins", Err: errors.New("connection refused")},
			expected: "Failed to fetch origins: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestFetchError_Message(t *testing.T) {
	withBody := &FetchError{Kind: FetchErrorStatus, StatusCode: 400, Snippet: "Voornaam is verplicht"}
	if got := withBody.Message(); got != "Voornaam is verplicht" {
		t.Errorf("Expected the backend body, got %q", got)
	}

	empty := &FetchError{Kind: FetchErrorStatus, StatusCode: 502}
	if got := empty.Message(); got != "API error: 502" {
		t.Errorf("Expected 'API error: 502', got %q", got)
	}
}

func TestFetchError_Unwrap(t *testing.T) {
	wrapped := fmt.Errorf("hydrate: %w", &FetchError{Kind: FetchErrorTimeout, Err: context.DeadlineExceeded})

	if !errors.Is(wrapped, context.DeadlineExceeded) {
		t.Error("errors.Is should reach the underlying error")
	}
	if !IsFetchError(wrapped, FetchErrorTimeout) {
		t.Error("IsFetchError should find the timeout kind")
	}
	if IsFetchError(wrapped, FetchErrorStatus) {
		t.Error("IsFetchError should not match a different kind")
	}
}
