package runtime

import (
	"errors"
	"fmt"
	"net/http"
)

// FetchErrorKind classifies why a request to the backend failed.
type FetchErrorKind string

const (
	// FetchErrorTransport signals no HTTP response was received.
	FetchErrorTransport FetchErrorKind = "transport"
	// FetchErrorStatus signals a non-2xx response.
	FetchErrorStatus FetchErrorKind = "status"
	// FetchErrorContentType signals a response that did not declare JSON.
	FetchErrorContentType FetchErrorKind = "content_type"
	// FetchErrorDecode signals a body that could not be decoded as JSON.
	FetchErrorDecode FetchErrorKind = "decode"
	// FetchErrorTimeout signals the request was cut off by a deadline.
	FetchErrorTimeout FetchErrorKind = "timeout"
)

// FetchError is the canonical error for hydration, reference data and
// persistence calls. Source names the logical source or record the call was
// made for.
type FetchError struct {
	Kind        FetchErrorKind
	Source      string
	Locator     string
	StatusCode  int
	Status      string
	ContentType string
	Snippet     string
	Err         error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchErrorStatus:
		msg := fmt.Sprintf("Failed to fetch %s: %s", e.Source, e.statusText())
		if e.Snippet != "" {
			msg += ": " + e.Snippet
		}
		return msg
	case FetchErrorContentType:
		msg := fmt.Sprintf("Response from %s is not JSON. Content-Type: %s", e.Source, e.ContentType)
		if e.Snippet != "" {
			msg += ": " + e.Snippet
		}
		return msg
	case FetchErrorDecode:
		return fmt.Sprintf("Failed to parse JSON from %s: %v", e.Source, e.Err)
	case FetchErrorTimeout:
		return fmt.Sprintf("Timed out fetching %s: %v", e.Source, e.Err)
	default:
		return fmt.Sprintf("Failed to fetch %s: %v", e.Source, e.Err)
	}
}

// Unwrap returns the underlying error for errors.Is and errors.As
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Message is the text shown to an operator: the backend's own error body
// when it sent one, otherwise the generic description.
func (e *FetchError) Message() string {
	if e.Kind == FetchErrorStatus {
		if e.Snippet != "" {
			return e.Snippet
		}
		return fmt.Sprintf("API error: %d", e.StatusCode)
	}
	return e.Error()
}

func (e *FetchError) statusText() string {
	if e.Status != "" {
		return e.Status
	}
	if text := http.StatusText(e.StatusCode); text != "" {
		return fmt.Sprintf("%d %s", e.StatusCode, text)
	}
	return fmt.Sprintf("%d", e.StatusCode)
}

// IsFetchError reports whether err carries a FetchError of the given kind.
func IsFetchError(err error, kind FetchErrorKind) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == kind
}
