package runtime

import "context"

// Request describes one call to the JSON-over-HTTP collaborator.
// Locators without a scheme are resolved against the resource's base URL.
type Request struct {
	Method  string
	Locator string
	Body    any
}

// Response is the raw outcome of a Request. Status checks, content
// negotiation and decoding are the caller's job.
type Response struct {
	StatusCode  int
	Status      string
	ContentType string
	Body        []byte
}

// Resource performs requests against the persistence/query backend.
// A non-nil error means the request never produced an HTTP response.
type Resource interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// Navigator moves the hosting page to another step identifier.
type Navigator interface {
	Navigate(step string)
}

// NavigatorFunc adapts a plain function to Navigator.
type NavigatorFunc func(step string)

func (f NavigatorFunc) Navigate(step string) {
	f(step)
}
