package runtime

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// resourceFunc adapts a function to Resource.
type resourceFunc func(ctx context.Context, req Request) (*Response, error)

func (f resourceFunc) Do(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// recordingResource answers from a locator table and records every request.
type recordingResource struct {
	mu        sync.Mutex
	requests  []Request
	responses map[string]*Response
	err       error
}

func newRecordingResource() *recordingResource {
	return &recordingResource{responses: map[string]*Response{}}
}

func (r *recordingResource) on(method, locator string, resp *Response) *recordingResource {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[method+" "+locator] = resp
	return r
}

func (r *recordingResource) Do(_ context.Context, req Request) (*Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	if r.err != nil {
		return nil, r.err
	}
	if resp, ok := r.responses[req.Method+" "+req.Locator]; ok {
		return resp, nil
	}
	return textResponse(http.StatusNotFound, "not found"), nil
}

func (r *recordingResource) calls() []Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Request(nil), r.requests...)
}

func jsonResponse(status int, body string) *Response {
	return &Response{
		StatusCode:  status,
		Status:      http.StatusText(status),
		ContentType: "application/json; charset=utf-8",
		Body:        []byte(body),
	}
}

func textResponse(status int, body string) *Response {
	return &Response{
		StatusCode:  status,
		Status:      http.StatusText(status),
		ContentType: "text/html; charset=utf-8",
		Body:        []byte(body),
	}
}
