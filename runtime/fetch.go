package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"html"
	"mime"
	"net/http"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

const snippetLimit = 200

var snippetPolicy = bluemonday.StrictPolicy()

// getList fetches a JSON array of dropdown items. The response must declare
// a JSON content type.
func getList(ctx context.Context, resource Resource, source, locator string) ([]DropdownItem, error) {
	resp, err := do(ctx, resource, source, Request{Method: http.MethodGet, Locator: locator})
	if err != nil {
		return nil, err
	}
	if !isJSON(resp.ContentType) {
		return nil, &FetchError{
			Kind:        FetchErrorContentType,
			Source:      source,
			Locator:     locator,
			StatusCode:  resp.StatusCode,
			ContentType: resp.ContentType,
			Snippet:     snippet(resp.Body),
		}
	}

	var items []DropdownItem
	if err := json.Unmarshal(resp.Body, &items); err != nil {
		return nil, &FetchError{Kind: FetchErrorDecode, Source: source, Locator: locator, StatusCode: resp.StatusCode, Err: err}
	}
	if items == nil {
		items = []DropdownItem{}
	}
	return items, nil
}

// getObject fetches a single JSON object, used for hydration. The content
// type is not checked; the body only has to decode.
func getObject(ctx context.Context, resource Resource, source, locator string) (Record, error) {
	resp, err := do(ctx, resource, source, Request{Method: http.MethodGet, Locator: locator})
	if err != nil {
		return nil, err
	}
	return decodeObject(resp, source, locator)
}

// send issues a POST or PUT with a JSON body. A 204 or an empty body yields
// an empty record.
func send(ctx context.Context, resource Resource, method, source, locator string, body any) (Record, error) {
	resp, err := do(ctx, resource, source, Request{Method: method, Locator: locator, Body: body})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNoContent || len(strings.TrimSpace(string(resp.Body))) == 0 {
		return Record{}, nil
	}
	return decodeObject(resp, source, locator)
}

func do(ctx context.Context, resource Resource, source string, req Request) (*Response, error) {
	resp, err := resource.Do(ctx, req)
	if err != nil {
		kind := FetchErrorTransport
		if errors.Is(err, context.DeadlineExceeded) {
			kind = FetchErrorTimeout
		}
		return nil, &FetchError{Kind: kind, Source: source, Locator: req.Locator, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{
			Kind:        FetchErrorStatus,
			Source:      source,
			Locator:     req.Locator,
			StatusCode:  resp.StatusCode,
			Status:      resp.Status,
			ContentType: resp.ContentType,
			Snippet:     snippet(resp.Body),
		}
	}
	return resp, nil
}

func decodeObject(resp *Response, source, locator string) (Record, error) {
	var out map[string]any
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, &FetchError{Kind: FetchErrorDecode, Source: source, Locator: locator, StatusCode: resp.StatusCode, Err: err}
	}
	if out == nil {
		out = map[string]any{}
	}
	return Record(out), nil
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "application/json")
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// snippet strips markup from a response body and truncates it for diagnostics.
func snippet(body []byte) string {
	text := strings.Join(strings.Fields(html.UnescapeString(snippetPolicy.Sanitize(string(body)))), " ")
	runes := []rune(text)
	if len(runes) > snippetLimit {
		return string(runes[:snippetLimit]) + "..."
	}
	return text
}
