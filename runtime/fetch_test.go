package runtime

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGetList(t *testing.T) {
	ctx := context.Background()

	t.Run("decodes items", func(t *testing.T) {
		res := newRecordingResource().on(http.MethodGet, "/DossierUtils/origins",
			jsonResponse(200, `[{"id":"1","value":"natural","label":"Natuurlijk"},{"id":2,"value":"accident","label":"Ongeval"}]`))

		items, err := getList(ctx, res, "origins", "/DossierUtils/origins")
		if err != nil {
			t.Fatalf("getList failed: %v", err)
		}
		want := []DropdownItem{
			{ID: "1", Value: "natural", Label: "Natuurlijk"},
			{ID: "2", Value: "accident", Label: "Ongeval"},
		}
		if diff := cmp.Diff(want, items); diff != "" {
			t.Errorf("items mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("null body yields empty list", func(t *testing.T) {
		res := newRecordingResource().on(http.MethodGet, "/empty", jsonResponse(200, `null`))

		items, err := getList(ctx, res, "empty", "/empty")
		if err != nil {
			t.Fatalf("getList failed: %v", err)
		}
		if items == nil || len(items) != 0 {
			t.Errorf("Expected an empty non-nil list, got %#v", items)
		}
	})

	t.Run("rejects non json content type", func(t *testing.T) {
		res := newRecordingResource().on(http.MethodGet, "/html", textResponse(200, "<html><body><h1>Login</h1></body></html>"))

		_, err := getList(ctx, res, "html", "/html")
		var fe *FetchError
		if !errors.As(err, &fe) {
			t.Fatalf("Expected FetchError, got %v", err)
		}
		if fe.Kind != FetchErrorContentType {
			t.Errorf("Expected content_type kind, got %s", fe.Kind)
		}
		if fe.Snippet != "Login" {
			t.Errorf("Expected markup stripped from snippet, got %q", fe.Snippet)
		}
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		res := newRecordingResource().on(http.MethodGet, "/broken", jsonResponse(200, `[{"id":`))

		_, err := getList(ctx, res, "broken", "/broken")
		if !IsFetchError(err, FetchErrorDecode) {
			t.Errorf("Expected decode error, got %v", err)
		}
	})

	t.Run("status error carries body", func(t *testing.T) {
		res := newRecordingResource().on(http.MethodGet, "/fail", textResponse(500, "database offline"))

		_, err := getList(ctx, res, "fail", "/fail")
		var fe *FetchError
		if !errors.As(err, &fe) {
			t.Fatalf("Expected FetchError, got %v", err)
		}
		if fe.Kind != FetchErrorStatus || fe.StatusCode != 500 {
			t.Errorf("Expected status 500 error, got %s/%d", fe.Kind, fe.StatusCode)
		}
		if fe.Snippet != "database offline" {
			t.Errorf("Expected body snippet, got %q", fe.Snippet)
		}
	})

	t.Run("transport error", func(t *testing.T) {
		res := newRecordingResource()
		res.err = errors.New("dial tcp: connection refused")

		_, err := getList(ctx, res, "down", "/down")
		if !IsFetchError(err, FetchErrorTransport) {
			t.Errorf("Expected transport error, got %v", err)
		}
	})

	t.Run("deadline becomes timeout", func(t *testing.T) {
		res := newRecordingResource()
		res.err = context.DeadlineExceeded

		_, err := getList(ctx, res, "slow", "/slow")
		if !IsFetchError(err, FetchErrorTimeout) {
			t.Errorf("Expected timeout error, got %v", err)
		}
	})
}

func TestSend(t *testing.T) {
	ctx := context.Background()
	res := newRecordingResource().
		on(http.MethodPost, "/Deceased", jsonResponse(201, `{"id":"abc","firstName":"Jan"}`)).
		on(http.MethodPut, "/Deceased/abc", &Response{StatusCode: 204, Status: "204 No Content"})

	created, err := send(ctx, res, http.MethodPost, "Deceased", "/Deceased", Record{"firstName": "Jan"})
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	if created.String("id") != "abc" {
		t.Errorf("Expected echoed id abc, got %q", created.String("id"))
	}

	updated, err := send(ctx, res, http.MethodPut, "Deceased", "/Deceased/abc", Record{"firstName": "Jan"})
	if err != nil {
		t.Fatalf("PUT failed: %v", err)
	}
	if len(updated) != 0 {
		t.Errorf("Expected empty record for 204, got %v", updated)
	}

	calls := res.calls()
	if len(calls) != 2 {
		t.Fatalf("Expected 2 calls, got %d", len(calls))
	}
	if calls[0].Body == nil {
		t.Error("Expected the record to be sent as body")
	}
}

func TestIsJSON(t *testing.T) {
	tests := map[string]bool{
		"application/json":                  true,
		"application/json; charset=utf-8":   true,
		"application/problem+json":          true,
		"text/html; charset=utf-8":          false,
		"text/plain":                        false,
		"":                                  false,
		"application/json;;broken=":         true,
	}
	for contentType, want := range tests {
		if got := isJSON(contentType); got != want {
			t.Errorf("isJSON(%q) = %v, want %v", contentType, got, want)
		}
	}
}

func TestSnippet_Truncates(t *testing.T) {
	body := strings.Repeat("a", 500)

	got := snippet([]byte(body))
	if len([]rune(got)) != snippetLimit+3 {
		t.Errorf("Expected %d runes, got %d", snippetLimit+3, len([]rune(got)))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("Expected ellipsis suffix, got %q", got[len(got)-5:])
	}
}
