package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BDNK1/dossierflow/runtime"
	"github.com/gin-gonic/gin"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	g := gin.New()

	g.GET("/api/echo-headers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"accept":        c.GetHeader("Accept"),
			"content_type":  c.GetHeader("Content-Type"),
			"authorization": c.GetHeader("Authorization"),
		})
	})
	g.POST("/api/Deceased", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			c.String(http.StatusBadRequest, "invalid body")
			return
		}
		body["id"] = "d-1"
		c.JSON(http.StatusCreated, body)
	})
	g.GET("/api/broken", func(c *gin.Context) {
		c.String(http.StatusInternalServerError, "database offline")
	})
	g.GET("/api/slow", func(c *gin.Context) {
		select {
		case <-time.After(2 * time.Second):
		case <-c.Request.Context().Done():
		}
		c.Status(http.StatusNoContent)
	})

	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(srv *httptest.Server, tokens TokenSource) *Client {
	return New(Config{
		BaseURL:     srv.URL + "/api/",
		Timeout:     5 * time.Second,
		RetryWaitMS: 10,
	}, tokens, testLogger())
}

func TestClient_Headers(t *testing.T) {
	srv := newTestServer(t)
	client := newTestClient(srv, staticToken("token-1"))

	resp, err := client.Do(context.Background(), runtime.Request{Method: http.MethodGet, Locator: "/echo-headers"})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	var headers map[string]string
	if err := runtime.DecodeRecord(mustRecord(t, resp), &headers); err != nil {
		t.Fatalf("DecodeRecord failed: %v", err)
	}
	if headers["accept"] != "application/json" {
		t.Errorf("Expected Accept: application/json, got %q", headers["accept"])
	}
	if headers["content_type"] != "application/json" {
		t.Errorf("Expected Content-Type: application/json, got %q", headers["content_type"])
	}
	if headers["authorization"] != "Bearer token-1" {
		t.Errorf("Expected bearer token, got %q", headers["authorization"])
	}
}

func TestClient_AnonymousRequestHasNoAuthorization(t *testing.T) {
	srv := newTestServer(t)
	client := newTestClient(srv, staticToken(""))

	resp, err := client.Do(context.Background(), runtime.Request{Method: http.MethodGet, Locator: "/echo-headers"})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if got := mustRecord(t, resp).String("authorization"); got != "" {
		t.Errorf("Expected no Authorization header, got %q", got)
	}
}

func TestClient_RequireAuthWithoutToken(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL, Timeout: 5 * time.Second, RequireAuth: true}, staticToken(""), testLogger())
	_, err := client.Do(context.Background(), runtime.Request{Method: http.MethodGet, Locator: "/Deceased"})
	if !errors.Is(err, runtime.ErrNotAuthenticated) {
		t.Fatalf("Expected ErrNotAuthenticated, got %v", err)
	}
	if hits.Load() != 0 {
		t.Errorf("Expected no request to be sent, got %d", hits.Load())
	}

	client = New(Config{BaseURL: srv.URL, Timeout: 5 * time.Second, RequireAuth: true}, staticToken("t-1"), testLogger())
	if _, err := client.Do(context.Background(), runtime.Request{Method: http.MethodGet, Locator: "/Deceased"}); err != nil {
		t.Errorf("Expected a request with a token to be sent, got %v", err)
	}
}

func TestClient_PostBody(t *testing.T) {
	srv := newTestServer(t)
	client := newTestClient(srv, nil)

	resp, err := client.Do(context.Background(), runtime.Request{
		Method:  http.MethodPost,
		Locator: "/Deceased",
		Body:    runtime.Record{"firstName": "Jan"},
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}
	record := mustRecord(t, resp)
	if record.String("firstName") != "Jan" || record.String("id") != "d-1" {
		t.Errorf("Expected echoed record with id, got %v", record)
	}
}

func TestClient_StatusIsNotAnError(t *testing.T) {
	srv := newTestServer(t)
	client := newTestClient(srv, nil)

	resp, err := client.Do(context.Background(), runtime.Request{Method: http.MethodGet, Locator: "/broken"})
	if err != nil {
		t.Fatalf("Expected a response, got error %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", resp.StatusCode)
	}
	if string(resp.Body) != "database offline" {
		t.Errorf("Expected body text, got %q", resp.Body)
	}
	if resp.ContentType != "text/plain; charset=utf-8" {
		t.Errorf("Expected text/plain content type, got %q", resp.ContentType)
	}
}

func TestClient_AbsoluteLocator(t *testing.T) {
	srv := newTestServer(t)
	client := New(Config{BaseURL: "http://127.0.0.1:1/api", Timeout: time.Second}, nil, testLogger())

	resp, err := client.Do(context.Background(), runtime.Request{Method: http.MethodGet, Locator: srv.URL + "/api/echo-headers"})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}

func TestClient_ContextDeadline(t *testing.T) {
	srv := newTestServer(t)
	client := newTestClient(srv, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Do(ctx, runtime.Request{Method: http.MethodGet, Locator: "/slow"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestClient_TransportError(t *testing.T) {
	srv := newTestServer(t)
	client := newTestClient(srv, nil)
	srv.Close()

	if _, err := client.Do(context.Background(), runtime.Request{Method: http.MethodGet, Locator: "/echo-headers"}); err == nil {
		t.Error("Expected an error from a closed server")
	}
}

func mustRecord(t *testing.T, resp *runtime.Response) runtime.Record {
	t.Helper()
	var record runtime.Record
	if err := json.Unmarshal(resp.Body, &record); err != nil {
		t.Fatalf("failed to decode %q: %v", resp.Body, err)
	}
	return record
}
