package backend

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BDNK1/dossierflow/runtime"
	"github.com/gin-gonic/gin"
)

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewServer(cfg, newTestStore(t), testLogger())
}

func serve(s *Server, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestServer_ReferenceLists(t *testing.T) {
	s := newTestServer(t, testConfig())

	tests := []struct {
		path   string
		status int
		count  int
	}{
		{"/api/DossierUtils/salutations", http.StatusOK, 3},
		{"/api/DossierUtils/maritalstatus", http.StatusOK, 4},
		{"/api/DossierUtils/funeral-types", http.StatusOK, 2},
		{"/api/Insurance/companies", http.StatusOK, 3},
		{"/api/DossierUtils/unknown", http.StatusNotFound, 0},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := serve(s, http.MethodGet, tt.path, "", nil)
			if w.Code != tt.status {
				t.Fatalf("Expected status %d, got %d (%s)", tt.status, w.Code, w.Body.String())
			}
			if tt.status != http.StatusOK {
				if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain") {
					t.Errorf("Expected a plain text error, got %q", w.Header().Get("Content-Type"))
				}
				return
			}
			var items []runtime.DropdownItem
			if err := json.Unmarshal(w.Body.Bytes(), &items); err != nil {
				t.Fatalf("Expected JSON items, got %q", w.Body.String())
			}
			if len(items) != tt.count {
				t.Errorf("Expected %d items, got %d", tt.count, len(items))
			}
		})
	}
}

func TestServer_RecordLifecycle(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := serve(s, http.MethodPost, "/api/Deceased", `{"firstName":"Jan"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	var created runtime.Record
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode created record: %v", err)
	}
	id := created.String("id")
	if id == "" {
		t.Fatal("Expected the created record to carry an id")
	}

	w = serve(s, http.MethodPut, "/api/Deceased/"+id, `{"lastName":"Jansen"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d (%s)", w.Code, w.Body.String())
	}

	w = serve(s, http.MethodGet, "/api/Deceased/"+id, "", nil)
	var loaded runtime.Record
	if err := json.Unmarshal(w.Body.Bytes(), &loaded); err != nil {
		t.Fatalf("failed to decode record: %v", err)
	}
	if loaded.String("firstName") != "Jan" || loaded.String("lastName") != "Jansen" {
		t.Errorf("Expected merged record, got %v", loaded)
	}

	w = serve(s, http.MethodGet, "/api/Deceased", "", nil)
	var all []runtime.Record
	if err := json.Unmarshal(w.Body.Bytes(), &all); err != nil || len(all) != 1 {
		t.Errorf("Expected one record in the collection, got %q", w.Body.String())
	}
}

func TestServer_NewDossier(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := serve(s, http.MethodPost, "/api/dossier/new", `{"funeralCode":"U-1","funeralLeader":"jvdb","voorregeling":true}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	var created runtime.Record
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode dossier: %v", err)
	}
	id := created.String("id")
	if id == "" || created.String("funeralGuid") != id {
		t.Errorf("Expected funeralGuid to equal the id, got %v", created)
	}
	if created["newDossierCreated"] != true || created["dossierCompleted"] != false {
		t.Errorf("Unexpected dossier flags %v", created)
	}

	w = serve(s, http.MethodGet, "/api/dossier/"+id, "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected the dossier to be readable, got %d", w.Code)
	}

	w = serve(s, http.MethodPost, "/api/dossier/new", `{"funeralCode":"U-2"}`, nil)
	if w.Code != http.StatusBadRequest || w.Body.String() != "funeralLeader is required" {
		t.Errorf("Expected a 400 for a missing leader, got %d %q", w.Code, w.Body.String())
	}
}

func TestServer_Errors(t *testing.T) {
	s := newTestServer(t, testConfig())

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		text   string
	}{
		{"missing record", http.MethodGet, "/api/Deceased/nope", "", http.StatusNotFound, "Deceased nope not found"},
		{"update missing", http.MethodPut, "/api/Deceased/nope", `{}`, http.StatusNotFound, "Deceased nope not found"},
		{"array body", http.MethodPost, "/api/Deceased", `[1,2]`, http.StatusBadRequest, wrongBodyFormat},
		{"broken body", http.MethodPost, "/api/Deceased", `{`, http.StatusBadRequest, wrongBodyFormat},
		{"unknown collection", http.MethodGet, "/api/Employees", "", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(s, tt.method, tt.path, tt.body, nil)
			if w.Code != tt.status {
				t.Fatalf("Expected status %d, got %d", tt.status, w.Code)
			}
			if tt.text != "" && w.Body.String() != tt.text {
				t.Errorf("Expected %q, got %q", tt.text, w.Body.String())
			}
		})
	}
}

func TestServer_LoginAndRequireAuth(t *testing.T) {
	cfg := testConfig()
	cfg.RequireAuth = true
	s := newTestServer(t, cfg)

	if w := serve(s, http.MethodGet, "/api/Deceased", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without a token, got %d", w.Code)
	}
	if w := serve(s, http.MethodGet, "/api/DossierUtils/origins", "", nil); w.Code != http.StatusOK {
		t.Errorf("Expected reference lists to stay public, got %d", w.Code)
	}

	w := serve(s, http.MethodPost, "/api/Auth/login", `{"email":"user@example.com","password":"wrong"}`, nil)
	if w.Code != http.StatusUnauthorized || w.Body.String() != invalidLoginText {
		t.Errorf("Expected 401 %q, got %d %q", invalidLoginText, w.Code, w.Body.String())
	}

	w = serve(s, http.MethodPost, "/api/Auth/login", `{"email":"user@example.com","password":"user"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	var login loginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &login); err != nil {
		t.Fatalf("failed to decode login response: %v", err)
	}
	if login.Token == "" || login.User.Email != "user@example.com" {
		t.Errorf("Expected a token for user@example.com, got %+v", login)
	}

	header := http.Header{"Authorization": []string{"Bearer " + login.Token}}
	if w := serve(s, http.MethodGet, "/api/Deceased", "", header); w.Code != http.StatusOK {
		t.Errorf("Expected 200 with a token, got %d", w.Code)
	}

	header = http.Header{"Authorization": []string{"Bearer forged"}}
	if w := serve(s, http.MethodGet, "/api/Deceased", "", header); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with an unknown token, got %d", w.Code)
	}
}

func TestStatusOf(t *testing.T) {
	code, text := statusOf(notFound("x %s", "y"))
	if code != http.StatusNotFound || text != "x y" {
		t.Errorf("Expected 404 %q, got %d %q", "x y", code, text)
	}
	code, text = statusOf(bytes.ErrTooLarge)
	if code != http.StatusInternalServerError || text != "Internal server error" {
		t.Errorf("Expected an opaque 500, got %d %q", code, text)
	}
}

func TestServer_LogsInternalErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var logs bytes.Buffer
	store := newTestStore(t)
	s := NewServer(testConfig(), store, slog.New(slog.NewTextHandler(&logs, nil)))

	store.Close()
	w := serve(s, http.MethodGet, "/api/Deceased", "", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d", w.Code)
	}
	if !strings.Contains(logs.String(), "Request failed") || !strings.Contains(logs.String(), "path=/api/Deceased") {
		t.Errorf("Expected the failure on the server logger, got %q", logs.String())
	}
}
