package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/BDNK1/dossierflow/runtime"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Config holds the mock backend configuration with declarative tags
type Config struct {
	Addr         string   `yaml:"addr" env:"ADDR" default:"127.0.0.1:5027" validate:"required,hostname_port"`
	Prefix       string   `yaml:"prefix" env:"PREFIX" default:"/api" validate:"required,step_path"`
	DSN          string   `yaml:"dsn" env:"DSN" default:":memory:" validate:"required"`
	MaxOpenConns int      `yaml:"max_open_conns" env:"MAX_OPEN_CONNS" default:"4" validate:"gte=1,lte=100"`
	Collections  []string `yaml:"collections" default:"[\"Deceased\"]" validate:"min=1,dive,required,alphanum"`
	RequireAuth  bool     `yaml:"require_auth" env:"REQUIRE_AUTH" default:"false"`
	Seed         bool     `yaml:"seed" env:"SEED" default:"true"`
}

const (
	loginPath         = "/Auth/login"
	dossierUtilsGroup = "DossierUtils"
	insuranceCompany  = "Insurance/companies"
	dossierCollection = "dossier"
	wrongBodyFormat   = "Wrong request body format"
	unauthorizedText  = "Unauthorized"
	invalidLoginText  = "Invalid email or password"
	userContextKey    = "user"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User  runtime.User `json:"user"`
	Token string       `json:"token"`
}

// Server is an in-process stand-in for the dossier REST API: reference
// lists, generic record collections and login.
type Server struct {
	Config Config

	store *Store
	l     *slog.Logger
	g     *gin.Engine

	mu     sync.RWMutex
	tokens map[string]runtime.User
}

func NewServer(cfg Config, store *Store, l *slog.Logger) *Server {
	if l == nil {
		l = slog.Default()
	}
	s := &Server{
		Config: cfg,
		store:  store,
		l:      l,
		g:      gin.New(),
		tokens: make(map[string]runtime.User),
	}
	s.g.Use(gin.Recovery(), s.logRequests())
	s.routes()
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.g
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.Config.Addr, Handler: s.g}

	errCh := make(chan error, 1)
	go func() {
		s.l.InfoContext(ctx, fmt.Sprintf("Mock backend listening on http://%s%s", s.Config.Addr, s.Config.Prefix))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) routes() {
	api := s.g.Group(strings.TrimRight(s.Config.Prefix, "/"))

	api.POST(loginPath, s.handle(s.login))
	api.GET("/"+dossierUtilsGroup+"/:source", s.handle(func(c *gin.Context) (int, any, error) {
		return s.reference(c, dossierUtilsGroup+"/"+c.Param("source"))
	}))
	api.GET("/"+insuranceCompany, s.handle(func(c *gin.Context) (int, any, error) {
		return s.reference(c, insuranceCompany)
	}))

	records := api.Group("")
	if s.Config.RequireAuth {
		records.Use(s.authenticate())
	}
	for _, collection := range s.Config.Collections {
		records.GET("/"+collection, s.handle(s.listRecords(collection)))
		records.POST("/"+collection, s.handle(s.createRecord(collection)))
		records.GET("/"+collection+"/:id", s.handle(s.getRecord(collection)))
		records.PUT("/"+collection+"/:id", s.handle(s.updateRecord(collection)))
	}
	records.POST("/"+dossierCollection+"/new", s.handle(s.newDossier))
	records.GET("/"+dossierCollection+"/:id", s.handle(s.getRecord(dossierCollection)))
}

// handle adapts a handler returning (status, body, error). Failures are
// written as plain text so API clients can surface them verbatim.
func (s *Server) handle(fn func(c *gin.Context) (int, any, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, body, err := fn(c)
		if err != nil {
			code, message := statusOf(err)
			if code >= http.StatusInternalServerError {
				s.l.ErrorContext(c.Request.Context(), "Request failed",
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
					"error", err.Error())
			}
			c.String(code, message)
			return
		}
		if body == nil {
			c.Status(status)
			return
		}
		c.JSON(status, body)
	}
}

func (s *Server) reference(c *gin.Context, source string) (int, any, error) {
	items, err := s.store.ReferenceItems(c.Request.Context(), source)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, items, nil
}

func (s *Server) listRecords(collection string) func(c *gin.Context) (int, any, error) {
	return func(c *gin.Context) (int, any, error) {
		records, err := s.store.Records(c.Request.Context(), collection)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, records, nil
	}
}

func (s *Server) getRecord(collection string) func(c *gin.Context) (int, any, error) {
	return func(c *gin.Context) (int, any, error) {
		record, err := s.store.Record(c.Request.Context(), collection, c.Param("id"))
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, record, nil
	}
}

func (s *Server) createRecord(collection string) func(c *gin.Context) (int, any, error) {
	return func(c *gin.Context) (int, any, error) {
		record, err := readRecord(c)
		if err != nil {
			return 0, nil, err
		}
		created, err := s.store.CreateRecord(c.Request.Context(), collection, record)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, created, nil
	}
}

// newDossier opens a dossier. funeralCode and funeralLeader are required;
// the generated id doubles as the dossier's funeralGuid.
func (s *Server) newDossier(c *gin.Context) (int, any, error) {
	record, err := readRecord(c)
	if err != nil {
		return 0, nil, err
	}
	for _, field := range []string{"funeralCode", "funeralLeader"} {
		if strings.TrimSpace(record.String(field)) == "" {
			return 0, nil, badRequest("%s is required", field)
		}
	}

	id := uuid.NewString()
	record = record.Merge(runtime.Record{
		"id":                id,
		"funeralGuid":       id,
		"newDossierCreated": true,
		"dossierCompleted":  false,
	})
	created, err := s.store.CreateRecord(c.Request.Context(), dossierCollection, record)
	if err != nil {
		return 0, nil, err
	}
	s.l.InfoContext(c.Request.Context(), fmt.Sprintf("Dossier %s opened", record.String("funeralCode")), "id", id)
	return http.StatusCreated, created, nil
}

func (s *Server) updateRecord(collection string) func(c *gin.Context) (int, any, error) {
	return func(c *gin.Context) (int, any, error) {
		record, err := readRecord(c)
		if err != nil {
			return 0, nil, err
		}
		updated, err := s.store.UpdateRecord(c.Request.Context(), collection, c.Param("id"), record)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, updated, nil
	}
}

func (s *Server) login(c *gin.Context) (int, any, error) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return 0, nil, badRequest(wrongBodyFormat)
	}

	user, err := s.store.Authenticate(c.Request.Context(), req.Email, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		return 0, nil, &StatusError{Code: http.StatusUnauthorized, Message: invalidLoginText, Err: err}
	}
	if err != nil {
		return 0, nil, err
	}

	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = user
	s.mu.Unlock()

	s.l.InfoContext(c.Request.Context(), fmt.Sprintf("User %s logged in", user.Email))
	return http.StatusOK, loginResponse{User: user, Token: token}, nil
}

func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		s.mu.RLock()
		user, known := s.tokens[strings.TrimSpace(token)]
		s.mu.RUnlock()
		if !ok || !known {
			c.String(http.StatusUnauthorized, unauthorizedText)
			c.Abort()
			return
		}
		c.Set(userContextKey, user)
		c.Next()
	}
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.l.DebugContext(c.Request.Context(), "Request handled",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// readRecord decodes a JSON object body. Anything else is a 400.
func readRecord(c *gin.Context) (runtime.Record, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, badRequest(wrongBodyFormat)
	}
	var record runtime.Record
	if err := json.Unmarshal(body, &record); err != nil || record == nil {
		return nil, badRequest(wrongBodyFormat)
	}
	return record, nil
}
