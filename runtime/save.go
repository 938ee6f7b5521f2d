package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

const (
	saveMessagePrefix  = "Fout bij opslaan: "
	unknownSaveFailure = "Onbekende fout"
)

// SaveAndAdvance persists a record before moving the wizard forward. With a
// record id it updates (PUT endpoint/id), without one it creates (POST
// endpoint). Navigation only happens after a successful save.
type SaveAndAdvance struct {
	resource Resource
	endpoint string
	advance  func(current string) bool
	l        *slog.Logger

	mu      sync.Mutex
	id      string
	message string
	saved   Record
}

func NewSaveAndAdvance(resource Resource, endpoint, id string, advance func(current string) bool, l *slog.Logger) *SaveAndAdvance {
	if l == nil {
		l = slog.Default()
	}
	return &SaveAndAdvance{
		resource: resource,
		endpoint: strings.TrimRight(endpoint, "/"),
		id:       id,
		advance:  advance,
		l:        l,
	}
}

// Next saves record and, on success, advances from current. On failure the
// user-facing message is kept in Message and no navigation happens.
func (s *SaveAndAdvance) Next(ctx context.Context, record Record, current string) error {
	s.mu.Lock()
	id := s.id
	s.message = ""
	s.mu.Unlock()

	method, locator := http.MethodPost, s.endpoint
	if id != "" {
		method, locator = http.MethodPut, s.endpoint+"/"+url.PathEscape(id)
	}

	saved, err := send(ctx, s.resource, method, s.endpoint, locator, record)
	if err != nil {
		msg := saveMessagePrefix + failureText(err)
		s.l.ErrorContext(ctx, fmt.Sprintf("Failed to save record to %s", locator),
			"method", method,
			"error", err)

		s.mu.Lock()
		s.message = msg
		s.mu.Unlock()
		return fmt.Errorf("save %s %s: %w", method, locator, err)
	}

	s.mu.Lock()
	s.saved = saved
	if s.id == "" {
		s.id = saved.String("id")
	}
	s.mu.Unlock()

	s.l.InfoContext(ctx, fmt.Sprintf("Saved record to %s", locator), "method", method)
	if s.advance != nil {
		s.advance(current)
	}
	return nil
}

// Message is the last save failure, formatted for display, or "".
func (s *SaveAndAdvance) Message() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.message
}

// ID is the record id used for the next save. A successful create adopts
// the id echoed back by the backend.
func (s *SaveAndAdvance) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Saved returns the record echoed by the last successful save.
func (s *SaveAndAdvance) Saved() Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved.Clone()
}

func failureText(err error) string {
	var fe *FetchError
	if errors.As(err, &fe) {
		if msg := fe.Message(); msg != "" {
			return msg
		}
	}
	if err == nil || err.Error() == "" {
		return unknownSaveFailure
	}
	return err.Error()
}
