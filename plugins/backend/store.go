package backend

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BDNK1/dossierflow/runtime"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"
)

//go:embed seed.yaml
var defaultSeed []byte

const schema = `
CREATE TABLE IF NOT EXISTS records (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (collection, id)
);
CREATE TABLE IF NOT EXISTS reference_items (
	source   TEXT NOT NULL,
	position INTEGER NOT NULL,
	item_id  TEXT NOT NULL,
	value    TEXT NOT NULL,
	label    TEXT NOT NULL,
	PRIMARY KEY (source, position)
);
CREATE TABLE IF NOT EXISTS users (
	email         TEXT PRIMARY KEY,
	id            TEXT NOT NULL,
	name          TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	roles         TEXT NOT NULL
);`

// Store persists dossier records, reference lists and users in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

type seedUser struct {
	Email    string   `yaml:"email"`
	Name     string   `yaml:"name"`
	Password string   `yaml:"password"`
	Roles    []string `yaml:"roles"`
}

type seedData struct {
	Reference map[string][]runtime.DropdownItem `yaml:"reference"`
	Users     []seedUser                        `yaml:"users"`
}

// OpenStore opens the database and applies the schema. An in-memory DSN is
// pinned to one connection so every query sees the same database.
func OpenStore(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if strings.Contains(cfg.DSN, ":memory:") || strings.Contains(cfg.DSN, "mode=memory") {
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Seed loads reference lists and users from YAML. nil seeds the built-in
// data set. Reference lists are replaced; existing users are kept.
func (s *Store) Seed(ctx context.Context, data []byte) error {
	if data == nil {
		data = defaultSeed
	}
	var seed seedData
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse seed: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	for source, items := range seed.Reference {
		if _, err := tx.ExecContext(ctx, `DELETE FROM reference_items WHERE source = ?`, source); err != nil {
			return fmt.Errorf("clear %s: %w", source, err)
		}
		for i, item := range items {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO reference_items (source, position, item_id, value, label) VALUES (?, ?, ?, ?, ?)`,
				source, i, item.ID, item.Value, item.Label,
			); err != nil {
				return fmt.Errorf("seed %s: %w", source, err)
			}
		}
	}

	for _, u := range seed.Users {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.MinCost)
		if err != nil {
			return fmt.Errorf("hash password for %s: %w", u.Email, err)
		}
		roles, err := json.Marshal(u.Roles)
		if err != nil {
			return fmt.Errorf("encode roles for %s: %w", u.Email, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO users (email, id, name, password_hash, roles) VALUES (?, ?, ?, ?, ?)`,
			strings.ToLower(u.Email), uuid.NewString(), u.Name, string(hash), string(roles),
		); err != nil {
			return fmt.Errorf("seed user %s: %w", u.Email, err)
		}
	}

	return tx.Commit()
}

// ReferenceItems returns a reference list in its stored order.
func (s *Store) ReferenceItems(ctx context.Context, source string) ([]runtime.DropdownItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id, value, label FROM reference_items WHERE source = ? ORDER BY position`, source)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", source, err)
	}
	defer rows.Close()

	items := []runtime.DropdownItem{}
	for rows.Next() {
		var item runtime.DropdownItem
		if err := rows.Scan(&item.ID, &item.Value, &item.Label); err != nil {
			return nil, fmt.Errorf("scan %s: %w", source, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", source, err)
	}
	if len(items) == 0 {
		return nil, notFound("Unknown reference list %s", source)
	}
	return items, nil
}

// Records lists a collection, oldest first.
func (s *Store) Records(ctx context.Context, collection string) ([]runtime.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM records WHERE collection = ? ORDER BY created_at, id`, collection)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	records := []runtime.Record{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Record loads one record.
func (s *Store) Record(ctx context.Context, collection, id string) (runtime.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT body FROM records WHERE collection = ? AND id = ?`, collection, id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("%s %s not found", collection, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s %s: %w", collection, id, err)
	}
	return record, nil
}

// CreateRecord stores a new record under a fresh id, or under the id the
// record already carries.
func (s *Store) CreateRecord(ctx context.Context, collection string, record runtime.Record) (runtime.Record, error) {
	id := record.String("id")
	if id == "" {
		id = uuid.NewString()
	}
	stored := record.Merge(runtime.Record{"id": id})
	body, err := json.Marshal(stored)
	if err != nil {
		return nil, badRequest("Record is not serializable")
	}

	now := s.now().UTC().UnixMilli()
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO records (collection, id, body, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		collection, id, string(body), now, now)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", collection, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, &StatusError{Code: http.StatusConflict, Message: fmt.Sprintf("%s %s already exists", collection, id)}
	}
	return stored, nil
}

// UpdateRecord merges partial into the stored record. Keys absent from
// partial keep their stored value, so each wizard page can save its own
// slice of the dossier.
func (s *Store) UpdateRecord(ctx context.Context, collection, id string, partial runtime.Record) (runtime.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT body FROM records WHERE collection = ? AND id = ?`, collection, id)
	existing, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("%s %s not found", collection, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s %s: %w", collection, id, err)
	}

	merged := existing.Merge(partial).Merge(runtime.Record{"id": id})
	body, err := json.Marshal(merged)
	if err != nil {
		return nil, badRequest("Record is not serializable")
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE records SET body = ?, updated_at = ? WHERE collection = ? AND id = ?`,
		string(body), s.now().UTC().UnixMilli(), collection, id,
	); err != nil {
		return nil, fmt.Errorf("update %s %s: %w", collection, id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit %s %s: %w", collection, id, err)
	}
	return merged, nil
}

// Authenticate checks a password against the stored bcrypt hash.
func (s *Store) Authenticate(ctx context.Context, email, password string) (runtime.User, error) {
	var (
		user  runtime.User
		hash  string
		roles string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, roles FROM users WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email)),
	).Scan(&user.ID, &user.Name, &user.Email, &hash, &roles)
	if errors.Is(err, sql.ErrNoRows) {
		return runtime.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return runtime.User{}, fmt.Errorf("load user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return runtime.User{}, ErrInvalidCredentials
	}
	if err := json.Unmarshal([]byte(roles), &user.Roles); err != nil {
		return runtime.User{}, fmt.Errorf("decode roles: %w", err)
	}
	return user, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (runtime.Record, error) {
	var body string
	if err := row.Scan(&body); err != nil {
		return nil, err
	}
	var record runtime.Record
	if err := json.Unmarshal([]byte(body), &record); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	if record == nil {
		record = runtime.Record{}
	}
	return record, nil
}
