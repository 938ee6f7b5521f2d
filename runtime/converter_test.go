package runtime

import (
	"testing"
	"time"
)

type loginResponse struct {
	Token string `json:"token"`
	User  struct {
		ID    string   `json:"id"`
		Email string   `json:"email"`
		Roles []string `json:"roles"`
	} `json:"user"`
}

type priceLine struct {
	Omschrijving string  `json:"omschrijving"`
	Aantal       int     `json:"aantal"`
	Bedrag       float64 `json:"bedrag"`
	Internal     string  `json:"-"`
}

type timeoutSection struct {
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

func TestDecodeRecord_NestedResponse(t *testing.T) {
	record := Record{
		"token": "abc",
		"user": map[string]any{
			"id":    "u-1",
			"email": "uitvaart@example.com",
			"roles": []any{"Admin", "User"},
		},
	}

	var result loginResponse
	if err := DecodeRecord(record, &result); err != nil {
		t.Fatalf("DecodeRecord failed: %v", err)
	}

	if result.Token != "abc" {
		t.Errorf("Expected token 'abc', got '%s'", result.Token)
	}
	if result.User.Email != "uitvaart@example.com" {
		t.Errorf("Expected email, got '%s'", result.User.Email)
	}
	if len(result.User.Roles) != 2 || result.User.Roles[0] != "Admin" {
		t.Errorf("Expected roles [Admin User], got %v", result.User.Roles)
	}
}

func TestDecodeRecord_TypeCoercion(t *testing.T) {
	record := Record{"omschrijving": "Kist", "aantal": "2", "bedrag": "950.5"}

	var result priceLine
	if err := DecodeRecord(record, &result); err != nil {
		t.Fatalf("DecodeRecord failed: %v", err)
	}

	if result.Aantal != 2 {
		t.Errorf("Expected aantal 2, got %d", result.Aantal)
	}
	if result.Bedrag != 950.5 {
		t.Errorf("Expected bedrag 950.5, got %v", result.Bedrag)
	}
}

func TestDecodeRecord_InvalidInput(t *testing.T) {
	record := Record{"aantal": "twee"}

	var result priceLine
	if err := DecodeRecord(record, &result); err == nil {
		t.Error("Expected error for invalid type conversion, got nil")
	}
}

func TestMapToStructFromYAML_Duration(t *testing.T) {
	input := map[string]any{
		"timeout":     "45s",
		"max_retries": "2",
	}

	var result timeoutSection
	if err := mapToStructFromYAML(input, &result); err != nil {
		t.Fatalf("mapToStructFromYAML failed: %v", err)
	}

	if result.Timeout != 45*time.Second {
		t.Errorf("Expected timeout 45s, got %v", result.Timeout)
	}
	if result.MaxRetries != 2 {
		t.Errorf("Expected max_retries 2, got %d", result.MaxRetries)
	}
}
