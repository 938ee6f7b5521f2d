package prompt

import (
	"context"
	"errors"
	"fmt"
)

// ErrScriptExhausted is returned when a Scripted driver runs out of answers.
var ErrScriptExhausted = errors.New("prompt: no scripted answer left")

// Scripted replays canned answers, for tests and non-interactive runs.
// Inputs rejected by a validator are skipped like a re-prompt would, and
// the rejection is recorded in Rejected.
type Scripted struct {
	Inputs   []string
	Confirms []bool
	Selects  []int
	Texts    []string

	Infos    []string
	Asked    []string
	Rejected []string
}

func (s *Scripted) Input(_ context.Context, cfg InputConfig) (string, error) {
	s.Asked = append(s.Asked, cfg.Message)
	for len(s.Inputs) > 0 {
		answer := s.Inputs[0]
		s.Inputs = s.Inputs[1:]
		if cfg.Validator != nil {
			if err := cfg.Validator(answer); err != nil {
				s.Rejected = append(s.Rejected, fmt.Sprintf("%s: %v", cfg.Message, err))
				continue
			}
		}
		return answer, nil
	}
	return "", fmt.Errorf("%w for %q", ErrScriptExhausted, cfg.Message)
}

func (s *Scripted) Password(ctx context.Context, cfg InputConfig) (string, error) {
	return s.Input(ctx, cfg)
}

func (s *Scripted) Confirm(_ context.Context, cfg ConfirmConfig) (bool, error) {
	s.Asked = append(s.Asked, cfg.Message)
	if len(s.Confirms) == 0 {
		return false, fmt.Errorf("%w for %q", ErrScriptExhausted, cfg.Message)
	}
	answer := s.Confirms[0]
	s.Confirms = s.Confirms[1:]
	return answer, nil
}

func (s *Scripted) Select(_ context.Context, cfg SelectConfig) (int, error) {
	s.Asked = append(s.Asked, cfg.Message)
	if len(s.Selects) == 0 {
		return -1, fmt.Errorf("%w for %q", ErrScriptExhausted, cfg.Message)
	}
	answer := s.Selects[0]
	s.Selects = s.Selects[1:]
	if answer < 0 || answer >= len(cfg.Options) {
		return -1, fmt.Errorf("scripted choice %d out of range for %q", answer, cfg.Message)
	}
	return answer, nil
}

func (s *Scripted) TextArea(_ context.Context, cfg TextAreaConfig) (string, error) {
	s.Asked = append(s.Asked, cfg.Message)
	if len(s.Texts) == 0 {
		return "", fmt.Errorf("%w for %q", ErrScriptExhausted, cfg.Message)
	}
	answer := s.Texts[0]
	s.Texts = s.Texts[1:]
	return answer, nil
}

func (s *Scripted) Info(_ context.Context, msg string) error {
	s.Infos = append(s.Infos, msg)
	return nil
}
