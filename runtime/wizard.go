package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// WarningEndBeforeBirth is reported when the end date precedes the birth date.
const WarningEndBeforeBirth = "end date precedes birth date"

// Input mirrors a bound input's change event.
type Input struct {
	Name    string
	Type    string
	Value   any
	Checked bool
}

// EngineConfig describes one wizard page.
type EngineConfig struct {
	Initial      Record
	Steps        []string
	DateField    string
	EndDateField string
	AgeField     string
	CalculateAge AgeFunc
	// ParseDate decides whether a birth date is usable before CalculateAge
	// runs, and is used for the date-order warning. It defaults to ParseDate
	// when CalculateAge is not set. An injected CalculateAge without
	// ParseDate sees every non-empty birth date.
	ParseDate   func(string) (time.Time, bool)
	Derivations []Derivation
}

// Engine owns the record edited across the steps of a wizard. All methods
// are safe for concurrent use; each update is applied atomically.
type Engine struct {
	ID string

	cfg      EngineConfig
	steps    Steps
	deriver  *Deriver
	resource Resource
	nav      Navigator
	l        *slog.Logger

	mu           sync.Mutex
	initial      Record
	record       Record
	result       Record
	loading      bool
	hydrationErr error
	locator      string
	closed       bool
}

func NewEngine(cfg EngineConfig, resource Resource, nav Navigator, l *slog.Logger) *Engine {
	if l == nil {
		l = slog.Default()
	}
	if cfg.AgeField == "" {
		cfg.AgeField = "age"
	}
	if cfg.CalculateAge == nil {
		cfg.CalculateAge = CalculateAge
		if cfg.ParseDate == nil {
			cfg.ParseDate = ParseDate
		}
	}
	if cfg.Initial == nil {
		cfg.Initial = Record{}
	}

	id := uuid.NewString()
	l = l.With("engine", id)

	deriver, err := CompileDerivations(cfg.Derivations)
	if err != nil {
		l.Error("Invalid derivations, derived fields disabled", "error", err)
		deriver = nil
	}

	initial := cfg.Initial.Clone()
	return &Engine{
		ID:       id,
		cfg:      cfg,
		steps:    NewSteps(cfg.Steps),
		deriver:  deriver,
		resource: resource,
		nav:      nav,
		l:        l,
		initial:  initial,
		record:   initial.Clone(),
	}
}

// Record returns a copy of the current record.
func (e *Engine) Record() Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record.Clone()
}

// Result returns a copy of the last submitted record, or nil.
func (e *Engine) Result() Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.result == nil {
		return nil
	}
	return e.result.Clone()
}

func (e *Engine) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading
}

func (e *Engine) HydrationErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hydrationErr
}

func (e *Engine) Steps() Steps {
	return e.steps
}

// Hydrate fetches the record at locator and merges it over the initial
// record. It runs once per distinct locator: asking again for the locator
// last requested is a no-op. A response for a locator that has since been
// replaced, or one arriving after Close, is dropped.
func (e *Engine) Hydrate(ctx context.Context, locator string) error {
	if locator == "" {
		return nil
	}

	e.mu.Lock()
	if e.closed || locator == e.locator {
		e.mu.Unlock()
		return nil
	}
	e.locator = locator
	e.loading = true
	e.hydrationErr = nil
	e.mu.Unlock()

	e.l.InfoContext(ctx, fmt.Sprintf("Hydrating record from %s", locator))
	payload, err := getObject(ctx, e.resource, "record", locator)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		e.loading = false
		e.l.DebugContext(ctx, fmt.Sprintf("Discarding hydration result for %s", locator))
		return nil
	}
	if e.locator != locator {
		e.l.DebugContext(ctx, fmt.Sprintf("Discarding hydration result for %s", locator))
		return nil
	}
	e.loading = false
	if err != nil {
		// Data hydrated for an earlier locator belongs to another record.
		e.commit(e.initial.Clone())
		e.hydrationErr = err
		e.l.ErrorContext(ctx, fmt.Sprintf("Failed to hydrate record from %s", locator), "error", err)
		return fmt.Errorf("hydrate %s: %w", locator, err)
	}
	e.commit(e.initial.Merge(payload))
	return nil
}

// Update merges a single field.
func (e *Engine) Update(name string, value any) {
	e.Merge(Record{name: value})
}

// UpdateInput merges the value of a change event. Checkbox inputs store
// their checked state; everything else stores the raw value.
func (e *Engine) UpdateInput(in Input) {
	if in.Type == "checkbox" {
		e.Update(in.Name, in.Checked)
		return
	}
	e.Update(in.Name, in.Value)
}

// Merge shallow-merges partial into the record.
func (e *Engine) Merge(partial Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commit(e.record.Merge(partial))
}

// UpdateDate merges a date field and recomputes the age when the birth date
// or the end date changed. The field value is committed even when the age
// cannot be computed.
func (e *Engine) UpdateDate(name, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.record.Merge(Record{name: value})

	var birth, end string
	switch {
	case name == e.cfg.DateField && value != "":
		birth = value
		if e.cfg.EndDateField != "" {
			end = next.String(e.cfg.EndDateField)
		}
	case e.cfg.EndDateField != "" && name == e.cfg.EndDateField && next.String(e.cfg.DateField) != "":
		birth = next.String(e.cfg.DateField)
		end = value
	}

	if birth != "" {
		if age, ok := e.computeAge(birth, end); ok {
			next[e.cfg.AgeField] = age
		}
	}
	e.commit(next)
}

// Warnings reports non-blocking consistency problems in the record.
func (e *Engine) Warnings() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cfg.DateField == "" || e.cfg.EndDateField == "" {
		return nil
	}
	parse := e.cfg.ParseDate
	if parse == nil {
		parse = ParseDate
	}
	birth, okBirth := parse(e.record.String(e.cfg.DateField))
	end, okEnd := parse(e.record.String(e.cfg.EndDateField))
	if okBirth && okEnd && end.Before(birth) {
		return []string{WarningEndBeforeBirth}
	}
	return nil
}

// SetRecord replaces the record. Keys of the initial shape missing from r
// are restored from the initial record.
func (e *Engine) SetRecord(r Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commit(e.initial.Merge(r))
}

// AppendEntry adds entry to the repeatable sub-section field.
func (e *Engine) AppendEntry(field string, entry map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, err := e.record.AppendEntry(field, entry)
	if err != nil {
		return err
	}
	e.commit(next)
	return nil
}

// UpdateEntry sets key on the entry at index of the sub-section field.
func (e *Engine) UpdateEntry(field string, index int, key string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, err := e.record.UpdateEntry(field, index, key, value)
	if err != nil {
		return err
	}
	e.commit(next)
	return nil
}

// RemoveEntry splices the entry at index out of the sub-section field.
func (e *Engine) RemoveEntry(field string, index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, err := e.record.RemoveEntry(field, index)
	if err != nil {
		return err
	}
	e.commit(next)
	return nil
}

// SeedEntries fills an empty sub-section with n copies of template. A list
// that already holds entries is left alone.
func (e *Engine) SeedEntries(field string, n int, template map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.record.Entries(field)) > 0 {
		return nil
	}
	next := e.record
	for i := 0; i < n; i++ {
		var err error
		if next, err = next.AppendEntry(field, template); err != nil {
			return err
		}
	}
	e.commit(next)
	return nil
}

// Submit captures the record as the result and navigates to target when
// one is given.
func (e *Engine) Submit(target string) {
	e.mu.Lock()
	e.result = e.record.Clone()
	e.mu.Unlock()

	if target != "" && e.nav != nil {
		e.nav.Navigate(target)
	}
}

// GoNext submits and moves to the step after current. It reports false,
// doing nothing, when current is unknown or the last step.
func (e *Engine) GoNext(current string) bool {
	next, ok := e.steps.Next(current)
	if !ok {
		return false
	}
	e.Submit(next)
	return true
}

// GoBack submits and moves to the step before current. It reports false,
// doing nothing, when current is unknown or the first step.
func (e *Engine) GoBack(current string) bool {
	prev, ok := e.steps.Prev(current)
	if !ok {
		return false
	}
	e.Submit(prev)
	return true
}

// Reset restores the initial record and clears the result.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record = e.initial.Clone()
	e.result = nil
}

// Close marks the engine as unmounted; in-flight hydration results are dropped.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

// commit runs derivations and stores next. It must be called with mu held.
func (e *Engine) commit(next Record) {
	if e.deriver != nil {
		derived, errs := e.deriver.Apply(next)
		for _, err := range errs {
			e.l.Warn("Derived field not updated", "error", err)
		}
		next = derived
	}
	e.record = next
}

// computeAge guards the injected age function; a panic is logged and
// treated as "no age".
func (e *Engine) computeAge(birth, end string) (age int, ok bool) {
	if e.cfg.ParseDate != nil {
		if _, valid := e.cfg.ParseDate(birth); !valid {
			return 0, false
		}
	}
	defer func() {
		if r := recover(); r != nil {
			e.l.Error("Age calculation failed", "birth", birth, "end", end, "panic", r)
			age, ok = 0, false
		}
	}()

	age = e.cfg.CalculateAge(birth, end)
	if age < 0 {
		e.l.Warn("Age calculation returned a negative value", "birth", birth, "end", end, "age", age)
		return 0, false
	}
	return age, true
}

// Steps is an ordered sequence of step identifiers.
type Steps []string

func NewSteps(steps []string) Steps {
	return slices.Clone(steps)
}

// Index returns the position of step, or -1.
func (s Steps) Index(step string) int {
	return slices.Index(s, step)
}

func (s Steps) Next(current string) (string, bool) {
	i := s.Index(current)
	if i < 0 || i >= len(s)-1 {
		return "", false
	}
	return s[i+1], true
}

func (s Steps) Prev(current string) (string, bool) {
	i := s.Index(current)
	if i <= 0 {
		return "", false
	}
	return s[i-1], true
}
