package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// GenericReferenceError replaces per-source diagnostics when the loader is
// not running in verbose mode.
const GenericReferenceError = "Failed to load dropdown data. Please try again later."

// DropdownItem is one selectable option of a reference data source.
type DropdownItem struct {
	ID    string `json:"id" yaml:"id"`
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

// UnmarshalJSON accepts numeric ids and values as well as strings.
func (d *DropdownItem) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fields := map[string]*string{"id": &d.ID, "value": &d.Value, "label": &d.Label}
	for key, target := range fields {
		value, ok := raw[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			*target = s
			continue
		}
		var n json.Number
		if err := json.Unmarshal(value, &n); err != nil {
			return fmt.Errorf("dropdown item %s: %w", key, err)
		}
		*target = n.String()
	}
	return nil
}

// ReferenceConfig tunes a ReferenceLoader.
type ReferenceConfig struct {
	// SourceTimeout bounds each source fetch. Zero disables the bound.
	SourceTimeout time.Duration `yaml:"source_timeout" default:"30s" env:"SOURCE_TIMEOUT"`
	// Verbose exposes per-source diagnostics instead of GenericReferenceError.
	Verbose bool `yaml:"verbose" default:"true" env:"VERBOSE"`
}

// ReferenceState is a point-in-time copy of every source's outcome.
type ReferenceState struct {
	Items   map[string][]DropdownItem
	Loading map[string]bool
	Errors  map[string]string
}

type referenceRound struct {
	seq     uint64
	done    chan struct{}
	pending int
	cancel  context.CancelFunc
}

// ReferenceLoader fetches dropdown option sets from a fixed mapping of source
// name to locator and tracks loading and error state per source.
//
// Every round carries a sequence number. Results from a round older than the
// current one are discarded, so a refetch always wins over a slower earlier
// round.
type ReferenceLoader struct {
	resource Resource
	cfg      ReferenceConfig
	l        *slog.Logger

	mu        sync.Mutex
	sources   map[string]string
	signature string
	items     map[string][]DropdownItem
	loading   map[string]bool
	errs      map[string]string
	seq       uint64
	current   *referenceRound
	inFlight  bool
	closed    bool
}

// NewReferenceLoader copies sources and starts the first round.
func NewReferenceLoader(ctx context.Context, resource Resource, sources map[string]string, cfg ReferenceConfig, l *slog.Logger) *ReferenceLoader {
	if l == nil {
		l = slog.Default()
	}
	loader := &ReferenceLoader{
		resource: resource,
		cfg:      cfg,
		l:        l,
	}
	loader.reset(sources)
	loader.Load(ctx)
	return loader
}

// Load starts a round unless one is already running, and returns a channel
// closed when the running round settles.
func (r *ReferenceLoader) Load(ctx context.Context) <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inFlight {
		return r.current.done
	}
	return r.startRound(ctx)
}

// Refetch starts a fresh round even when one is running. Every source goes
// back to loading with its error cleared; last known items are kept.
func (r *ReferenceLoader) Refetch(ctx context.Context) <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.inFlight = false
	return r.startRound(ctx)
}

// SetSources replaces the source mapping when it differs by value from the
// current one and refetches. It reports whether anything changed.
func (r *ReferenceLoader) SetSources(ctx context.Context, sources map[string]string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sourceSignature(sources) == r.signature {
		return false
	}
	r.reset(sources)
	r.inFlight = false
	r.startRound(ctx)
	return true
}

// Wait blocks until the current round settles or ctx is done.
func (r *ReferenceLoader) Wait(ctx context.Context) error {
	r.mu.Lock()
	done := r.current.done
	r.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels the running round. Results landing afterwards are dropped.
func (r *ReferenceLoader) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	if r.current != nil && r.current.cancel != nil {
		r.current.cancel()
	}
}

// Snapshot copies the per-source state.
func (r *ReferenceLoader) Snapshot() ReferenceState {
	r.mu.Lock()
	defer r.mu.Unlock()

	state := ReferenceState{
		Items:   make(map[string][]DropdownItem, len(r.items)),
		Loading: maps.Clone(r.loading),
		Errors:  maps.Clone(r.errs),
	}
	for name, items := range r.items {
		state.Items[name] = slices.Clone(items)
	}
	return state
}

func (r *ReferenceLoader) Items(name string) []DropdownItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.items[name])
}

func (r *ReferenceLoader) Loading(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading[name]
}

func (r *ReferenceLoader) Err(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errs[name]
}

// Sources returns a copy of the current mapping.
func (r *ReferenceLoader) Sources() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.sources)
}

// reset must be called with mu held (or before the loader is shared).
func (r *ReferenceLoader) reset(sources map[string]string) {
	r.sources = maps.Clone(sources)
	if r.sources == nil {
		r.sources = map[string]string{}
	}
	r.signature = sourceSignature(r.sources)
	r.items = make(map[string][]DropdownItem, len(r.sources))
	r.loading = make(map[string]bool, len(r.sources))
	r.errs = make(map[string]string, len(r.sources))
	for name := range r.sources {
		r.items[name] = []DropdownItem{}
	}
}

// startRound must be called with mu held.
func (r *ReferenceLoader) startRound(ctx context.Context) <-chan struct{} {
	r.seq++
	round := &referenceRound{
		seq:     r.seq,
		done:    make(chan struct{}),
		pending: len(r.sources),
	}
	r.current = round

	if r.closed || len(r.sources) == 0 {
		close(round.done)
		return round.done
	}

	roundCtx, cancel := context.WithCancel(ctx)
	round.cancel = cancel
	r.inFlight = true

	for name, locator := range r.sources {
		r.loading[name] = true
		delete(r.errs, name)
		go r.fetch(roundCtx, round, name, locator)
	}
	return round.done
}

func (r *ReferenceLoader) fetch(ctx context.Context, round *referenceRound, name, locator string) {
	if r.cfg.SourceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.SourceTimeout)
		defer cancel()
	}

	items, err := getList(ctx, r.resource, name, locator)

	r.mu.Lock()
	defer r.mu.Unlock()
	defer r.settle(round)

	if r.closed {
		return
	}
	if round.seq < r.seq {
		r.l.DebugContext(ctx, fmt.Sprintf("Discarding stale reference result for %s", name),
			"round", round.seq,
			"current_round", r.seq)
		return
	}

	r.loading[name] = false
	if err != nil {
		r.l.WarnContext(ctx, fmt.Sprintf("Failed to load reference data for %s", name),
			"locator", locator,
			"error", err)
		if r.cfg.Verbose {
			r.errs[name] = err.Error()
		} else {
			r.errs[name] = GenericReferenceError
		}
		return
	}
	r.items[name] = items
	delete(r.errs, name)
}

// settle must be called with mu held.
func (r *ReferenceLoader) settle(round *referenceRound) {
	round.pending--
	if round.pending > 0 {
		return
	}
	close(round.done)
	if round.cancel != nil {
		round.cancel()
	}
	if r.current == round {
		r.inFlight = false
	}
}

// sourceSignature renders a mapping in a canonical form so two mappings
// compare equal exactly when they hold the same pairs.
func sourceSignature(sources map[string]string) string {
	var b strings.Builder
	for _, name := range slices.Sorted(maps.Keys(sources)) {
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(sources[name])
		b.WriteByte('\n')
	}
	return b.String()
}
