package runtime

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/Jeffail/gabs/v2"
)

var (
	ErrIndexOutOfRange = errors.New("entry index out of range")
	ErrNotAnArray      = errors.New("field is not an entry list")
)

// Record is the open-ended form data shared by every step of a wizard.
// Values are scalars, nested maps or []any for repeatable sub-sections.
//
// Records are treated as immutable: every operation returns a new Record
// and leaves the receiver untouched.
type Record map[string]any

// Clone deep-copies the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = deepCopy(v)
	}
	return out
}

// Merge returns a copy of r with every key of partial written over it.
func (r Record) Merge(partial Record) Record {
	out := r.Clone()
	for k, v := range partial {
		out[k] = deepCopy(v)
	}
	return out
}

// Get resolves a dotted path such as "priceComponents.0.bedrag".
func (r Record) Get(path string) (any, bool) {
	if r == nil || path == "" {
		return nil, false
	}
	if v, ok := r[path]; ok {
		return v, true
	}
	c := r.container()
	if !c.ExistsP(path) {
		return nil, false
	}
	return c.Path(path).Data(), true
}

// SetPath writes value at a dotted path, creating intermediate objects.
func (r Record) SetPath(path string, value any) (Record, error) {
	out := r.Clone()
	c := gabs.Wrap(map[string]any(out))
	if _, err := c.SetP(deepCopy(value), path); err != nil {
		return r, fmt.Errorf("set %s: %w", path, err)
	}
	return out, nil
}

// String renders a field as text, the way a bound input would show it.
func (r Record) String(name string) string {
	v, ok := r.Get(name)
	if !ok {
		return ""
	}
	return formatValue(v)
}

// Entries returns the repeatable sub-section stored under field.
func (r Record) Entries(field string) []any {
	switch v := r[field].(type) {
	case []any:
		return v
	case []map[string]any:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out
	default:
		return nil
	}
}

// AppendEntry adds entry to the end of the list stored under field. A
// missing field becomes a one-element list.
func (r Record) AppendEntry(field string, entry map[string]any) (Record, error) {
	out := r.Clone()
	if err := out.checkList(field, true); err != nil {
		return r, err
	}
	c := gabs.Wrap(map[string]any(out))
	if entry == nil {
		entry = map[string]any{}
	}
	if err := c.ArrayAppend(deepCopy(entry), field); err != nil {
		return r, fmt.Errorf("append %s: %w", field, err)
	}
	return out, nil
}

// UpdateEntry sets key on the entry at index within the list stored under field.
func (r Record) UpdateEntry(field string, index int, key string, value any) (Record, error) {
	out := r.Clone()
	if err := out.checkList(field, false); err != nil {
		return r, err
	}
	c := gabs.Wrap(map[string]any(out))
	count, err := c.ArrayCount(field)
	if err != nil {
		return r, fmt.Errorf("%s: %w", field, ErrNotAnArray)
	}
	if index < 0 || index >= count {
		return r, fmt.Errorf("%s[%d]: %w", field, index, ErrIndexOutOfRange)
	}

	element, err := c.ArrayElement(index, field)
	if err != nil {
		return r, fmt.Errorf("%s[%d]: %w", field, index, err)
	}
	entry, ok := element.Data().(map[string]any)
	if !ok {
		entry = map[string]any{}
	}
	entry[key] = deepCopy(value)
	if _, err := c.Search(field).SetIndex(entry, index); err != nil {
		return r, fmt.Errorf("%s[%d]: %w", field, index, err)
	}
	return out, nil
}

// RemoveEntry splices the entry at index out of the list stored under field.
func (r Record) RemoveEntry(field string, index int) (Record, error) {
	out := r.Clone()
	if err := out.checkList(field, false); err != nil {
		return r, err
	}
	c := gabs.Wrap(map[string]any(out))
	count, err := c.ArrayCount(field)
	if err != nil {
		return r, fmt.Errorf("%s: %w", field, ErrNotAnArray)
	}
	if index < 0 || index >= count {
		return r, fmt.Errorf("%s[%d]: %w", field, index, ErrIndexOutOfRange)
	}
	if err := c.ArrayRemove(index, field); err != nil {
		return r, fmt.Errorf("remove %s[%d]: %w", field, index, err)
	}
	return out, nil
}

func (r Record) checkList(field string, allowMissing bool) error {
	v, ok := r[field]
	if !ok || v == nil {
		if allowMissing {
			return nil
		}
		return fmt.Errorf("%s: %w", field, ErrNotAnArray)
	}
	if _, ok := v.([]any); !ok {
		return fmt.Errorf("%s: %w", field, ErrNotAnArray)
	}
	return nil
}

func (r Record) container() *gabs.Container {
	return gabs.Wrap(map[string]any(r))
}

// deepCopy clones maps and slices so records never share mutable state.
// Typed slices of maps are normalized to []any.
func deepCopy(value any) any {
	switch typed := value.(type) {
	case Record:
		return map[string]any(typed.Clone())
	case map[string]any:
		clone := make(map[string]any, len(typed))
		for k, v := range typed {
			clone[k] = deepCopy(v)
		}
		return clone
	case []any:
		clone := make([]any, len(typed))
		for i, v := range typed {
			clone[i] = deepCopy(v)
		}
		return clone
	case []map[string]any:
		clone := make([]any, len(typed))
		for i, v := range typed {
			clone[i] = deepCopy(v)
		}
		return clone
	case []string:
		return append([]string(nil), typed...)
	default:
		return typed
	}
}

func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
