package runtime

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// DecodeRecord converts a record into a struct using json tags, e.g. a
// login response into its typed form.
func DecodeRecord(r Record, target any) error {
	return mapToStruct(map[string]any(r), target, "json")
}

// mapToStructFromYAML decodes raw config values using yaml tags, the tags
// config structs are declared with.
func mapToStructFromYAML(m map[string]any, target any) error {
	return mapToStruct(m, target, "yaml")
}

// mapToStruct converts a map[string]any to a struct using mapstructure.
// It supports time.Duration and time.Time conversions.
func mapToStruct(m map[string]any, target any, tagName string) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: tagName,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
		WeaklyTypedInput: true, // Allow type coercion (e.g., "30" -> int, int -> float64)
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(m); err != nil {
		return fmt.Errorf("failed to decode map to struct: %w", err)
	}

	return nil
}
