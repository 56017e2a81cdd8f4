package validation

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Decode copies a loosely typed map into dst, keyed by json tags. Unknown
// keys are rejected so a typo in a configurable never passes silently.
func Decode(input map[string]interface{}, dst interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		ErrorUnused:      true,
		WeaklyTypedInput: false,
		Result:           dst,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// DecodeConfig decodes input into dst and validates the result.
func DecodeConfig(input map[string]interface{}, dst interface{}) error {
	if err := Decode(input, dst); err != nil {
		return err
	}
	return ValidateStruct(dst)
}
