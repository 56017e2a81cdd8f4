package agentgraph

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/flowgraph/agentgraph/internal/core/channel"
)

// schemaFor derives the channel schema of S. A non-struct state has no
// schema, so any key is accepted and overwritten.
func schemaFor[S any]() (*channel.Schema, error) {
	t := reflect.TypeOf((*S)(nil)).Elem()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, nil
	}

	schema := channel.NewSchema()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := channelName(f)
		if name == "" {
			continue
		}
		reducer, err := channel.NewReducer(channel.ReducerType(f.Tag.Get("reducer")))
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		if err := schema.Add(name, reducer); err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
	}
	return schema, nil
}

// requiredChannels lists the channels of S a run cannot start without: every
// field whose json tag does not say omitempty.
func requiredChannels[S any]() []string {
	t := reflect.TypeOf((*S)(nil)).Elem()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	var out []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := channelName(f)
		if !f.IsExported() || name == "" {
			continue
		}
		if _, opts, _ := strings.Cut(f.Tag.Get("json"), ","); strings.Contains(opts, "omitempty") {
			continue
		}
		out = append(out, name)
	}
	return out
}

// checkStarting builds the executor's check on a run's starting state. The
// state must decode into S and hold every required channel.
func checkStarting[S any](required []string) func(map[string]any) error {
	return func(state map[string]any) error {
		var s S
		var md mapstructure.Metadata
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			TagName:  "json",
			Metadata: &md,
			Result:   &s,
		})
		if err != nil {
			return err
		}
		if err := dec.Decode(state); err != nil {
			return err
		}
		unset := make(map[string]bool, len(md.Unset))
		for _, name := range md.Unset {
			unset[name] = true
		}
		var missing []string
		for _, name := range required {
			if unset[name] {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: %s", ErrMissingChannel, strings.Join(missing, ", "))
		}
		return nil
	}
}

func channelName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return ""
	}
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name
	}
	return f.Name
}

// decodeState copies a state map into out. Unknown keys and mismatched types
// fail.
func decodeState(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		ErrorUnused: true,
		Result:      out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

// encodeState flattens a typed state into a channel map.
func encodeState(state any) (map[string]any, error) {
	out := make(map[string]any)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  &out,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(state); err != nil {
		return nil, err
	}
	return out, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
