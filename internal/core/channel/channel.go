// Package channel models graph state as a set of named channels. Each channel
// owns one state field and a reducer that folds node writes into it.
package channel

import (
	"fmt"
	"sort"
)

// Schema declares the channels a graph's state is made of.
// PRINCIPLES:
// - SRP: Only responsible for merging writes into state
// - KISS: A nil *Schema accepts any key and overwrites
type Schema struct {
	channels map[string]Reducer
	order    []string
}

// NewSchema creates an empty schema
func NewSchema() *Schema {
	return &Schema{channels: make(map[string]Reducer)}
}

// Add declares a channel. A nil reducer means replace.
func (s *Schema) Add(name string, reducer Reducer) error {
	if name == "" {
		return ErrInvalidChannelName
	}
	if _, exists := s.channels[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateChannel, name)
	}
	if reducer == nil {
		reducer = ReplaceReducer{}
	}
	s.channels[name] = reducer
	s.order = append(s.order, name)
	return nil
}

// Names returns channel names in declaration order
func (s *Schema) Names() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Reducer returns the reducer bound to name
func (s *Schema) Reducer(name string) (Reducer, bool) {
	if s == nil {
		return nil, false
	}
	r, ok := s.channels[name]
	return r, ok
}

// Apply folds update into state and returns the new state. The input map is
// not modified. Writes to undeclared channels fail with ErrUnknownChannel.
func (s *Schema) Apply(state, update map[string]interface{}) (map[string]interface{}, error) {
	result := make(map[string]interface{}, len(state)+len(update))
	for k, v := range state {
		result[k] = v
	}

	if s == nil {
		for k, v := range update {
			result[k] = v
		}
		return result, nil
	}

	var unknown []string
	for k := range update {
		if _, ok := s.channels[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: %v", ErrUnknownChannel, unknown)
	}

	for k, v := range update {
		result[k] = s.channels[k].Reduce(result[k], v)
	}
	return result, nil
}
