// Package channel provides state reduction functionality
package channel

import (
	"fmt"
	"reflect"
)

// Reducer folds a node's write into the current value of one state field.
// PRINCIPLES:
// - ISP: Interface segregation with single method
// - SRP: Single responsibility - value reduction
type Reducer interface {
	// Reduce combines the current value with an update
	Reduce(current, update interface{}) interface{}
	// Type names the reducer for schema introspection
	Type() ReducerType
}

// ReducerType represents the type of reducer
type ReducerType string

const (
	// ReducerTypeReplace keeps the last written value
	ReducerTypeReplace ReducerType = "replace"
	// ReducerTypeAppend appends values to lists
	ReducerTypeAppend ReducerType = "append"
	// ReducerTypeMerge merges map values
	ReducerTypeMerge ReducerType = "merge"
)

// NewReducer creates a reducer by type. An empty type selects replace.
func NewReducer(reducerType ReducerType) (Reducer, error) {
	switch reducerType {
	case "", ReducerTypeReplace:
		return ReplaceReducer{}, nil
	case ReducerTypeAppend:
		return AppendReducer{}, nil
	case ReducerTypeMerge:
		return MergeReducer{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownReducer, reducerType)
	}
}

// ReplaceReducer replaces values completely
type ReplaceReducer struct{}

// Reduce returns the update
func (ReplaceReducer) Reduce(_, update interface{}) interface{} { return update }

// Type implements Reducer
func (ReplaceReducer) Type() ReducerType { return ReducerTypeReplace }

// AppendReducer appends values to lists
// PRINCIPLES:
// - KISS: Simple append operation
// - SRP: Only handles list appending
type AppendReducer struct{}

// Type implements Reducer
func (AppendReducer) Type() ReducerType { return ReducerTypeAppend }

// Reduce appends update to current. A nil current takes the update as is.
func (AppendReducer) Reduce(current, update interface{}) interface{} {
	if current == nil {
		return update
	}
	if update == nil {
		return current
	}

	currentV := reflect.ValueOf(current)
	updateV := reflect.ValueOf(update)

	switch {
	case currentV.Kind() == reflect.Slice && updateV.Kind() == reflect.Slice:
		if currentV.Type() == updateV.Type() {
			return reflect.AppendSlice(currentV, updateV).Interface()
		}
		return append(toInterfaces(currentV), toInterfaces(updateV)...)
	case currentV.Kind() == reflect.Slice:
		if updateV.Type().AssignableTo(currentV.Type().Elem()) {
			return reflect.Append(currentV, updateV).Interface()
		}
		return append(toInterfaces(currentV), update)
	case updateV.Kind() == reflect.Slice:
		return append([]interface{}{current}, toInterfaces(updateV)...)
	default:
		return []interface{}{current, update}
	}
}

// toInterfaces copies a slice value into a fresh []interface{}.
func toInterfaces(v reflect.Value) []interface{} {
	out := make([]interface{}, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		out = append(out, v.Index(i).Interface())
	}
	return out
}

// MergeReducer merges map values, recursing into nested maps.
type MergeReducer struct{}

// Type implements Reducer
func (MergeReducer) Type() ReducerType { return ReducerTypeMerge }

// Reduce merges update into current when both are maps; otherwise the update wins.
func (r MergeReducer) Reduce(current, update interface{}) interface{} {
	currentMap, ok := current.(map[string]interface{})
	if !ok {
		return update
	}
	updateMap, ok := update.(map[string]interface{})
	if !ok {
		return update
	}

	merged := make(map[string]interface{}, len(currentMap)+len(updateMap))
	for k, v := range currentMap {
		merged[k] = v
	}
	for k, v := range updateMap {
		if existing, exists := merged[k]; exists {
			merged[k] = r.Reduce(existing, v)
		} else {
			merged[k] = v
		}
	}
	return merged
}
