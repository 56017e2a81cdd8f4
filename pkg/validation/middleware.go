package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// MaxRequestBytes bounds request bodies read by DecodeRequest.
const MaxRequestBytes = 1 << 20

// ErrMalformedRequest marks a body that is not valid JSON for the target type.
var ErrMalformedRequest = errors.New("malformed request body")

// DecodeRequest decodes a JSON body into dst and validates it. An empty body
// leaves dst at its zero value. Malformed JSON yields ErrMalformedRequest;
// rule violations yield ValidationErrors.
func DecodeRequest(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, MaxRequestBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	return ValidateStruct(dst)
}

// WriteErrors writes a validation error response.
func WriteErrors(w http.ResponseWriter, status int, errs ValidationErrors) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	body, err := MarshalValidationErrors(errs)
	if err != nil {
		_, _ = w.Write([]byte(`{"errors":[{"field":"response","message":"failed to marshal error response"}],"count":1}`))
		return
	}
	_, _ = w.Write(body)
}

// AsErrors flattens err into ValidationErrors for a response body.
func AsErrors(err error, field string) ValidationErrors {
	var verrs ValidationErrors
	if errors.As(err, &verrs) {
		return verrs
	}
	var verr ValidationError
	if errors.As(err, &verr) {
		return ValidationErrors{verr}
	}
	return ValidationErrors{{Field: field, Message: err.Error()}}
}
