package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate is the shared validator instance with the custom rules registered.
var Validate *validator.Validate

var (
	nodeIDPattern      = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	channelNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

func init() {
	Validate = validator.New(validator.WithRequiredStructEnabled())

	_ = Validate.RegisterValidation("node_id", validateNodeID)
	_ = Validate.RegisterValidation("channel_name", validateChannelName)

	// Use JSON (or YAML) tags for field names so errors match the wire format.
	Validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		tag := fld.Tag.Get("json")
		if tag == "" {
			tag = fld.Tag.Get("yaml")
		}
		name := strings.SplitN(tag, ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
}

// formatValidationErrors converts validator errors to our custom format
func formatValidationErrors(err error) error {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err
	}

	out := make(ValidationErrors, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		out = append(out, ValidationError{
			Field:   fieldPath(fe),
			Value:   fe.Value(),
			Message: getErrorMessage(fe),
		})
	}
	return out
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

// getErrorMessage returns a human-readable error message
func getErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "min":
		return fmt.Sprintf("minimum value/length is %s", fe.Param())
	case "max":
		return fmt.Sprintf("maximum value/length is %s", fe.Param())
	case "hostname_port":
		return "must be host:port"
	case "node_id":
		return "must be a valid node identifier (alphanumeric, underscore, hyphen)"
	case "channel_name":
		return "must be a lowercase identifier"
	default:
		return fmt.Sprintf("validation failed: %s", fe.Tag())
	}
}

func validateNodeID(fl validator.FieldLevel) bool {
	id := fl.Field().String()
	return len(id) <= 100 && nodeIDPattern.MatchString(id)
}

func validateChannelName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	return len(name) <= 50 && channelNamePattern.MatchString(name)
}

// IsNodeID reports whether id satisfies the node_id rule.
func IsNodeID(id string) bool {
	return len(id) <= 100 && nodeIDPattern.MatchString(id)
}
