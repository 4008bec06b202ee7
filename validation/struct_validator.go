package validation

import (
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"github.com/kbukum/dagflow/errors"
)

// NodeIDPattern is the grammar every node id must match.
var NodeIDPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// EdgeConditions lists the legal values of an edge condition.
var EdgeConditions = []string{"always", "expr", "never"}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var (
	validate *validator.Validate
	once     sync.Once
)

// getValidator returns the singleton validator instance.
func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// Use json tag names for field names in error messages
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return toSnakeCase(fld.Name)
			}
			return name
		})

		_ = validate.RegisterValidation("nodeid", func(fl validator.FieldLevel) bool {
			return IsNodeID(fl.Field().String())
		})
		_ = validate.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
			return IsCron(fl.Field().String())
		})
		_ = validate.RegisterValidation("edgecond", func(fl validator.FieldLevel) bool {
			return IsEdgeCondition(fl.Field().String())
		})
	})
	return validate
}

// IsNodeID reports whether s is a legal node id.
func IsNodeID(s string) bool {
	return NodeIDPattern.MatchString(s)
}

// IsCron reports whether s is a five-field cron expression or a descriptor
// such as "@daily".
func IsCron(s string) bool {
	_, err := cronParser.Parse(s)
	return err == nil
}

// ParseCron parses a schedule trigger expression.
func ParseCron(s string) (cron.Schedule, error) {
	return cronParser.Parse(s)
}

// IsEdgeCondition reports whether s is one of EdgeConditions.
func IsEdgeCondition(s string) bool {
	for _, c := range EdgeConditions {
		if s == c {
			return true
		}
	}
	return false
}

// Struct validates a struct using struct tags.
// Uses tags like `validate:"required,nodeid,max=100"`.
func Struct(s any) error {
	v := getValidator()
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.InvalidGraph("validation failed").WithCause(err)
	}

	// Build detailed error message
	fieldErrors := make([]FieldError, 0, len(validationErrors))
	messages := make([]string, 0, len(validationErrors))

	for _, e := range validationErrors {
		fieldName := fieldPath(e)
		message := formatValidationError(e)
		fieldErrors = append(fieldErrors, FieldError{
			Field:   fieldName,
			Message: message,
		})
		messages = append(messages, fieldName+": "+message)
	}

	return errors.InvalidGraph(strings.Join(messages, "; ")).
		WithDetail("fields", fieldErrors)
}

// fieldPath drops the root type name from the namespace, so
// "Graph.nodes[0].id" becomes "nodes[0].id".
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return toSnakeCase(e.Field())
}

// formatValidationError creates a human-readable error message.
func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		if e.Kind() == reflect.Slice || e.Kind() == reflect.Map {
			return "must have at least " + e.Param() + " entries"
		}
		if e.Kind() == reflect.String {
			return "must be at least " + e.Param() + " characters"
		}
		return "must be at least " + e.Param()
	case "max":
		if e.Kind() == reflect.String {
			return "must be at most " + e.Param() + " characters"
		}
		return "must be at most " + e.Param()
	case "gt":
		return "must be greater than " + e.Param()
	case "oneof":
		return "must be one of: " + e.Param()
	case "semver":
		return "must be a semantic version"
	case "nodeid":
		return "must match " + NodeIDPattern.String()
	case "cron":
		return "must be a valid cron expression"
	case "edgecond":
		return "must be one of: " + strings.Join(EdgeConditions, ", ")
	default:
		return "is invalid"
	}
}

// toSnakeCase converts a field name to snake_case.
func toSnakeCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result.WriteRune('_')
		}
		if r >= 'A' && r <= 'Z' {
			result.WriteRune(r + 32) // lowercase
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
