// Package validation provides schema validation for dagflow documents.
//
// It supports both struct tag validation (using the validator library) and
// programmatic validation with error collection. Tag validation covers field
// shapes; the collector covers cross-field rules such as "exactly one of".
//
// # Struct Tag Validation
//
//	type Edge struct {
//		From      string `validate:"required,nodeid"`
//		Condition string `validate:"omitempty,edgecond"`
//	}
//	err := validation.Struct(edge)
//
// # Programmatic Validation
//
//	v := validation.New()
//	v.Custom(uses != "" || run != "", "nodes[0]", "needs uses or run")
//	err := v.Validate()
package validation
