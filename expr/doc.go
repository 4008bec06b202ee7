// Package expr evaluates gate conditions.
//
// Conditions are HCL expressions evaluated against the run's context record:
//
//	ref == "main" && !draft
//	contains(labels, "deploy")
//	startswith(branch, "release/")
//
// Single-quoted string literals are accepted and rewritten to HCL's double
// quotes, and === / !== are read as == / !=, so conditions written for
// JavaScript-flavoured tools keep working. Failures carry one of three codes:
// EXPRESSION_SYNTAX when the text does not parse, EXPRESSION_RUNTIME when
// evaluation fails (for example an unknown variable) and EXPRESSION_TYPE when
// the result is not a boolean.
package expr
