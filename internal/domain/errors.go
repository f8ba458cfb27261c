// Package domain defines core types, ports, and errors for the rewrite
// verification pipeline.
package domain

import "fmt"

// ParseError indicates the original SQL could not be decomposed into a
// dependency graph. Unrecoverable for that query.
type ParseError struct {
	Message string
}

func (e *ParseError) Error() string { return e.Message }

// AmbiguousColumnError indicates an output column list could not be
// determined (SELECT * with unknown upstream schema and no hints).
type AmbiguousColumnError struct {
	Message string
}

func (e *AmbiguousColumnError) Error() string { return e.Message }

// StructuralValidationError indicates a candidate failed the static
// (execution-free) correctness rules.
type StructuralValidationError struct {
	Rule    string // violated rule, surfaced as retry feedback
	Message string
}

func (e *StructuralValidationError) Error() string { return e.Message }

// SemanticValidationError indicates a candidate produced a result set that
// differs from the original's.
type SemanticValidationError struct {
	Delta   string // observed row/column delta, surfaced as retry feedback
	Message string
}

func (e *SemanticValidationError) Error() string { return e.Message }

// ExecutionTimeout indicates a statement exceeded its per-statement
// deadline. Kept distinct from all other failures so a slow candidate is
// classified ERROR, never REGRESSION.
type ExecutionTimeout struct {
	Message string
}

func (e *ExecutionTimeout) Error() string { return e.Message }

// GeneratorFailure indicates a generator call produced no usable output
// (empty or malformed response, transport error, cancelled deadline).
type GeneratorFailure struct {
	Message string
}

func (e *GeneratorFailure) Error() string { return e.Message }

// ErrParse creates a ParseError with a formatted message.
func ErrParse(format string, args ...interface{}) *ParseError {
	return &ParseError{Message: fmt.Sprintf(format, args...)}
}

// ErrAmbiguousColumn creates an AmbiguousColumnError with a formatted message.
func ErrAmbiguousColumn(format string, args ...interface{}) *AmbiguousColumnError {
	return &AmbiguousColumnError{Message: fmt.Sprintf(format, args...)}
}

// ErrStructural creates a StructuralValidationError for the given rule.
func ErrStructural(rule, format string, args ...interface{}) *StructuralValidationError {
	return &StructuralValidationError{Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// ErrSemantic creates a SemanticValidationError carrying the observed delta.
func ErrSemantic(delta, format string, args ...interface{}) *SemanticValidationError {
	return &SemanticValidationError{Delta: delta, Message: fmt.Sprintf(format, args...)}
}

// ErrTimeout creates an ExecutionTimeout with a formatted message.
func ErrTimeout(format string, args ...interface{}) *ExecutionTimeout {
	return &ExecutionTimeout{Message: fmt.Sprintf(format, args...)}
}

// ErrGenerator creates a GeneratorFailure with a formatted message.
func ErrGenerator(format string, args ...interface{}) *GeneratorFailure {
	return &GeneratorFailure{Message: fmt.Sprintf(format, args...)}
}
