// Package errors provides structured error types for bf-wasm.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). An Error may carry the byte offset of the source character that
// caused it and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseValidate, errors.KindUnbalanced).
//		Offset(12).
//		Detail("unmatched %q", ']').
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Conflict("source map requires a source path")
//	err := errors.Unbalanced(12, "unmatched ']'")
//
// All errors implement the standard error interface and support errors.Is/As.
// errors.Is matches on Phase and Kind only:
//
//	if errors.Is(err, &errors.Error{Phase: errors.PhaseValidate, Kind: errors.KindUnbalanced}) {
//		...
//	}
package errors
