package ir

import (
	"errors"
	"fmt"
)

// Kind identifies an error category. Callers branch on Kind, never on
// message text.
type Kind string

const (
	// KindInvalidRecord: dangling dependency reference or missing field.
	// Recoverable by skipping the record below the configured threshold.
	KindInvalidRecord Kind = "INVALID_RECORD"

	// KindCyclicDependency: the dependency graph is not a DAG.
	KindCyclicDependency Kind = "CYCLIC_DEPENDENCY"

	// KindSealConfig: out-of-range strength, unknown operator or level.
	KindSealConfig Kind = "SEAL_CONFIG_ERROR"

	// KindCodebookAccessViolation: codebook content headed for a public path.
	KindCodebookAccessViolation Kind = "CODEBOOK_ACCESS_VIOLATION"

	// KindNonDeterministic: re-sealing identical input produced different bytes.
	KindNonDeterministic Kind = "NON_DETERMINISTIC_OUTPUT"

	// KindNoFeasiblePoint: no frontier point satisfies the utility floor.
	KindNoFeasiblePoint Kind = "NO_FEASIBLE_POINT"

	// KindCodebookExists: a codebook for this (dataset_version, seed) exists.
	KindCodebookExists Kind = "CODEBOOK_EXISTS"

	// KindNotFound: lookup miss.
	KindNotFound Kind = "NOT_FOUND"

	// KindInvalidBudget: budgets are negative or not strictly ascending.
	KindInvalidBudget Kind = "INVALID_BUDGET"

	// KindAliasCollision: aliases could not be made one-to-one with
	// canonical keys, either because the alias space is exhausted or because
	// two aliases name the same key.
	KindAliasCollision Kind = "ALIAS_COLLISION"
)

// Error is the structured error returned by sealing, audit and reporting.
type Error struct {
	// Kind identifies the error category.
	Kind Kind

	// Subject names the offending item (canonical key, alias, operator,
	// seed). It may be empty.
	Subject string

	// Message is a human-readable description.
	Message string

	// Details carries additional context.
	Details map[string]string

	// Cause is the wrapped error, if any.
	Cause error
}

func (e *Error) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Subject)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Errorf builds an *Error of the given kind.
func Errorf(kind Kind, subject, format string, args ...any) *Error {
	return &Error{Kind: kind, Subject: subject, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err (or anything it wraps) is an *Error of kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
