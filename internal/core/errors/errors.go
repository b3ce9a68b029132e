package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a load failure. The orchestrator reports it verbatim.
type Kind string

const (
	KindConnection   Kind = "ConnectionError"
	KindDependency   Kind = "DependencyViolation"
	KindConstraint   Kind = "ConstraintConflict"
	KindSchemaDrift  Kind = "SchemaDriftError"
	KindMalformedRow Kind = "MalformedRow"
	KindUnknown      Kind = "Unknown"
)

// Sentinels for errors.Is matching against a Kind.
var (
	ErrConnection   = errors.New("connection error")
	ErrDependency   = errors.New("dependency violation")
	ErrConstraint   = errors.New("constraint conflict")
	ErrSchemaDrift  = errors.New("schema drift")
	ErrMalformedRow = errors.New("malformed row")

	// ErrRunInProgress is returned when another run holds the warehouse run lock.
	ErrRunInProgress = errors.New("another load run is in progress")
)

var sentinels = map[Kind]error{
	KindConnection:   ErrConnection,
	KindDependency:   ErrDependency,
	KindConstraint:   ErrConstraint,
	KindSchemaDrift:  ErrSchemaDrift,
	KindMalformedRow: ErrMalformedRow,
}

// Error is a classified load failure.
// Entity and NaturalKey identify the offending source row when known.
type Error struct {
	Kind       Kind
	Entity     string
	NaturalKey string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Entity != "" {
		msg += fmt.Sprintf(" [%s", e.Entity)
		if e.NaturalKey != "" {
			msg += "=" + e.NaturalKey
		}
		msg += "]"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's Kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// New creates a classified error wrapping err.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Connection marks err as a store being unreachable.
func Connection(store string, err error) *Error {
	return &Error{Kind: KindConnection, Entity: store, Err: err}
}

// Dependency reports that entity naturalKey references a key missing from a dimension.
func Dependency(entity string, naturalKey any, message string) *Error {
	return &Error{
		Kind:       KindDependency,
		Entity:     entity,
		NaturalKey: fmt.Sprint(naturalKey),
		Message:    message,
	}
}

// Malformed reports a candidate row that cannot be applied.
func Malformed(entity string, naturalKey any, message string) *Error {
	return &Error{
		Kind:       KindMalformedRow,
		Entity:     entity,
		NaturalKey: fmt.Sprint(naturalKey),
		Message:    message,
	}
}

// SchemaDrift reports missing columns or tables.
func SchemaDrift(store string, missing []string) *Error {
	return &Error{
		Kind:    KindSchemaDrift,
		Entity:  store,
		Message: fmt.Sprintf("missing %v", missing),
	}
}

// KindOf returns the Kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
