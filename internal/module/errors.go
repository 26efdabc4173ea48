package module

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindImport                   Kind = "import"
	KindSchema                   Kind = "schema"
	KindInvalidID                Kind = "invalid-id"
	KindReservedNamespace        Kind = "reserved-namespace"
	KindUsedAPIMismatch          Kind = "used-api-mismatch"
	KindDuplicateID              Kind = "duplicate-id"
	KindLoadAlreadyDefined       Kind = "load-already-defined"
	KindSaveAlreadyDefined       Kind = "save-already-defined"
	KindCapabilityAlreadyDefined Kind = "capability-already-defined"
	KindInvalidCapability        Kind = "invalid-capability"
)

// Error is a resolution failure attributed to one configured identifier.
// ID is the module's declared id when it is known.
type Error struct {
	Kind   Kind
	Module string
	ID     string
	Err    error
}

func (e *Error) Error() string {
	subject := e.Module
	if e.ID != "" && e.ID != e.Module {
		subject = fmt.Sprintf("%s (%s)", e.Module, e.ID)
	}
	if e.Err == nil {
		return fmt.Sprintf("module %s: %s", subject, e.Kind)
	}
	return fmt.Sprintf("module %s: %s: %v", subject, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err wraps a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var me *Error
	return errors.As(err, &me) && me.Kind == kind
}
