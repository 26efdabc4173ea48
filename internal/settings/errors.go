package settings

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a settings error.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindSyntax
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not-found"
	case KindSyntax:
		return "syntax-error"
	case KindInvalid:
		return "schema-invalid"
	}
	return "unknown"
}

// Error is returned by Load, Parse and Validate.
type Error struct {
	Kind   Kind
	Path   string
	Issues []string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("settings")
	if e.Path != "" {
		fmt.Fprintf(&b, " %s", e.Path)
	}
	fmt.Fprintf(&b, ": %s", e.Kind)
	if len(e.Issues) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(e.Issues, "; "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is a settings *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == kind
}
