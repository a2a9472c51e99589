package resolver

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCyclicInheritance = errors.New("cyclic inheritance")
	ErrMissingParent     = errors.New("missing parent")
)

// Error reports a failure to resolve a version's inheritance chain.
// Chain lists the ids on the resolution path, child first.
type Error struct {
	ID    string
	Chain []string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("resolve %q via %s: %v", e.ID, strings.Join(e.Chain, " -> "), e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
