package container

import (
	"fmt"
	"strings"

	"github.com/juju/errors"
)

const (
	// ErrNotFound matches every *NotFoundError under errors.Is.
	ErrNotFound = errors.NotFound

	// ErrCyclicResolution matches every *CyclicResolutionError under errors.Is.
	ErrCyclicResolution = errors.ConstError("cyclic resolution")
)

// NotFoundError is returned when an identifier has neither a deferred entry
// nor a definition.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("container: service %q not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// CyclicResolutionError is returned when an identifier is requested while it
// is already being resolved on the same chain, or when two chains end up
// waiting on each other.
type CyclicResolutionError struct {
	// Path lists the identifiers on the chain, ending with the one that
	// re-entered.
	Path []string
}

func (e *CyclicResolutionError) Error() string {
	return "container: cyclic resolution: " + strings.Join(e.Path, " -> ")
}

func (e *CyclicResolutionError) Is(target error) bool { return target == ErrCyclicResolution }
