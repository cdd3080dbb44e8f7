package propagation

import (
	"github.com/go-faster/errors"

	"github.com/iota-uz/profile-projection/modules/projection/domain"
)

type LookupStatus int

const (
	LookupFound LookupStatus = iota
	LookupEmpty
	LookupNotFound
	LookupFault
)

func (s LookupStatus) String() string {
	switch s {
	case LookupFound:
		return "found"
	case LookupEmpty:
		return "empty"
	case LookupNotFound:
		return "not_found"
	case LookupFault:
		return "fault"
	default:
		return "unknown"
	}
}

// Lookup is the outcome of a repository read whose failure the caller may
// choose to tolerate.
type Lookup[T any] struct {
	Value  T
	Status LookupStatus
	Err    error
}

// OrDefault returns the value, which is the zero value unless Status is LookupFound.
func (l Lookup[T]) OrDefault() T {
	return l.Value
}

// Must converts a fault back into an error for call sites that cannot
// tolerate it. NotFound and Empty are not errors.
func (l Lookup[T]) Must() (T, error) {
	if l.Status == LookupFault {
		var zero T
		return zero, l.Err
	}
	return l.Value, nil
}

func lookupSlice[T any](items []T, err error) Lookup[[]T] {
	switch {
	case err != nil && errors.Is(err, domain.ErrNotFound):
		return Lookup[[]T]{Status: LookupNotFound, Err: err}
	case err != nil:
		return Lookup[[]T]{Status: LookupFault, Err: err}
	case len(items) == 0:
		return Lookup[[]T]{Status: LookupEmpty}
	default:
		return Lookup[[]T]{Value: items, Status: LookupFound}
	}
}
