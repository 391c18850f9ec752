package dal

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrNotImplemented   = errors.New("not implemented")
	ErrNoTable          = errors.New("no table attached to model")
	ErrUnknownAttribute = errors.New("unknown attribute")
	ErrUnknownBackend   = errors.New("unknown backend")
	ErrBackendExists    = errors.New("backend already registered")
)

// NotFoundError is returned when a model or an instance does not exist.
type NotFoundError struct {
	Kind string // "model" or "instance"
	Name string
	Key  any
}

func (e *NotFoundError) Error() string {
	if e.Key != nil {
		return fmt.Sprintf("%s %s %v: %s", e.Kind, e.Name, e.Key, ErrNotFound)
	}
	return fmt.Sprintf("%s %s: %s", e.Kind, e.Name, ErrNotFound)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// IsNotFound reports whether err is, or wraps, a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// NotImplementedError names the backend and operation that is not available.
type NotImplementedError struct {
	Backend   string
	Operation string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("%s backend: %s: %s", e.Backend, e.Operation, ErrNotImplemented)
}

func (e *NotImplementedError) Is(target error) bool {
	return target == ErrNotImplemented
}
