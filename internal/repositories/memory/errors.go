package memory

import "fmt"

type storeError struct {
	op       string
	msg      string
	notFound bool
	conflict bool
}

func (e *storeError) Error() string       { return fmt.Sprintf("%s: %s", e.op, e.msg) }
func (e *storeError) IsNotFound() bool    { return e.notFound }
func (e *storeError) IsConflict() bool    { return e.conflict }
func (e *storeError) IsUnavailable() bool { return false }

func notFound(op, id string) error {
	return &storeError{op: op, msg: fmt.Sprintf("%s not found", id), notFound: true}
}

func conflict(op, id string) error {
	return &storeError{op: op, msg: fmt.Sprintf("%s already exists", id), conflict: true}
}
