package vfs

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrPermission              = errors.New("permission denied")
	ErrNotADirectory           = errors.New("not a directory")
	ErrIsDirectory             = errors.New("is a directory")
	ErrExists                  = errors.New("already exists")
	ErrConnection              = errors.New("connection error")
	ErrHostKeyMismatch         = errors.New("host key mismatch")
	ErrCyclicOperation         = errors.New("source and destination overlap")
	ErrUnsupportedCrossBackend = errors.New("operation not supported across backends")
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrNotFound, "not-found"},
	{ErrPermission, "permission"},
	{ErrNotADirectory, "not-a-directory"},
	{ErrIsDirectory, "is-a-directory"},
	{ErrExists, "exists"},
	{ErrHostKeyMismatch, "host-key-mismatch"},
	{ErrConnection, "connection"},
	{ErrCyclicOperation, "cyclic-operation"},
	{ErrUnsupportedCrossBackend, "cross-backend"},
}

// OpError records the operation and paths an error happened on.
type OpError struct {
	Op   string
	Path Path
	Dest Path // set for two-path operations
	Err  error
}

func (e *OpError) Error() string {
	if e.Dest != nil {
		return fmt.Sprintf("%s %s -> %s: %v", e.Op, Display(e.Path), Display(e.Dest), e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, Display(e.Path), e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Classify maps OS level errors onto the taxonomy. The original error stays
// in the chain.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return err
		}
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %w", ErrPermission, err)
	case errors.Is(err, fs.ErrExist):
		return fmt.Errorf("%w: %w", ErrExists, err)
	case errors.Is(err, syscall.ENOTDIR):
		return fmt.Errorf("%w: %w", ErrNotADirectory, err)
	case errors.Is(err, syscall.EISDIR):
		return fmt.Errorf("%w: %w", ErrIsDirectory, err)
	}
	return err
}

// KindOf returns a short label for status line rendering.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "error"
}
