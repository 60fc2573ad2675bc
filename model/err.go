package model

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateToken     = errors.New("duplicate token")
	ErrUnknownToken       = errors.New("unknown token")
	ErrTransientTransport = errors.New("transient transport error")
	ErrPermanentTransport = errors.New("permanent transport error")
	ErrTokenExpired       = errors.New("token expired")
	ErrPermanentlyFailed  = errors.New("permanently failed")
	ErrShutdownIncomplete = errors.New("shutdown incomplete")
	ErrClosed             = errors.New("acknowledger closed")
)

type ErrorKind uint8

const (
	ErrorKindTransient ErrorKind = iota
	ErrorKindPermanent
	ErrorKindExpired
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindTransient:
		return "transient"
	case ErrorKindPermanent:
		return "permanent"
	case ErrorKindExpired:
		return "expired"
	}
	return "unknown"
}

// Err returns the sentinel error of the kind.
func (k ErrorKind) Err() error {
	switch k {
	case ErrorKindPermanent:
		return ErrPermanentTransport
	case ErrorKindExpired:
		return ErrTokenExpired
	default:
		return ErrTransientTransport
	}
}

// Retryable reports whether ids failed with this kind may be dispatched again.
func (k ErrorKind) Retryable() bool {
	return k == ErrorKindTransient
}

func Transient(err error) error {
	return wrap(ErrTransientTransport, err)
}

func Permanent(err error) error {
	return wrap(ErrPermanentTransport, err)
}

func Expired(err error) error {
	return wrap(ErrTokenExpired, err)
}

func wrap(sentinel, err error) error {
	if err == nil {
		return sentinel
	}
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// KindOf classifies a transport error. Anything not explicitly permanent or
// expired is retried, including context deadlines of a single call.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return ErrorKindExpired
	case errors.Is(err, ErrPermanentTransport):
		return ErrorKindPermanent
	default:
		return ErrorKindTransient
	}
}
