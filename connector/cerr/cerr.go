package cerr

import (
	"errors"
	"fmt"
)

var (
	ErrNotSupported = errors.New("not supported")
	ErrValidation   = errors.New("validation")
)

// ValidationErr formats a config validation error that matches ErrValidation.
func ValidationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
