package cli

import (
	"errors"
	"fmt"
)

// ErrUsage marks errors caused by how the tool was invoked: bad flags,
// malformed config files, or refusing to overwrite output. main exits
// with a distinct status for these so scripts can tell them apart from
// pipeline failures.
var ErrUsage = errors.New("cli usage error")

type usageError struct {
	msg string
}

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

func (e usageError) Error() string { return e.msg }

func (e usageError) Is(target error) bool { return target == ErrUsage }
