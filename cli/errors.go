package cli

import (
	"errors"
	"fmt"
)

// Process statuses returned by the commands.
const (
	StatusSuccess = 0
	StatusFailure = 1
	StatusInvalid = 2
)

// ExitError carries a process status out of a RunE handler.
type ExitError struct {
	Code int
	Err  error
	// reported is set when the command already told the user what went wrong.
	reported bool
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// invalid marks err as an already reported invalid-status outcome.
func invalid(err error) *ExitError {
	return &ExitError{Code: StatusInvalid, Err: err, reported: true}
}

// ExitCode maps an Execute error to a process status.
func ExitCode(err error) int {
	if err == nil {
		return StatusSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return StatusFailure
}
