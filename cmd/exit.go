package cmd

import (
	"fmt"

	"github.com/metal-toolbox/devicesync/internal/activity"
	"github.com/pkg/errors"
)

// exitError ends the process with a specific exit code.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string {
	return e.msg
}

// outcomeError maps a monitored activity to the process exit status,
// nil for a completed activity.
func outcomeError(outcome *activity.Outcome) error {
	switch outcome.State {
	case activity.StateCompleted:
		return nil
	case activity.StateTimedOut:
		return &exitError{
			code: 2,
			msg:  fmt.Sprintf("activity %s still running after %d checks, re-query it later", outcome.ActivityID, outcome.Checks),
		}
	default:
		return &exitError{code: 1, msg: fmt.Sprintf("activity %s finished as %s", outcome.ActivityID, outcome.State)}
	}
}

// reportOutcome prints whatever outcome is known, then maps it to the exit status.
func reportOutcome(outcome *activity.Outcome, err error) error {
	if outcome != nil {
		if errPrint := printOutcome(outcome); errPrint != nil && err == nil {
			err = errPrint
		}
	}

	if err != nil {
		return err
	}

	if outcome == nil {
		return errors.New("no activity outcome")
	}

	return outcomeError(outcome)
}
