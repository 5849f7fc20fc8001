package cmd

import (
	"testing"

	"github.com/metal-toolbox/devicesync/internal/activity"
	"github.com/metal-toolbox/devicesync/internal/model"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcomeError(t *testing.T) {
	testcases := []struct {
		state activity.State
		code  int
	}{
		{activity.StateCompleted, 0},
		{activity.StateFailed, 1},
		{activity.StateTimedOut, 2},
	}

	for _, tc := range testcases {
		t.Run(string(tc.state), func(t *testing.T) {
			err := outcomeError(&activity.Outcome{State: tc.state, ActivityID: "ACT-1", Checks: 60})
			if tc.code == 0 {
				assert.NoError(t, err)
				return
			}

			var exitErr *exitError
			if assert.True(t, errors.As(err, &exitErr)) {
				assert.Equal(t, tc.code, exitErr.code)
				assert.Contains(t, exitErr.Error(), "ACT-1")
			}
		})
	}
}

func TestReportOutcome(t *testing.T) {
	completed := &activity.Outcome{State: activity.StateCompleted, ActivityID: "ACT-1", Checks: 3}

	assert.NoError(t, reportOutcome(completed, nil))

	err := reportOutcome(completed, errors.Wrap(model.ErrPoll, "status 500"))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrPoll)

	assert.Error(t, reportOutcome(nil, nil))

	var exitErr *exitError
	err = reportOutcome(&activity.Outcome{State: activity.StateTimedOut, ActivityID: "ACT-1", Checks: 60}, nil)
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 2, exitErr.code)
}
