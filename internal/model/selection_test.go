package model

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestParseSelection(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		kind   SelectionKind
		ids    []string
		reason string
	}{
		{"empty", "   ", SelectionCancelled, nil, ""},
		{"cancel word", "Cancel", SelectionCancelled, nil, ""},
		{"quit", "q", SelectionCancelled, nil, ""},
		{"comma separated", "A1,B2, C3", SelectionSelected, []string{"A1", "B2", "C3"}, ""},
		{"newlines and duplicates", "A1\nB2\n\nA1\n", SelectionSelected, []string{"A1", "B2"}, ""},
		{"malformed", "A1,B/2", SelectionInvalid, nil, `malformed identifier "B/2"`},
		{"only separators", ",,;", SelectionInvalid, nil, "no identifiers"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sel := ParseSelection(tc.input)
			assert.Equal(t, tc.kind, sel.Kind)
			assert.Equal(t, tc.ids, sel.IDs)
			assert.Equal(t, tc.reason, sel.Reason)
		})
	}
}

func TestSelectionErr(t *testing.T) {
	assert.Nil(t, Selected([]string{"A"}).Err())
	assert.Nil(t, Cancelled().Err())

	err := Invalid("bad").Err()
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestSelectionReferences(t *testing.T) {
	refs := Selected([]string{"A", "B"}).References()
	assert.Equal(t, []DeviceReference{{ID: "A"}, {ID: "B"}}, refs)
}
