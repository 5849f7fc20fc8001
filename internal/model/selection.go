package model

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

type SelectionKind int

const (
	SelectionCancelled SelectionKind = iota
	SelectionInvalid
	SelectionSelected
)

func (k SelectionKind) String() string {
	switch k {
	case SelectionCancelled:
		return "cancelled"
	case SelectionInvalid:
		return "invalid"
	case SelectionSelected:
		return "selected"
	default:
		return "unknown"
	}
}

// Selection is the outcome of parsing a user supplied identifier list.
// Reason is set for SelectionInvalid, IDs for SelectionSelected.
type Selection struct {
	Kind   SelectionKind
	Reason string
	IDs    []string
}

func Cancelled() Selection {
	return Selection{Kind: SelectionCancelled}
}

func Invalid(reason string) Selection {
	return Selection{Kind: SelectionInvalid, Reason: reason}
}

func Selected(ids []string) Selection {
	return Selection{Kind: SelectionSelected, IDs: ids}
}

// Err returns ErrValidation wrapped with the reason for invalid selections,
// nil otherwise.
func (s Selection) Err() error {
	if s.Kind != SelectionInvalid {
		return nil
	}

	return errors.Wrap(ErrValidation, s.Reason)
}

// References converts selected ids to device references.
func (s Selection) References() []DeviceReference {
	refs := make([]DeviceReference, 0, len(s.IDs))
	for _, id := range s.IDs {
		refs = append(refs, DeviceReference{ID: id})
	}

	return refs
}

var cancelWords = map[string]bool{
	"cancel": true,
	"q":      true,
	"quit":   true,
}

// ParseSelection parses ids separated by commas, whitespace or newlines.
func ParseSelection(input string) Selection {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" || cancelWords[strings.ToLower(trimmed)] {
		return Cancelled()
	}

	tokens := strings.FieldsFunc(trimmed, func(r rune) bool {
		return r == ',' || r == ';' || unicode.IsSpace(r)
	})

	seen := make(map[string]bool, len(tokens))
	ids := make([]string, 0, len(tokens))

	for _, tok := range tokens {
		if !ValidIdentifier(tok) {
			return Invalid(fmt.Sprintf("malformed identifier %q", tok))
		}

		if seen[tok] {
			continue
		}

		seen[tok] = true
		ids = append(ids, tok)
	}

	if len(ids) == 0 {
		return Invalid("no identifiers")
	}

	return Selected(ids)
}

// ValidIdentifier reports whether s is a non empty vendor identifier made of
// letters, digits and . _ : -
func ValidIdentifier(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '_', r == ':', r == '-':
		default:
			return false
		}
	}

	return s != ""
}
