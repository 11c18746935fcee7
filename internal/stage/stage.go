// SPDX-License-Identifier: MPL-2.0

// Package stage parses the ordered stage lists that describe a layered image.
//
// A stage list is a comma-separated sequence of tokens. Each token is either
// "group", meaning target "group" inside Definition.group, or "group:stage",
// meaning target "stage" inside Definition.group. List order is build order.
package stage

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// ListSeparator separates tokens in a stage list.
	ListSeparator = ","
	// GroupSeparator separates the group from the stage inside a token.
	GroupSeparator = ":"
)

// ErrMalformedStageToken is the sentinel error wrapped by MalformedStageTokenError.
var ErrMalformedStageToken = errors.New("malformed stage token")

type (
	// Spec names one build stage: the definition file group and the target
	// inside it. Group and Stage are equal for single-stage definitions.
	Spec struct {
		Group string
		Stage string
	}

	// MalformedStageTokenError is returned when a token has more than one
	// separator or an empty side around the separator.
	MalformedStageTokenError struct {
		Token  string
		Reason string
	}
)

// Error implements the error interface.
func (e *MalformedStageTokenError) Error() string {
	return fmt.Sprintf("malformed stage token %q: %s", e.Token, e.Reason)
}

// Unwrap returns ErrMalformedStageToken so callers can use errors.Is for programmatic detection.
func (e *MalformedStageTokenError) Unwrap() error { return ErrMalformedStageToken }

// String renders the spec in its token form: "stage" when group and stage
// coincide, "group:stage" otherwise.
func (s Spec) String() string {
	if s.Group == s.Stage {
		return s.Stage
	}
	return s.Group + GroupSeparator + s.Stage
}

// IsMultiStage reports whether the spec selects one of several targets in its
// definition file.
func (s Spec) IsMultiStage() bool { return s.Group != s.Stage }

// Parse splits a stage list into specs, preserving order and duplicates.
//
// The empty string yields an empty, non-nil list. Empty tokens such as the
// middle of "a,,b" are kept as a zero Spec; they are rejected later when the
// definition file for the empty group cannot be found.
func Parse(list string) ([]Spec, error) {
	if list == "" {
		return []Spec{}, nil
	}

	tokens := strings.Split(list, ListSeparator)
	specs := make([]Spec, 0, len(tokens))
	for _, token := range tokens {
		spec, err := ParseToken(token)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// ParseToken parses a single "group" or "group:stage" token.
func ParseToken(token string) (Spec, error) {
	switch strings.Count(token, GroupSeparator) {
	case 0:
		return Spec{Group: token, Stage: token}, nil
	case 1:
		group, stage, _ := strings.Cut(token, GroupSeparator)
		if group == "" || stage == "" {
			return Spec{}, &MalformedStageTokenError{Token: token, Reason: "group and stage must both be non-empty"}
		}
		return Spec{Group: group, Stage: stage}, nil
	default:
		return Spec{}, &MalformedStageTokenError{Token: token, Reason: "expected at most one ':'"}
	}
}

// Join renders specs back into a stage list. For lists without empty tokens
// Join(Parse(s)) == s.
func Join(specs []Spec) string {
	tokens := make([]string, len(specs))
	for i, s := range specs {
		tokens[i] = s.String()
	}
	return strings.Join(tokens, ListSeparator)
}
