// Package workflow implements the sentence and statement curation
// state machines as explicit transition tables: each row names its
// source states, target state, guard, permission predicate and side
// effect.
package workflow

import (
	"errors"
	"fmt"
)

// ErrConditionNotMet reports a transition that is structurally
// permitted but guarded out by missing data. Callers keep the current
// state and record a transition note.
var ErrConditionNotMet = errors.New("transition condition not met")

// ErrTransitionNotAllowed reports a transition with no table row from
// the current state, or one the user lacks permission for.
var ErrTransitionNotAllowed = errors.New("transition not allowed")

// ErrUserRequired reports a privileged operation attempted without a
// principal.
var ErrUserRequired = errors.New("user required")

func conditionErr(name string, err error) error {
	return fmt.Errorf("%w: %s: %s", ErrConditionNotMet, name, err)
}

func notAllowedErr(name, state string) error {
	return fmt.Errorf("%w: %s from state %s", ErrTransitionNotAllowed, name, state)
}
