package listctl

import (
	"context"
	"errors"
	"strings"
)

// ErrConfirmationRequired is returned by Perform when the confirmer has no
// answer yet. HTTP handlers respond by rendering a confirmation page.
var ErrConfirmationRequired = errors.New("confirmation required")

// Decision is the answer to a confirmation prompt.
type Decision int

const (
	DecisionPending Decision = iota
	DecisionAccept
	DecisionCancel
)

// ConfirmField is the form field carrying a confirmation answer.
const ConfirmField = "confirm"

// ParseDecision reads a confirmation answer posted by a form.
func ParseDecision(raw string) Decision {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "accept", "true":
		return DecisionAccept
	case "no", "cancel", "false":
		return DecisionCancel
	default:
		return DecisionPending
	}
}

// ActionKind classifies a mutation.
type ActionKind string

const (
	ActionDelete ActionKind = "delete"
	ActionStatus ActionKind = "status"
	ActionRole   ActionKind = "role"
)

// Action describes a mutation offered by a list view.
type Action struct {
	Kind    ActionKind
	Title   string
	Message string
	Confirm string
	Danger  bool
}

// Prompt is what the user is asked before a mutation is issued.
type Prompt struct {
	Action    Action
	SubjectID string
	Value     string
}

// Confirmer obtains explicit user confirmation for a prompt.
type Confirmer interface {
	Confirm(ctx context.Context, p Prompt) (Decision, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, p Prompt) (Decision, error)

func (f ConfirmFunc) Confirm(ctx context.Context, p Prompt) (Decision, error) {
	return f(ctx, p)
}

// Answered is a Confirmer with a fixed answer.
type Answered Decision

func (a Answered) Confirm(context.Context, Prompt) (Decision, error) {
	return Decision(a), nil
}

// Mutator issues the remote write of a confirmed action.
type Mutator interface {
	Mutate(ctx context.Context, action Action, subjectID string, payload map[string]string) error
}

// MutatorFunc adapts a function to Mutator.
type MutatorFunc func(ctx context.Context, action Action, subjectID string, payload map[string]string) error

func (f MutatorFunc) Mutate(ctx context.Context, action Action, subjectID string, payload map[string]string) error {
	return f(ctx, action, subjectID, payload)
}

// Outcome reports what Perform did.
type Outcome int

const (
	OutcomeApplied Outcome = iota + 1
	OutcomeCancelled
)
