package engine

import (
	"context"

	"rights-console-portal/agent/internal/scope"
)

// NavResult holds the result of a navigation-policy evaluation.
type NavResult struct {
	Allowed bool
	// RequireExplicit is set when the move needs an explicit transition
	// action in the portal instead of the back affordance.
	RequireExplicit bool
}

// Evaluator evaluates scope-transition policy using OPA or other engines.
type Evaluator interface {
	// EvaluateTransition decides whether back navigation may move from one
	// authority scope to another for the given role.
	EvaluateTransition(ctx context.Context, from, to scope.Scope, role string) (NavResult, error)
}
