package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"rights-console-portal/agent/internal/route"
	"rights-console-portal/agent/internal/scope"
)

const defaultPolicyPackage = "portal.navigation"

// Default Rego policy that matches the built-in scope lattice (backward
// compatibility when a deployment ships no policy of its own).
const defaultRegoPolicy = `package portal.navigation

default allow = false
default require_explicit = false

allow if {
	input.from == input.to
}

allow if {
	input.from == "auth"
}

allow if {
	input.from == "public"
}

allow if {
	input.from == "user"
	input.to == "organization"
}

allow if {
	input.from == "organization"
	input.to == "user"
}

allow if {
	input.from == "system"
	input.to == "user"
}

require_explicit if {
	input.from == "system"
	input.to == "organization"
}

require_explicit if {
	input.from == "organization"
	input.to == "system"
}
`

// OPAEvaluator evaluates navigation scope transitions using OPA Rego. A
// deployment may override the default policy with its own module; evaluation
// failures fall back to the built-in lattice so navigation never breaks on a
// bad policy push.
type OPAEvaluator struct {
	policies []string
}

// NewOPAEvaluator returns an OPA-based navigation evaluator. policies are
// optional deployment-supplied Rego modules; when empty the default policy
// is used.
func NewOPAEvaluator(policies ...string) *OPAEvaluator {
	return &OPAEvaluator{policies: policies}
}

// HealthCheck verifies that the in-process OPA Rego engine can compile and
// evaluate the default policy. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	modules := map[string]string{"policy_0.rego": defaultRegoPolicy}
	compiler, err := ast.CompileModules(modules)
	if err != nil {
		return fmt.Errorf("compile default policy: %w", err)
	}
	q := rego.New(
		rego.Query("data."+defaultPolicyPackage+".allow"),
		rego.Compiler(compiler),
		rego.Input(map[string]interface{}{"from": "user", "to": "user", "role": ""}),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return fmt.Errorf("eval default policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("policy query returned no result")
	}
	return nil
}

// EvaluateTransition evaluates the navigation policy for a scope move.
func (e *OPAEvaluator) EvaluateTransition(ctx context.Context, from, to scope.Scope, role string) (NavResult, error) {
	policies := e.policies
	if len(policies) == 0 {
		policies = []string{defaultRegoPolicy}
	}

	input := map[string]interface{}{
		"from": string(from),
		"to":   string(to),
		"role": role,
	}

	result, err := e.evaluatePolicies(ctx, policies, input)
	if err != nil {
		log.Printf("route: policy evaluation failed: %v, using built-in lattice", err)
		return NavResult{Allowed: route.IsValidScopeTransition(from, to)}, nil
	}
	return result, nil
}

func (e *OPAEvaluator) evaluatePolicies(ctx context.Context, policies []string, input map[string]interface{}) (NavResult, error) {
	modules := make(map[string]string)
	for i, policy := range policies {
		modules[fmt.Sprintf("policy_%d.rego", i)] = policy
	}

	compiler, err := ast.CompileModules(modules)
	if err != nil {
		return NavResult{}, fmt.Errorf("compile policies: %w", err)
	}

	out := NavResult{}

	allowQuery := rego.New(
		rego.Query("data."+defaultPolicyPackage+".allow"),
		rego.Compiler(compiler),
		rego.Input(input),
	)
	allowRS, err := allowQuery.Eval(ctx)
	if err != nil {
		return NavResult{}, fmt.Errorf("eval allow: %w", err)
	}
	if len(allowRS) == 0 || len(allowRS[0].Expressions) == 0 {
		return NavResult{}, fmt.Errorf("allow query returned no result")
	}
	if v, ok := allowRS[0].Expressions[0].Value.(bool); ok {
		out.Allowed = v
	}

	explicitQuery := rego.New(
		rego.Query("data."+defaultPolicyPackage+".require_explicit"),
		rego.Compiler(compiler),
		rego.Input(input),
	)
	explicitRS, err := explicitQuery.Eval(ctx)
	if err == nil && len(explicitRS) > 0 && len(explicitRS[0].Expressions) > 0 {
		if v, ok := explicitRS[0].Expressions[0].Value.(bool); ok {
			out.RequireExplicit = v
		}
	}

	return out, nil
}
