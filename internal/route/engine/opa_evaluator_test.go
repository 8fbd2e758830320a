package engine

import (
	"context"
	"testing"

	"rights-console-portal/agent/internal/scope"
)

func TestOPAEvaluator_HealthCheck(t *testing.T) {
	e := NewOPAEvaluator()
	ctx := context.Background()
	if err := e.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestEvaluateTransition_DefaultPolicyMatchesLattice(t *testing.T) {
	e := NewOPAEvaluator()
	ctx := context.Background()

	cases := []struct {
		from, to scope.Scope
		want     bool
	}{
		{scope.System, scope.Organization, false},
		{scope.Organization, scope.System, false},
		{scope.User, scope.Organization, true},
		{scope.Organization, scope.User, true},
		{scope.System, scope.User, true},
		{scope.Auth, scope.System, true},
		{scope.Public, scope.User, true},
		{scope.System, scope.System, true},
	}
	for _, c := range cases {
		got, err := e.EvaluateTransition(ctx, c.from, c.to, "org_member")
		if err != nil {
			t.Fatalf("EvaluateTransition(%q, %q): %v", c.from, c.to, err)
		}
		if got.Allowed != c.want {
			t.Errorf("EvaluateTransition(%q, %q).Allowed = %v, want %v", c.from, c.to, got.Allowed, c.want)
		}
	}
}

func TestEvaluateTransition_SystemOrgNeedsExplicitAction(t *testing.T) {
	e := NewOPAEvaluator()
	got, err := e.EvaluateTransition(context.Background(), scope.System, scope.Organization, "platform_admin")
	if err != nil {
		t.Fatalf("EvaluateTransition: %v", err)
	}
	if got.Allowed {
		t.Error("Allowed = true, want false for system->organization")
	}
	if !got.RequireExplicit {
		t.Error("RequireExplicit = false, want true for system->organization")
	}
}

func TestEvaluateTransition_CustomPolicy(t *testing.T) {
	// A deployment policy that lets platform admins cross from system to
	// organization scope directly.
	custom := `package portal.navigation

default allow = false
default require_explicit = false

allow if {
	input.from == input.to
}

allow if {
	input.from == "system"
	input.to == "organization"
	input.role == "platform_admin"
}
`
	e := NewOPAEvaluator(custom)
	ctx := context.Background()

	got, err := e.EvaluateTransition(ctx, scope.System, scope.Organization, "platform_admin")
	if err != nil {
		t.Fatalf("EvaluateTransition: %v", err)
	}
	if !got.Allowed {
		t.Error("Allowed = false, want true under custom policy for platform_admin")
	}

	got, err = e.EvaluateTransition(ctx, scope.System, scope.Organization, "org_member")
	if err != nil {
		t.Fatalf("EvaluateTransition: %v", err)
	}
	if got.Allowed {
		t.Error("Allowed = true, want false under custom policy for org_member")
	}
}

func TestEvaluateTransition_BrokenPolicyFallsBackToLattice(t *testing.T) {
	e := NewOPAEvaluator("package portal.navigation\n\nallow if {")
	got, err := e.EvaluateTransition(context.Background(), scope.User, scope.Organization, "org_member")
	if err != nil {
		t.Fatalf("EvaluateTransition: %v", err)
	}
	if !got.Allowed {
		t.Error("Allowed = false, want built-in lattice fallback to allow user->organization")
	}
}
