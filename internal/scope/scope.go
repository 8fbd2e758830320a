// Package scope defines the authority scopes of the console portal.
// A scope is an authority boundary (system console vs. organization vs. user
// workspace) that navigation and session policy are keyed on.
package scope

// Scope identifies the authority boundary a route or session belongs to.
type Scope string

const (
	// System is the platform operator console (elevated privilege).
	System Scope = "system"
	// Organization is a tenant organization's workspace.
	Organization Scope = "organization"
	// User is an individual user's workspace.
	User Scope = "user"
	// Auth covers sign-in, sign-out, and credential flows.
	Auth Scope = "auth"
	// Public covers unauthenticated surfaces (landing, legal, status).
	Public Scope = "public"
)

// Valid reports whether s is one of the defined scopes.
func (s Scope) Valid() bool {
	switch s {
	case System, Organization, User, Auth, Public:
		return true
	}
	return false
}

// Elevated reports whether s carries elevated privilege and therefore gets
// the stricter session policy profile.
func (s Scope) Elevated() bool {
	return s == System
}

// Parse returns the Scope for raw, or (Scope(""), false) if raw is not a
// defined scope. Unknown values never panic; callers fall back to defaults.
func Parse(raw string) (Scope, bool) {
	s := Scope(raw)
	if !s.Valid() {
		return "", false
	}
	return s, true
}
