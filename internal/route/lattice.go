package route

import "rights-console-portal/agent/internal/scope"

// IsValidScopeTransition reports whether normal "back" navigation may move
// from one authority scope to another. Same-scope moves are always allowed,
// auth and public pages may lead anywhere, user and organization scopes may
// reach each other, and the system console only descends to user scope.
// Crossing between system and organization requires an explicit transition
// action elsewhere in the portal, never the back affordance.
func IsValidScopeTransition(from, to scope.Scope) bool {
	if from == to {
		return true
	}
	switch from {
	case scope.Auth, scope.Public:
		return true
	case scope.User:
		return to == scope.User || to == scope.Organization
	case scope.Organization:
		return to == scope.Organization || to == scope.User
	case scope.System:
		return to == scope.System || to == scope.User
	}
	return false
}
