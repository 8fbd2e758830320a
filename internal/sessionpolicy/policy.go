// Package sessionpolicy resolves the session timeout policy for a role and
// scope. Resolution is a pure, total function: it never fails, and unknown
// roles or scopes get the standard profile.
package sessionpolicy

import (
	"fmt"
	"time"

	"rights-console-portal/agent/internal/scope"
)

// Roles that map to the elevated profile regardless of scope.
const (
	RolePlatformAdmin = "platform_admin"
	RoleOrgAdmin      = "org_admin"
	RoleOrgMember     = "org_member"
)

// Policy holds the timeout durations governing one session.
// Immutable once resolved; re-resolved only on role or scope change.
type Policy struct {
	// IdleTimeout is the inactivity duration after which the session expires.
	IdleTimeout time.Duration
	// WarningThreshold is how long before idle expiry the warning is shown.
	// Must be less than IdleTimeout.
	WarningThreshold time.Duration
	// AbsoluteLifetime is the hard ceiling on total session duration,
	// independent of activity.
	AbsoluteLifetime time.Duration
	// Label names the profile (e.g. "standard", "elevated") for audit records.
	Label string
}

// Validate returns an error if the policy durations are unusable.
func (p Policy) Validate() error {
	if p.IdleTimeout <= 0 {
		return fmt.Errorf("sessionpolicy: idle timeout must be positive, got %v", p.IdleTimeout)
	}
	if p.WarningThreshold <= 0 {
		return fmt.Errorf("sessionpolicy: warning threshold must be positive, got %v", p.WarningThreshold)
	}
	if p.WarningThreshold >= p.IdleTimeout {
		return fmt.Errorf("sessionpolicy: warning threshold %v must be less than idle timeout %v", p.WarningThreshold, p.IdleTimeout)
	}
	if p.AbsoluteLifetime <= 0 {
		return fmt.Errorf("sessionpolicy: absolute lifetime must be positive, got %v", p.AbsoluteLifetime)
	}
	return nil
}

// WarmupDelay returns the inactivity duration after which the warning fires.
func (p Policy) WarmupDelay() time.Duration {
	return p.IdleTimeout - p.WarningThreshold
}

// Profiles holds the two policy profiles the portal distinguishes.
type Profiles struct {
	Standard Policy
	Elevated Policy
}

// DefaultProfiles returns the built-in profiles: 30m/2m/12h for standard
// scopes and 15m/2m/8h for elevated ones.
func DefaultProfiles() Profiles {
	return Profiles{
		Standard: Policy{
			IdleTimeout:      30 * time.Minute,
			WarningThreshold: 2 * time.Minute,
			AbsoluteLifetime: 12 * time.Hour,
			Label:            "standard",
		},
		Elevated: Policy{
			IdleTimeout:      15 * time.Minute,
			WarningThreshold: 2 * time.Minute,
			AbsoluteLifetime: 8 * time.Hour,
			Label:            "elevated",
		},
	}
}

// Resolve returns the policy for the given role and scope. Pure and total:
// any role/scope pairing resolves, with unknown inputs falling back to the
// standard profile. Elevated applies when either the scope or the role is
// privileged.
func (ps Profiles) Resolve(role string, sc scope.Scope) Policy {
	if sc.Elevated() || role == RolePlatformAdmin {
		return ps.Elevated
	}
	return ps.Standard
}

// Overrides holds optional org-level policy values. Nil fields keep the
// profile default.
type Overrides struct {
	IdleTimeout      *time.Duration
	WarningThreshold *time.Duration
	AbsoluteLifetime *time.Duration
}

// MergeWithDefaults returns base with any set override applied. The result
// is validated; an invalid combination keeps base unchanged so a bad org
// override can never produce an unusable policy.
func MergeWithDefaults(base Policy, o *Overrides) Policy {
	if o == nil {
		return base
	}
	out := base
	if o.IdleTimeout != nil && *o.IdleTimeout > 0 {
		out.IdleTimeout = *o.IdleTimeout
	}
	if o.WarningThreshold != nil && *o.WarningThreshold > 0 {
		out.WarningThreshold = *o.WarningThreshold
	}
	if o.AbsoluteLifetime != nil && *o.AbsoluteLifetime > 0 {
		out.AbsoluteLifetime = *o.AbsoluteLifetime
	}
	if err := out.Validate(); err != nil {
		return base
	}
	return out
}
