package governor

import "time"

// Reduce applies ev to s and returns the next state plus the effects the
// runtime must perform. Pure: no timers, no I/O, no clock reads. PhaseExpired
// is terminal; every event reduces to a no-op there.
func Reduce(s State, ev Event) (State, []Effect) {
	if s.Phase == PhaseExpired {
		return s, nil
	}

	switch e := ev.(type) {
	case Started:
		remaining := s.absoluteRemaining(e.Now)
		if remaining <= 0 {
			// Restored past the ceiling: never enter Active.
			return s.expire(ReasonAbsolute, true)
		}
		s.Phase = PhaseActive
		s.LastActivityAt = e.Now
		return s, []Effect{
			ArmWarning{After: s.Policy.WarmupDelay()},
			ArmAbsolute{After: remaining},
			RecordAudit{Action: ActionPolicyApplied, Detail: s.Policy.Label},
		}

	case ActivityObserved:
		if e.Now.After(s.LastActivityAt) {
			s.LastActivityAt = e.Now
		}
		effects := []Effect{ArmWarning{After: s.Policy.WarmupDelay()}}
		if s.Phase == PhaseWarning {
			// An accepted signal dismisses the warning wherever it
			// originated, so instances expire together rather than
			// staggered. The tracker already filters passive local movement
			// while the warning is showing; anything that reaches the
			// reducer counts.
			s.Phase = PhaseActive
			s.SecondsRemaining = 0
			effects = append([]Effect{StopCountdown{}}, effects...)
		}
		if !e.Remote {
			effects = append(effects, PublishActivity{At: e.Now})
		}
		return s, effects

	case WarningElapsed:
		if s.Phase != PhaseActive {
			return s, nil
		}
		s.Phase = PhaseWarning
		s.SecondsRemaining = int(s.Policy.WarningThreshold / time.Second)
		return s, []Effect{
			StartCountdown{},
			RecordAudit{Action: ActionWarningShown, Detail: s.Policy.Label},
		}

	case CountdownTick:
		if s.Phase != PhaseWarning {
			return s, nil
		}
		s.SecondsRemaining--
		if s.SecondsRemaining <= 0 {
			return s.expire(ReasonIdle, true)
		}
		return s, []Effect{StartCountdown{}}

	case ExtendRequested:
		wasWarning := s.Phase == PhaseWarning
		s.Phase = PhaseActive
		s.SecondsRemaining = 0
		if e.Now.After(s.LastActivityAt) {
			s.LastActivityAt = e.Now
		}
		// SessionStartedAt is untouched: extend resets the idle clock only,
		// never the absolute ceiling.
		effects := []Effect{ArmWarning{After: s.Policy.WarmupDelay()}}
		if wasWarning {
			effects = append([]Effect{StopCountdown{}}, effects...)
		}
		if !e.Remote {
			effects = append(effects, PublishExtend{})
		}
		return s, effects

	case AbsoluteElapsed:
		// The hard ceiling dominates regardless of recent activity.
		return s.expire(ReasonAbsolute, true)

	case SignOutRequested:
		return s.expire(ReasonManual, true)

	case RemoteLogout:
		// Expire locally without re-broadcasting, so siblings never echo.
		return s.expire(e.Reason, false)

	case PolicyChanged:
		if s.Policy == e.Policy {
			return s, nil
		}
		s.Policy = e.Policy
		remaining := s.absoluteRemaining(e.Now)
		if remaining <= 0 {
			return s.expire(ReasonAbsolute, true)
		}
		effects := []Effect{
			ArmWarning{After: s.Policy.WarmupDelay()},
			ArmAbsolute{After: remaining},
			RecordAudit{Action: ActionPolicyApplied, Detail: s.Policy.Label},
		}
		if s.Phase == PhaseWarning {
			s.Phase = PhaseActive
			s.SecondsRemaining = 0
			effects = append([]Effect{StopCountdown{}}, effects...)
		}
		return s, effects
	}

	return s, nil
}

func (s State) absoluteRemaining(now time.Time) time.Duration {
	return s.SessionStartedAt.Add(s.Policy.AbsoluteLifetime).Sub(now)
}

func (s State) expire(reason Reason, rebroadcast bool) (State, []Effect) {
	s.Phase = PhaseExpired
	s.Reason = reason
	s.SecondsRemaining = 0
	return s, []Effect{
		StopAllTimers{},
		RunLogout{Reason: reason, Rebroadcast: rebroadcast},
	}
}
