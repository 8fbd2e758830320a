// Package logout runs the termination sequence when a session ends. The
// steps are ordered so local state is inert before any remote call is made,
// and every step is best-effort: a failing step is logged and the sequence
// continues, because a half-finished sign-out must still land the operator
// on the sign-in page.
package logout

import (
	"context"
	"log"
	"time"

	"rights-console-portal/agent/internal/bus"
	"rights-console-portal/agent/internal/governor"
	"rights-console-portal/agent/internal/identity"
	"rights-console-portal/agent/internal/statestore"
)

// stepTimeout bounds each individual termination step.
const stepTimeout = 5 * time.Second

// ActionSessionTerminated is the audit action written for every termination.
const ActionSessionTerminated = "session_terminated"

// Recorder writes the termination event to the audit trail.
type Recorder interface {
	RecordSessionEvent(ctx context.Context, action, detail string)
}

// Executor performs the ordered termination sequence. It implements
// governor.LogoutRunner.
type Executor struct {
	audit     Recorder
	transport bus.Transport
	store     statestore.Store
	signOut   identity.SignOutClient
	signInURL string

	// OnRedirect, when set, receives the resolved sign-in URL as the final
	// step. The embedding surface uses it to navigate the operator away.
	OnRedirect func(url string)
}

// Options configures an Executor. Audit, Transport, SignOut and OnRedirect
// may each be nil; the corresponding step is skipped.
type Options struct {
	Audit      Recorder
	Transport  bus.Transport
	Store      statestore.Store
	SignOut    identity.SignOutClient
	SignInURL  string
	OnRedirect func(url string)
}

// New returns an Executor for the given options.
func New(opts Options) *Executor {
	return &Executor{
		audit:      opts.Audit,
		transport:  opts.Transport,
		store:      opts.Store,
		signOut:    opts.SignOut,
		signInURL:  opts.SignInURL,
		OnRedirect: opts.OnRedirect,
	}
}

// Execute runs the termination sequence for the given reason. rebroadcast
// controls whether the logout is announced to sibling agent instances; it is
// false when this instance is itself reacting to a remote logout, so the
// announcement never echoes back and forth.
//
// Order: audit, broadcast, clear durable session state, revoke at the auth
// provider, redirect. Execute never returns before every step has been
// attempted.
func (e *Executor) Execute(ctx context.Context, reason governor.Reason, rebroadcast bool) {
	if e.audit != nil {
		actx, cancel := context.WithTimeout(ctx, stepTimeout)
		e.audit.RecordSessionEvent(actx, ActionSessionTerminated, string(reason))
		cancel()
	}

	if rebroadcast && e.transport != nil {
		bctx, cancel := context.WithTimeout(ctx, stepTimeout)
		msg := bus.Message{Kind: bus.KindLogout, At: time.Now().UTC(), Reason: string(reason)}
		if err := e.transport.Publish(bctx, msg); err != nil {
			log.Printf("logout: broadcast failed: %v", err)
		}
		cancel()
	}

	if e.store != nil {
		sctx, cancel := context.WithTimeout(ctx, stepTimeout)
		if err := e.store.Delete(sctx, statestore.KeySessionStartedAt); err != nil {
			log.Printf("logout: clear session start failed: %v", err)
		}
		if err := e.store.Delete(sctx, statestore.KeyPostAuthGrace); err != nil {
			log.Printf("logout: clear grace marker failed: %v", err)
		}
		cancel()
	}

	if e.signOut != nil {
		octx, cancel := context.WithTimeout(ctx, stepTimeout)
		if err := e.signOut.SignOut(octx, string(reason)); err != nil {
			log.Printf("logout: auth sign-out failed: %v", err)
		}
		cancel()
	}

	if e.OnRedirect != nil && e.signInURL != "" {
		target, err := identity.SignInURL(e.signInURL, string(reason))
		if err != nil {
			log.Printf("logout: resolve sign-in URL failed: %v", err)
			target = e.signInURL
		}
		e.OnRedirect(target)
	}
}
