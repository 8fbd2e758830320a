// Command agent runs the workstation session agent: it monitors operator
// activity, enforces the idle and absolute session limits, synchronizes
// lifecycle events with sibling agents through the shared state store, and
// resolves back-navigation targets from the route registry.
//
// Interaction signals arrive on stdin, one command per line:
//
//	activity          report an interaction signal
//	extend            explicit "stay signed in" action
//	signout           manual sign-out
//	status            print the current session state
//	audit             list recent session audit entries
//	back <path>       resolve the back-navigation target for a path
//	nav <from> <to>   evaluate a scope transition between two paths
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"rights-console-portal/agent/internal/activity"
	"rights-console-portal/agent/internal/audit"
	auditrepo "rights-console-portal/agent/internal/audit/repository"
	"rights-console-portal/agent/internal/bus"
	"rights-console-portal/agent/internal/config"
	"rights-console-portal/agent/internal/db"
	"rights-console-portal/agent/internal/governor"
	"rights-console-portal/agent/internal/identity"
	"rights-console-portal/agent/internal/logout"
	"rights-console-portal/agent/internal/route"
	routeengine "rights-console-portal/agent/internal/route/engine"
	"rights-console-portal/agent/internal/scope"
	"rights-console-portal/agent/internal/sessionpolicy"
	"rights-console-portal/agent/internal/statestore"
	"rights-console-portal/agent/internal/telemetry"
	agentotel "rights-console-portal/agent/internal/telemetry/otel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workstation := cfg.Workstation
	if workstation == "" {
		if host, err := os.Hostname(); err == nil {
			workstation = host
		}
	}

	providers, err := agentotel.New(ctx, agentotel.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "rcp-agent",
		Workstation: workstation,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		time.Sleep(telemetry.ShutdownDrainDuration)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()
	emitter := agentotel.NewEventEmitter(providers.LoggerProvider)

	var store statestore.Store
	var repo auditrepo.Repository
	if cfg.DatabaseURL != "" {
		sqlDB, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db: %v", err)
		}
		defer sqlDB.Close()
		store = statestore.NewPostgresStore(sqlDB, cfg.StorePollIntervalDuration())
		repo = auditrepo.NewPostgresRepository(sqlDB)
	} else {
		log.Println("DATABASE_URL not set; running on in-memory state")
		store = statestore.NewMemoryStore()
		repo = auditrepo.NewMemoryRepository()
	}

	// Identity: the access token is handed to the agent by the portal shell.
	token := os.Getenv("ACCESS_TOKEN")
	principal := resolvePrincipal(cfg, token)

	profiles := profilesFromConfig(cfg)
	policy := profiles.Resolve(principal.Role, principal.Scope)
	log.Printf("session policy %q: idle %s, warning %s, absolute %s",
		policy.Label, policy.IdleTimeout, policy.WarningThreshold, policy.AbsoluteLifetime)

	reg, err := route.Load(cfg.RoutesFile)
	if err != nil {
		log.Fatalf("route: %v", err)
	}
	holder := route.NewHolder(reg)
	if cfg.WatchRoutes {
		if err := holder.Watch(ctx, cfg.RoutesFile); err != nil {
			log.Printf("route: watch disabled: %v", err)
		}
	}
	navEval := routeengine.NewOPAEvaluator()
	if err := navEval.HealthCheck(ctx); err != nil {
		log.Fatalf("route: policy engine: %v", err)
	}

	auditLogger := audit.NewLogger(repo, workstation)
	correlation := uuid.NewString()
	recorder := audit.NewSessionRecorder(auditLogger, principal.OrgID, principal.UserID, policy.Label, correlation)

	// Lifecycle events land in the audit trail and, where mapped, mirror to
	// the telemetry backend through one recorder.
	events := telemetry.NewLifecycleRecorder(recorder, emitter, telemetry.Event{
		OrgID:       principal.OrgID,
		UserID:      principal.UserID,
		SessionID:   principal.SessionID,
		Workstation: workstation,
		Source:      "agent",
	}, map[string]string{
		governor.ActionWarningShown:    telemetry.EventWarningShown,
		logout.ActionSessionTerminated: telemetry.EventSessionTerminated,
	})

	// Sibling synchronization runs on the durable store alone in this
	// deployment shape; a broadcast-capable primary slots in as the first
	// Tee argument when one exists.
	transport := bus.NewTee(nil, bus.NewStoreTransport(store, uuid.NewString()))
	defer transport.Close()

	executor := logout.New(logout.Options{
		Audit:     events,
		Transport: transport,
		Store:     store,
		SignOut:   identity.NewHTTPSignOutClient(cfg.AuthSignOutURL, token),
		SignInURL: cfg.SignInURL,
		OnRedirect: func(u string) {
			log.Printf("navigate to %s", u)
		},
	})

	gov, err := governor.New(governor.Options{
		Transport:   transport,
		Store:       store,
		Logout:      executor,
		Audit:       events,
		Policy:      policy,
		GraceWindow: cfg.PostAuthGraceDuration(),
	})
	if err != nil {
		log.Fatalf("governor: %v", err)
	}

	events.Emit(ctx, telemetry.EventSessionStarted, policy.Label)

	tracker := activity.NewTracker(gov, gov.InWarning, cfg.ActivityThrottleDuration(), nil)
	go commandLoop(ctx, gov, tracker, holder, repo, navEval, principal, events)

	log.Println("session agent running")
	if err := gov.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("governor: %v", err)
	}
	log.Println("session agent stopped")
}

// resolvePrincipal verifies the access token when a public key is configured.
// The agent still runs without one, with the standard profile and a sentinel
// identity, so a broken verifier never locks the operator out of monitoring.
func resolvePrincipal(cfg *config.Config, token string) *identity.Principal {
	anonymous := &identity.Principal{OrgID: audit.SentinelOrgID, Scope: scope.User}
	if cfg.JWTPublicKey == "" || token == "" {
		return anonymous
	}
	verifier, err := identity.NewVerifier([]byte(cfg.JWTPublicKey), cfg.JWTIssuer, cfg.JWTAudience)
	if err != nil {
		log.Printf("identity: %v; continuing unauthenticated", err)
		return anonymous
	}
	principal, err := verifier.VerifyAccess(token)
	if err != nil {
		log.Printf("identity: token rejected: %v; continuing unauthenticated", err)
		return anonymous
	}
	return principal
}

func profilesFromConfig(cfg *config.Config) sessionpolicy.Profiles {
	defaults := sessionpolicy.DefaultProfiles()
	stdIdle := cfg.IdleTimeoutDuration()
	stdWarning := cfg.WarningThresholdDuration()
	stdAbsolute := cfg.AbsoluteLifetimeDuration()
	elevIdle := cfg.ElevatedIdleTimeoutDuration()
	elevWarning := cfg.ElevatedWarningThresholdDuration()
	elevAbsolute := cfg.ElevatedAbsoluteLifetimeDuration()
	return sessionpolicy.Profiles{
		Standard: sessionpolicy.MergeWithDefaults(defaults.Standard, &sessionpolicy.Overrides{
			IdleTimeout:      &stdIdle,
			WarningThreshold: &stdWarning,
			AbsoluteLifetime: &stdAbsolute,
		}),
		Elevated: sessionpolicy.MergeWithDefaults(defaults.Elevated, &sessionpolicy.Overrides{
			IdleTimeout:      &elevIdle,
			WarningThreshold: &elevWarning,
			AbsoluteLifetime: &elevAbsolute,
		}),
	}
}

// commandLoop turns stdin lines into interaction signals and session actions.
func commandLoop(ctx context.Context, gov *governor.Governor, tracker *activity.Tracker, holder *route.Holder, repo auditrepo.Repository, navEval routeengine.Evaluator, principal *identity.Principal, events *telemetry.LifecycleRecorder) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "activity":
			if tracker.Observe(activity.KeyPress) {
				fmt.Println("activity accepted")
			} else {
				fmt.Println("activity throttled or suppressed")
			}
		case "extend":
			gov.Extend()
			events.Emit(ctx, telemetry.EventSessionExtended, "")
			fmt.Println("session extended")
		case "signout":
			gov.SignOut()
			return
		case "status":
			s := gov.Snapshot()
			fmt.Printf("phase=%v remaining=%ds policy=%s started=%s\n",
				s.Phase, s.SecondsRemaining, s.Policy.Label, s.SessionStartedAt.Format(time.RFC3339))
		case "audit":
			resource := audit.ResourceSession
			entries, err := repo.ListByOrgFiltered(ctx, principal.OrgID, 20, 0, nil, nil, &resource)
			if err != nil {
				fmt.Printf("audit query failed: %v\n", err)
				continue
			}
			for _, e := range entries {
				fmt.Printf("%s %s %s\n", e.CreatedAt.Format(time.RFC3339), e.Action, e.Metadata)
			}
		case "back":
			if len(fields) < 2 {
				fmt.Println("usage: back <path>")
				continue
			}
			if target, ok := holder.Registry().BackTarget(fields[1]); ok {
				fmt.Printf("back target: %s\n", target)
			} else {
				fmt.Println("no back target")
			}
		case "nav":
			if len(fields) < 3 {
				fmt.Println("usage: nav <from-path> <to-path>")
				continue
			}
			reg := holder.Registry()
			from, okFrom := reg.Match(fields[1])
			to, okTo := reg.Match(fields[2])
			if !okFrom || !okTo {
				fmt.Println("unregistered path")
				continue
			}
			result, err := navEval.EvaluateTransition(ctx, from.Scope, to.Scope, principal.Role)
			if err != nil {
				fmt.Printf("policy evaluation failed: %v\n", err)
				continue
			}
			switch {
			case result.Allowed:
				fmt.Println("allowed")
			case result.RequireExplicit:
				events.Emit(ctx, telemetry.EventNavigationBlocked, fields[2])
				fmt.Println("requires an explicit scope transition action")
			default:
				events.Emit(ctx, telemetry.EventNavigationBlocked, fields[2])
				fmt.Println("denied")
			}
		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}
	}
}
