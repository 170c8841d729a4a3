// Package session owns the authentication and role resolution state machine.
// The credential change stream is the single source of truth for transitions:
// Register, Login and Logout only acknowledge the remote operation, and the
// stream listener drives the session from Resolving into one of the settled
// states, emitting a navigation intent per transition.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"nestfeed/internal/audit"
	"nestfeed/internal/domain"
	"nestfeed/internal/navigation"
	"nestfeed/internal/platform/metrics"
	"nestfeed/internal/remote"
	"nestfeed/pkg/derrors"
	"nestfeed/pkg/sentinel"
)

// AuditPublisher emits audit events for settled transitions.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Controller is the process-wide session state machine. Exactly one instance
// exists per application root; consumers receive it by reference.
type Controller struct {
	creds  remote.CredentialService
	docs   remote.DocumentStore
	nav    navigation.Navigator
	logger *slog.Logger
	pub    AuditPublisher
	stats  *metrics.Metrics
	tracer trace.Tracer

	// processMu serializes credential events: a new event is not processed
	// until the previous one's side effects have settled.
	processMu sync.Mutex

	mu      sync.RWMutex
	cur     domain.Session
	device  string
	settled chan struct{}
	runCtx  context.Context
}

type Option func(*Controller)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

func WithAuditPublisher(pub AuditPublisher) Option {
	return func(c *Controller) { c.pub = pub }
}

func WithMetrics(stats *metrics.Metrics) Option {
	return func(c *Controller) { c.stats = stats }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Controller) { c.tracer = tracer }
}

// New creates a controller in the Resolving state. It does nothing until Run
// attaches it to the credential stream.
func New(creds remote.CredentialService, docs remote.DocumentStore, nav navigation.Navigator, opts ...Option) *Controller {
	c := &Controller{
		creds:   creds,
		docs:    docs,
		nav:     nav,
		logger:  slog.Default(),
		tracer:  otel.Tracer("nestfeed/session"),
		cur:     domain.Session{Status: domain.StatusResolving},
		settled: make(chan struct{}),
		runCtx:  context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run subscribes to the credential stream and processes events until ctx is
// done. The subscription is released before Run returns.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	c.runCtx = ctx
	c.mu.Unlock()

	unsubscribe := c.creds.OnCredentialChange(c.handleCredentialChange)
	defer unsubscribe()

	<-ctx.Done()
	return nil
}

// Register creates a new remote credential and writes the profile document for
// it. State transitions are driven by the credential stream, not by this call.
// When the profile write fails the credential still exists in a profile-less
// state; the caller recovers by retrying profile creation, not by
// re-registering.
func (c *Controller) Register(ctx context.Context, email, password string, roleChoice domain.Role) error {
	if _, err := domain.ParseRole(string(roleChoice)); err != nil {
		return err
	}

	cred, err := c.creds.Create(ctx, email, password)
	if err != nil {
		return asAuthError(err, "create credential")
	}

	profile := domain.Profile{Email: email, Role: string(roleChoice)}
	if err := c.docs.SetDocument(ctx, domain.CollectionProfiles, cred.Identity, profile); err != nil {
		return derrors.Wrap(err, derrors.CodeAuth, "profile write failed for new credential")
	}

	// The credential event can outrun the profile write and settle into
	// AuthenticatedNoRole; re-resolve so registration always lands on a role.
	c.refresh(cred)
	return nil
}

// refresh re-resolves the current credential after an out-of-band profile
// write. No-op unless the session lost the race and settled role-less for the
// same identity.
func (c *Controller) refresh(cred remote.Credential) {
	c.processMu.Lock()
	defer c.processMu.Unlock()

	c.mu.RLock()
	ctx := c.runCtx
	cur := c.cur
	c.mu.RUnlock()

	if cur.Status != domain.StatusAuthenticatedNoRole || cur.Identity != cred.Identity {
		return
	}

	ctx, span := c.tracer.Start(ctx, "session.refresh")
	defer span.End()

	next, route := c.resolveRole(ctx, &cred)
	span.SetAttributes(attribute.String("session.status", string(next.Status)))
	c.settle(next, route)
}

// Login verifies the credential remotely. Failure surfaces an auth error and
// leaves session state untouched; success settles via the credential stream.
func (c *Controller) Login(ctx context.Context, email, password string) error {
	if _, err := c.creds.Verify(ctx, email, password); err != nil {
		return asAuthError(err, "verify credential")
	}
	return nil
}

// Logout invalidates the remote credential; the stream drives the transition
// to Unauthenticated.
func (c *Controller) Logout(ctx context.Context) error {
	if err := c.creds.Invalidate(ctx); err != nil {
		return asAuthError(err, "invalidate credential")
	}
	return nil
}

// Snapshot returns a copy of the current session.
func (c *Controller) Snapshot() domain.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cur
}

// Settled returns a channel that closes when the next credential event has
// fully settled. Tests and handlers wait on this rather than on operation
// completion.
func (c *Controller) Settled() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settled
}

// SetDevice records the display name of the device driving this session.
func (c *Controller) SetDevice(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.device = name
	c.cur.Device = name
}

func (c *Controller) handleCredentialChange(cred *remote.Credential) {
	c.processMu.Lock()
	defer c.processMu.Unlock()

	c.mu.RLock()
	ctx := c.runCtx
	prev := c.cur
	c.mu.RUnlock()

	ctx, span := c.tracer.Start(ctx, "session.resolve")
	defer span.End()

	var next domain.Session
	var route navigation.Route

	if cred == nil {
		next = domain.Session{Status: domain.StatusUnauthenticated}
		route = navigation.RouteSignIn
		if prev.Identity != "" {
			c.emitAudit(ctx, audit.Event{Actor: prev.Identity, Action: audit.ActionSignedOut})
		}
	} else {
		next, route = c.resolveRole(ctx, cred)
	}

	span.SetAttributes(attribute.String("session.status", string(next.Status)))

	c.settle(next, route)
}

// resolveRole looks the profile up and maps it onto a settled state. Lookup
// errors clear the role instead of leaving the machine pending: the state is
// never observed as Resolving after the listener fires.
func (c *Controller) resolveRole(ctx context.Context, cred *remote.Credential) (domain.Session, navigation.Route) {
	next := domain.Session{
		Identity: cred.Identity,
		Email:    cred.Email,
	}

	doc, err := c.docs.GetDocument(ctx, domain.CollectionProfiles, cred.Identity)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			c.logger.Warn("authenticated identity has no profile document", "identity", cred.Identity)
		} else {
			c.logger.Error("profile lookup failed, clearing role", "identity", cred.Identity, "error", err)
		}
		next.Status = domain.StatusAuthenticatedNoRole
		c.emitAudit(ctx, audit.Event{Actor: cred.Identity, Action: audit.ActionRoleMissing})
		return next, navigation.RouteSignIn
	}

	var profile domain.Profile
	if err := json.Unmarshal(doc.Data, &profile); err != nil {
		c.logger.Error("profile document undecodable, clearing role", "identity", cred.Identity, "error", err)
		next.Status = domain.StatusAuthenticatedNoRole
		c.emitAudit(ctx, audit.Event{Actor: cred.Identity, Action: audit.ActionRoleMissing})
		return next, navigation.RouteSignIn
	}

	role, err := domain.ParseRole(profile.Role)
	if err != nil {
		// Fail closed: an unrecognized role never unlocks a home screen.
		c.logger.Warn("authenticated identity has no valid role", "identity", cred.Identity, "role", profile.Role)
		next.Status = domain.StatusAuthenticatedNoRole
		c.emitAudit(ctx, audit.Event{Actor: cred.Identity, Action: audit.ActionRoleMissing})
		return next, navigation.RouteSignIn
	}

	next.Role = role
	next.Status = domain.StatusAuthenticated
	c.emitAudit(ctx, audit.Event{Actor: cred.Identity, Action: audit.ActionSignedIn})

	if role == domain.RoleRealtor {
		return next, navigation.RouteRealtorHome
	}
	return next, navigation.RouteCustomerHome
}

// settle commits the new state, emits the navigation intent, and wakes
// everything waiting on Settled.
func (c *Controller) settle(next domain.Session, route navigation.Route) {
	c.mu.Lock()
	next.Device = c.device
	c.cur = next
	prevSettled := c.settled
	c.settled = make(chan struct{})
	c.mu.Unlock()

	if c.stats != nil {
		c.stats.SessionsResolved.WithLabelValues(string(next.Status)).Inc()
		c.stats.NavigationIntents.WithLabelValues(string(route)).Inc()
	}

	c.logger.Debug("session settled", "status", string(next.Status), "route", string(route))
	c.nav.Navigate(route)
	close(prevSettled)
}

func (c *Controller) emitAudit(ctx context.Context, event audit.Event) {
	if c.pub == nil {
		return
	}
	if err := c.pub.Emit(ctx, event); err != nil {
		c.logger.Warn("audit emit failed", "action", string(event.Action), "error", err)
	}
}

func asAuthError(err error, msg string) error {
	if derrors.HasCode(err, derrors.CodeAuth) {
		return err
	}
	return derrors.Wrap(err, derrors.CodeAuth, msg)
}
