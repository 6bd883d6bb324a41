// Package authsync reconciles the external identity provider's session with
// the backend user directory, maintaining one canonical Session and keeping
// navigation aligned with authentication state.
package authsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"coehub/internal/backend"
	"coehub/internal/provider"
	"coehub/pkg/domain"
)

// State names the reconciliation phases.
type State string

const (
	// StateUnknown holds before the first provider callback arrives.
	StateUnknown State = "unknown"
	// StateProviderAuthenticated means the provider confirmed an identity but
	// the backend has not been reconciled yet.
	StateProviderAuthenticated State = "provider_authenticated"
	// StateReconciled means a Session has been merged (possibly degraded).
	StateReconciled State = "reconciled"
	// StateUnauthenticated means the provider reports no identity.
	StateUnauthenticated State = "unauthenticated"
)

// Application routes the reconciler navigates between.
const (
	RouteLogin  = "/login"
	RouteSignup = "/signup"
	RouteHome   = "/dashboard"
)

// Navigator abstracts the routing surface the reconciler drives.
type Navigator interface {
	// Current returns the active route path.
	Current() string
	// Navigate switches to the given route.
	Navigate(route string)
}

// Directory is the backend slice the reconciler needs. *backend.Client
// satisfies it.
type Directory interface {
	CheckAuth(ctx context.Context) (*domain.BackendUser, error)
	Login(ctx context.Context, email string) (domain.BackendUser, error)
	SyncProviderUser(ctx context.Context, email, uid, displayName string) (domain.BackendUser, error)
	// SetToken installs the bearer credential; empty clears it.
	SetToken(token string)
}

// Option customizes a Reconciler.
type Option func(*Reconciler)

// WithAuthCheckComplete registers the notification invoked exactly once per
// provider callback, after the transition and its side effects are applied.
// Callers use it to stop showing a loading gate.
func WithAuthCheckComplete(fn func()) Option {
	return func(r *Reconciler) { r.onChecked = fn }
}

// Reconciler owns the canonical Session for the process. Provider callbacks
// are delivered serially, but backend calls for an older callback may still
// be in flight when a newer one lands, so every reconciliation attempt is
// tagged and stale results are discarded.
type Reconciler struct {
	provider  provider.Provider
	directory Directory
	nav       Navigator
	logger    *zap.Logger
	onChecked func()

	mu      sync.Mutex
	state   State
	session *domain.Session
	attempt uint64
}

// New constructs a Reconciler. The Session starts empty in StateUnknown.
func New(p provider.Provider, dir Directory, nav Navigator, logger *zap.Logger, opts ...Option) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reconciler{
		provider:  p,
		directory: dir,
		nav:       nav,
		logger:    logger,
		state:     StateUnknown,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start subscribes to the provider's auth-state stream and returns the
// cancel func. The provider delivers the current state immediately, so the
// first reconciliation happens during Start.
func (r *Reconciler) Start(ctx context.Context) (stop func()) {
	return r.provider.Subscribe(func(id *provider.Identity) {
		r.HandleProviderChange(ctx, id)
	})
}

// State returns the current reconciliation state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Session returns a copy of the canonical session, or nil when
// unauthenticated.
func (r *Reconciler) Session() *domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return nil
	}
	cp := *r.session
	return &cp
}

// HandleProviderChange processes one provider callback: nil identity clears
// the session, a non-nil identity is reconciled against the backend. The
// auth-check-complete notification fires on every path, including stale
// discards.
func (r *Reconciler) HandleProviderChange(ctx context.Context, id *provider.Identity) {
	defer r.checkComplete()

	if id == nil {
		r.mu.Lock()
		r.attempt++
		r.state = StateUnauthenticated
		r.session = nil
		r.mu.Unlock()
		r.directory.SetToken("")
		r.routeToLogin()
		return
	}

	r.mu.Lock()
	r.attempt++
	attempt := r.attempt
	r.state = StateProviderAuthenticated
	r.mu.Unlock()

	user := r.resolveBackendUser(ctx, *id)
	session := mergeSession(*id, user)

	r.mu.Lock()
	if attempt != r.attempt {
		r.mu.Unlock()
		r.logger.Debug("discarding stale reconciliation result",
			zap.String("email", id.Email), zap.Uint64("attempt", attempt))
		return
	}
	r.session = &session
	r.state = StateReconciled
	r.mu.Unlock()

	r.routeToApp()
	r.logger.Info("session reconciled",
		zap.String("user_id", session.ID),
		zap.String("email", session.Email),
		zap.Bool("degraded", session.Degraded))
}

// SignOut ends the provider session, clears the local Session, and navigates
// to the login route, in that order. A provider-side failure is reported but
// never blocks the local clear.
func (r *Reconciler) SignOut(ctx context.Context) error {
	err := r.provider.SignOut(ctx)
	if err != nil {
		r.logger.Error("provider sign-out failed", zap.Error(err))
	}

	r.mu.Lock()
	r.attempt++
	r.state = StateUnauthenticated
	r.session = nil
	r.mu.Unlock()
	r.directory.SetToken("")
	r.routeToLogin()

	if err != nil {
		return fmt.Errorf("provider sign-out: %w", err)
	}
	return nil
}

// resolveBackendUser walks the reconciliation ladder: established session
// matching the provider identity, then login by provider email, then
// create/sync from the provider identity. Returns nil when every rung fails;
// the caller falls back to a degraded provider-only session.
func (r *Reconciler) resolveBackendUser(ctx context.Context, id provider.Identity) *domain.BackendUser {
	if user, err := r.directory.CheckAuth(ctx); err != nil {
		r.logger.Debug("auth check failed, trying login", zap.Error(err))
	} else if user != nil {
		// A leftover credential from a previous user must not short-circuit
		// the ladder for a different provider identity.
		if matchesIdentity(*user, id) {
			return user
		}
		r.logger.Warn("established backend session belongs to a different identity, re-authenticating",
			zap.String("session_email", user.Email), zap.String("provider_email", id.Email))
	}

	user, err := r.directory.Login(ctx, id.Email)
	if err == nil {
		return &user
	}
	if errors.Is(err, backend.ErrUserNotFound) {
		r.logger.Debug("no backend user for provider identity, syncing", zap.String("email", id.Email))
	} else {
		r.logger.Warn("backend login failed, attempting user sync", zap.Error(err))
	}

	user, err = r.directory.SyncProviderUser(ctx, id.Email, id.UID, id.DisplayName)
	if err != nil {
		r.logger.Error("backend user sync failed, continuing with provider-only session",
			zap.String("email", id.Email), zap.Error(err))
		return nil
	}
	return &user
}

// matchesIdentity reports whether a backend user belongs to the given
// provider identity, by provider subject id or by email.
func matchesIdentity(user domain.BackendUser, id provider.Identity) bool {
	if user.ProviderUID != "" && user.ProviderUID == id.UID {
		return true
	}
	return user.Email != "" && strings.EqualFold(user.Email, id.Email)
}

// mergeSession builds the canonical view: provider fields first, backend
// fields over them, the backend's internal id winning whenever a backend
// identity exists.
func mergeSession(id provider.Identity, user *domain.BackendUser) domain.Session {
	s := domain.Session{
		ProviderUID: id.UID,
		Email:       id.Email,
		DisplayName: id.DisplayName,
	}
	if user == nil {
		s.Degraded = true
		return s
	}
	s.ID = user.ID
	if user.Email != "" {
		s.Email = user.Email
	}
	if user.DisplayName != "" {
		s.DisplayName = user.DisplayName
	}
	s.Role = user.Role
	s.Department = user.Department
	return s
}

func (r *Reconciler) routeToApp() {
	if cur := r.nav.Current(); cur == RouteLogin || cur == RouteSignup {
		r.nav.Navigate(RouteHome)
	}
}

func (r *Reconciler) routeToLogin() {
	if cur := r.nav.Current(); cur != RouteLogin && cur != RouteSignup {
		r.nav.Navigate(RouteLogin)
	}
}

func (r *Reconciler) checkComplete() {
	if r.onChecked != nil {
		r.onChecked()
	}
}
