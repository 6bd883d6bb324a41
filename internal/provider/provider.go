// Package provider abstracts the external identity service: credential
// sign-in, sign-out, and a subscription stream of auth-state changes.
package provider

import (
	"context"
	"errors"
	"sync"
)

// Identity is the identity object supplied by the external auth service.
// UID is the provider's transient subject id, never the application's own
// user id.
type Identity struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
}

// Callback receives auth-state changes: an identity on sign-in, nil on
// sign-out. Deliveries are serialized by the provider.
type Callback func(*Identity)

// Provider is the identity collaborator contract.
type Provider interface {
	// SignIn authenticates with credentials and establishes a provider
	// session. Subscribers are notified with the new identity.
	SignIn(ctx context.Context, email, password string) (Identity, error)
	// SignOut ends the provider session. Subscribers are notified with nil.
	SignOut(ctx context.Context) error
	// Subscribe registers a callback for auth-state changes. The callback is
	// invoked immediately with the current state, then on every change. The
	// returned func cancels the subscription and is safe to call more than
	// once.
	Subscribe(cb Callback) (unsubscribe func())
}

// ErrInvalidCredentials is returned by SignIn when the email or password is
// rejected.
var ErrInvalidCredentials = errors.New("provider: invalid credentials")

// Account is a credential pair registered with the local provider.
type Account struct {
	Identity Identity
	Password string
}

// Local is an in-process Provider backed by a fixed account set. It serializes
// callback delivery the way hosted providers do, which makes it suitable both
// for tests and for single-tenant deployments without an external identity
// service.
type Local struct {
	mu       sync.Mutex
	accounts map[string]Account // keyed by email
	current  *Identity
	subs     map[int]Callback
	nextSub  int

	deliver sync.Mutex // serializes callback delivery
}

// NewLocal constructs a Local provider with the given accounts.
func NewLocal(accounts ...Account) *Local {
	p := &Local{
		accounts: make(map[string]Account, len(accounts)),
		subs:     make(map[int]Callback),
	}
	for _, a := range accounts {
		p.accounts[a.Identity.Email] = a
	}
	return p
}

// Register adds or replaces an account.
func (p *Local) Register(a Account) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts[a.Identity.Email] = a
}

// SignIn implements Provider.
func (p *Local) SignIn(ctx context.Context, email, password string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}
	p.mu.Lock()
	account, ok := p.accounts[email]
	if !ok || account.Password != password {
		p.mu.Unlock()
		return Identity{}, ErrInvalidCredentials
	}
	id := account.Identity
	p.current = &id
	subs := p.snapshotSubs()
	p.mu.Unlock()

	p.notify(subs, &id)
	return id, nil
}

// SignOut implements Provider.
func (p *Local) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.current = nil
	subs := p.snapshotSubs()
	p.mu.Unlock()

	p.notify(subs, nil)
	return nil
}

// Subscribe implements Provider.
func (p *Local) Subscribe(cb Callback) func() {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = cb
	current := p.current
	p.mu.Unlock()

	// Initial delivery mirrors hosted providers: the subscriber learns the
	// current state without waiting for the next change.
	p.notify([]Callback{cb}, cloneIdentity(current))

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
}

// Current returns the identity of the active provider session, or nil.
func (p *Local) Current() *Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return cloneIdentity(p.current)
}

func (p *Local) snapshotSubs() []Callback {
	out := make([]Callback, 0, len(p.subs))
	for _, cb := range p.subs {
		out = append(out, cb)
	}
	return out
}

func (p *Local) notify(subs []Callback, id *Identity) {
	p.deliver.Lock()
	defer p.deliver.Unlock()
	for _, cb := range subs {
		cb(cloneIdentity(id))
	}
}

func cloneIdentity(id *Identity) *Identity {
	if id == nil {
		return nil
	}
	cp := *id
	return &cp
}
