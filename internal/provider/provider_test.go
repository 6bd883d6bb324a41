package provider_test

import (
	"context"
	"errors"
	"testing"

	"coehub/internal/provider"
)

func testAccount() provider.Account {
	return provider.Account{
		Identity: provider.Identity{UID: "prov-1", Email: "dr.lena@coe.example", DisplayName: "Lena Haddad"},
		Password: "hunter2",
	}
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	p := provider.NewLocal(testAccount())
	ctx := context.Background()

	if _, err := p.SignIn(ctx, "dr.lena@coe.example", "wrong"); !errors.Is(err, provider.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := p.SignIn(ctx, "nobody@coe.example", "hunter2"); !errors.Is(err, provider.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown account, got %v", err)
	}
	if p.Current() != nil {
		t.Fatalf("failed sign-in must not establish a session")
	}
}

func TestSubscribeDeliversCurrentStateThenChanges(t *testing.T) {
	p := provider.NewLocal(testAccount())
	ctx := context.Background()

	var events []*provider.Identity
	unsubscribe := p.Subscribe(func(id *provider.Identity) {
		events = append(events, id)
	})
	defer unsubscribe()

	if len(events) != 1 || events[0] != nil {
		t.Fatalf("expected initial nil delivery, got %+v", events)
	}

	if _, err := p.SignIn(ctx, "dr.lena@coe.example", "hunter2"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if err := p.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}

	if len(events) != 3 {
		t.Fatalf("expected 3 deliveries, got %d", len(events))
	}
	if events[1] == nil || events[1].UID != "prov-1" {
		t.Fatalf("expected sign-in delivery, got %+v", events[1])
	}
	if events[2] != nil {
		t.Fatalf("expected nil on sign-out, got %+v", events[2])
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	p := provider.NewLocal(testAccount())
	ctx := context.Background()

	count := 0
	unsubscribe := p.Subscribe(func(*provider.Identity) { count++ })
	unsubscribe()
	unsubscribe() // safe to call twice

	if _, err := p.SignIn(ctx, "dr.lena@coe.example", "hunter2"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected only the initial delivery, got %d", count)
	}
}

func TestDeliveredIdentityIsACopy(t *testing.T) {
	p := provider.NewLocal(testAccount())
	ctx := context.Background()

	var seen *provider.Identity
	defer p.Subscribe(func(id *provider.Identity) { seen = id })()

	if _, err := p.SignIn(ctx, "dr.lena@coe.example", "hunter2"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	seen.Email = "tampered@coe.example"
	if got := p.Current(); got == nil || got.Email != "dr.lena@coe.example" {
		t.Fatalf("provider state mutated through delivered identity: %+v", got)
	}
}
