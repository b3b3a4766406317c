// Package session wires the cart, wishlist and checkout of one client session.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/checkout"
	"github.com/abgdnv/storefront/internal/identity"
	"github.com/abgdnv/storefront/internal/pricing"
	"github.com/abgdnv/storefront/internal/store"
	"github.com/abgdnv/storefront/internal/wishlist"
)

// Deps are shared by every session.
type Deps struct {
	Medium          store.Medium
	Submitter       checkout.Submitter
	Calculator      pricing.Calculator
	CheckoutOptions []checkout.Option
	Logger          *slog.Logger
}

// Session is the context object handed to request handlers. Its stores are bound to
// the namespace of the current actor.
type Session struct {
	ID       string
	Identity *identity.Resolver
	Cart     *cart.Store
	Wishlist *wishlist.Store
	Checkout *checkout.Pipeline

	mu       sync.Mutex
	lastSeen time.Time

	// serializes requests so an actor switch and the operation that follows it see the same namespace
	exclusive sync.Mutex
}

// New builds a session for an anonymous actor.
func New(ctx context.Context, id string, deps Deps) *Session {
	logger := deps.Logger.With("session_id", id)
	c := cart.New(store.NewCollection[cart.Line](cart.CollectionName, deps.Medium, logger), logger)
	w := wishlist.New(store.NewCollection[wishlist.Entry](wishlist.CollectionName, deps.Medium, logger), logger)

	r := identity.NewResolver()
	r.Subscribe(ctx, c)
	r.Subscribe(ctx, w)

	return &Session{
		ID:       id,
		Identity: r,
		Cart:     c,
		Wishlist: w,
		Checkout: checkout.NewPipeline(deps.Submitter, c, deps.Calculator, logger, deps.CheckoutOptions...),
		lastSeen: time.Now(),
	}
}

// SwitchActor rebinds the stores when the actor changes. It reports whether it did.
func (s *Session) SwitchActor(ctx context.Context, a identity.Actor) bool {
	return s.Identity.SetActor(ctx, a)
}

// Exclusive switches the session to a and runs fn while no other Exclusive call of this
// session runs. fn learns whether the actor changed.
func (s *Session) Exclusive(ctx context.Context, a identity.Actor, fn func(switched bool)) {
	s.exclusive.Lock()
	defer s.exclusive.Unlock()
	fn(s.SwitchActor(ctx, a))
}

// CheckoutSnapshot captures the current cart for submission.
func (s *Session) CheckoutSnapshot() checkout.Snapshot {
	ns, lines := s.Cart.Snapshot()
	return checkout.Snapshot{Namespace: ns, UserID: s.Identity.Actor().ID, Lines: lines}
}

// Submit checks out the current cart.
func (s *Session) Submit(ctx context.Context, form checkout.Form) (checkout.State, error) {
	return s.Checkout.Submit(ctx, form, s.CheckoutSnapshot())
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = now
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

// busy sessions are never evicted.
func (s *Session) busy() bool {
	return s.Checkout.State().Status == checkout.StatusSubmitting
}
