// Package identity maps the acting user to the storage namespace their collections live under.
package identity

import (
	"context"
	"strings"
	"sync"
)

// GuestNamespace is shared by every anonymous actor.
const GuestNamespace Namespace = "guest"

const userPrefix = "user:"

// Namespace partitions persisted collections by actor.
type Namespace string

// IsGuest reports whether the namespace belongs to an anonymous actor.
func (n Namespace) IsGuest() bool {
	return !strings.HasPrefix(string(n), userPrefix)
}

func (n Namespace) String() string {
	return string(n)
}

// Actor is the current user. An empty ID means anonymous.
type Actor struct {
	ID string
}

func Anonymous() Actor {
	return Actor{}
}

func User(id string) Actor {
	return Actor{ID: id}
}

func (a Actor) IsAnonymous() bool {
	return strings.TrimSpace(a.ID) == ""
}

// NamespaceOf returns the namespace for the actor. Distinct user ids never collide
// with each other or with the guest namespace.
func NamespaceOf(a Actor) Namespace {
	if a.IsAnonymous() {
		return GuestNamespace
	}
	return Namespace(userPrefix + a.ID)
}

// Listener rehydrates its state from the given namespace.
type Listener interface {
	Rehydrate(ctx context.Context, ns Namespace)
}

// Resolver tracks the current actor and notifies listeners when the namespace changes.
type Resolver struct {
	mu        sync.Mutex
	actor     Actor
	listeners []Listener
}

// NewResolver starts with an anonymous actor.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Subscribe registers l and hydrates it with the current namespace.
func (r *Resolver) Subscribe(ctx context.Context, l Listener) {
	r.mu.Lock()
	r.listeners = append(r.listeners, l)
	ns := NamespaceOf(r.actor)
	r.mu.Unlock()

	l.Rehydrate(ctx, ns)
}

func (r *Resolver) Actor() Actor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.actor
}

func (r *Resolver) Namespace() Namespace {
	return NamespaceOf(r.Actor())
}

// SetActor switches the current actor. Listeners are rehydrated only when the namespace changes.
// It reports whether a switch happened.
func (r *Resolver) SetActor(ctx context.Context, a Actor) bool {
	r.mu.Lock()
	if NamespaceOf(a) == NamespaceOf(r.actor) {
		r.mu.Unlock()
		return false
	}
	r.actor = a
	ns := NamespaceOf(a)
	listeners := make([]Listener, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()

	for _, l := range listeners {
		l.Rehydrate(ctx, ns)
	}
	return true
}
