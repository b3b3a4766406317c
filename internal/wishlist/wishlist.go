// Package wishlist keeps the saved-for-later products of a session.
package wishlist

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	wlerrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/identity"
	"github.com/abgdnv/storefront/internal/store"
	"github.com/shopspring/decimal"
)

// CollectionName is the storage key prefix of persisted wishlists.
const CollectionName = "wishlist"

// Entry is a product snapshot taken when it was added. Membership only.
type Entry struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	ImageRef  string          `json:"image_ref"`
	Slug      string          `json:"slug"`
}

// Store is the wishlist of the current namespace. Guests have one too.
// Like the cart, it does not write over a namespace it failed to read.
type Store struct {
	mu         sync.Mutex
	ns         identity.Namespace
	entries    []Entry
	loaded     bool
	collection *store.Collection[Entry]
	logger     *slog.Logger
}

func New(collection *store.Collection[Entry], logger *slog.Logger) *Store {
	return &Store{
		ns:         identity.GuestNamespace,
		entries:    []Entry{},
		collection: collection,
		logger:     logger.With("component", "wishlist"),
	}
}

// Rehydrate discards the in-memory entries and loads the collection persisted for ns.
func (s *Store) Rehydrate(ctx context.Context, ns identity.Namespace) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ns = ns
	s.entries = []Entry{}
	s.loaded = false
	if err := s.load(ctx); err != nil {
		s.logger.WarnContext(ctx, "wishlist not loaded, writes wait for storage", "namespace", ns, "error", err)
	}
}

// load must be called with mu held.
func (s *Store) load(ctx context.Context) error {
	entries, err := s.collection.Fetch(ctx, s.ns)
	if err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(entries))
	s.entries = make([]Entry, 0, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.ProductID]; dup || strings.TrimSpace(e.ProductID) == "" {
			continue
		}
		seen[e.ProductID] = struct{}{}
		s.entries = append(s.entries, e)
	}
	if len(s.entries) != len(entries) {
		s.logger.WarnContext(ctx, "repaired stored wishlist", "namespace", s.ns, "error", wlerrors.ErrStorageCorrupt)
	}
	s.loaded = true
	return nil
}

// ensureLoaded must be called with mu held.
func (s *Store) ensureLoaded(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	return s.load(ctx)
}

// Add reports whether e was added. Adding a present product is a no-op.
func (s *Store) Add(ctx context.Context, e Entry) (bool, error) {
	if strings.TrimSpace(e.ProductID) == "" {
		return false, wlerrors.ErrInvalidProduct
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx); err != nil {
		return false, err
	}
	if s.indexOf(e.ProductID) >= 0 {
		return false, nil
	}
	s.entries = append(s.entries, e)
	s.persist(ctx)
	return true, nil
}

// Remove reports whether productID was removed.
func (s *Store) Remove(ctx context.Context, productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ensureLoaded(ctx) != nil {
		return false
	}
	i := s.indexOf(productID)
	if i < 0 {
		return false
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	s.persist(ctx)
	return true
}

// Toggle adds e when absent and removes it when present. It returns the resulting membership.
func (s *Store) Toggle(ctx context.Context, e Entry) (bool, error) {
	if strings.TrimSpace(e.ProductID) == "" {
		return false, wlerrors.ErrInvalidProduct
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx); err != nil {
		return false, err
	}
	if i := s.indexOf(e.ProductID); i >= 0 {
		s.entries = append(s.entries[:i], s.entries[i+1:]...)
		s.persist(ctx)
		return false, nil
	}
	s.entries = append(s.entries, e)
	s.persist(ctx)
	return true, nil
}

func (s *Store) Contains(productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOf(productID) >= 0
}

func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Entries returns a copy of all entries in insertion order.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, len(s.entries))
	copy(entries, s.entries)
	return entries
}

// Page returns at most limit entries starting at offset, and the total count.
func (s *Store) Page(offset, limit int) ([]Entry, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(s.entries)
	if offset >= total || limit <= 0 {
		return []Entry{}, total
	}
	end := min(offset+limit, total)
	page := make([]Entry, end-offset)
	copy(page, s.entries[offset:end])
	return page, total
}

func (s *Store) indexOf(productID string) int {
	for i, e := range s.entries {
		if e.ProductID == productID {
			return i
		}
	}
	return -1
}

// persist must be called with mu held.
func (s *Store) persist(ctx context.Context) {
	if err := s.collection.Save(ctx, s.ns, s.entries); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist wishlist", "namespace", s.ns, "error", err)
	}
}
