// Package cart holds the shopping cart of one session, persisted per identity namespace.
package cart

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	carterrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/identity"
	"github.com/abgdnv/storefront/internal/pricing"
	"github.com/abgdnv/storefront/internal/store"
	"github.com/shopspring/decimal"
)

// CollectionName is the storage key prefix of persisted carts.
const CollectionName = "cart"

// Direction of a single step quantity change.
type Direction string

const (
	Increment Direction = "increment"
	Decrement Direction = "decrement"
)

func (d Direction) Valid() bool {
	return d == Increment || d == Decrement
}

// Product is the catalog snapshot captured when a line is added.
type Product struct {
	ID          string
	Name        string
	UnitPrice   decimal.Decimal
	ImageRef    string
	Description string
	Category    string
}

// Line is one product in the cart. A cart has at most one line per ProductID.
type Line struct {
	ProductID   string          `json:"product_id"`
	Name        string          `json:"name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	ImageRef    string          `json:"image_ref"`
	Quantity    int             `json:"quantity"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category,omitempty"`
}

// Store is the cart of the current namespace. Every mutation is persisted immediately;
// a failed write is logged and the in-memory state stays authoritative.
// A cart whose namespace could not be read is not loaded: mutations retry the read
// first so an unreachable medium never has its cart overwritten.
type Store struct {
	mu         sync.Mutex
	ns         identity.Namespace
	lines      []Line
	loaded     bool
	collection *store.Collection[Line]
	logger     *slog.Logger
}

// New returns an empty cart for the guest namespace. Subscribe it to an identity.Resolver
// to hydrate it.
func New(collection *store.Collection[Line], logger *slog.Logger) *Store {
	return &Store{
		ns:         identity.GuestNamespace,
		lines:      []Line{},
		collection: collection,
		logger:     logger.With("component", "cart"),
	}
}

// Rehydrate discards the in-memory lines and loads the collection persisted for ns.
func (s *Store) Rehydrate(ctx context.Context, ns identity.Namespace) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ns = ns
	s.lines = []Line{}
	s.loaded = false
	if err := s.load(ctx); err != nil {
		s.logger.WarnContext(ctx, "cart not loaded, writes wait for storage", "namespace", ns, "error", err)
	}
}

// load must be called with mu held.
func (s *Store) load(ctx context.Context) error {
	lines, err := s.collection.Fetch(ctx, s.ns)
	if err != nil {
		return err
	}
	lines, repaired := normalize(lines)
	if repaired {
		s.logger.WarnContext(ctx, "repaired stored cart", "namespace", s.ns, "error", carterrors.ErrStorageCorrupt)
	}
	s.lines = lines
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

// normalize keeps one line per product with a positive quantity, merging duplicates
// in place. Lines without a product id or with a negative price are dropped.
func normalize(lines []Line) ([]Line, bool) {
	out := make([]Line, 0, len(lines))
	index := make(map[string]int, len(lines))
	repaired := false
	for _, l := range lines {
		if strings.TrimSpace(l.ProductID) == "" || l.UnitPrice.IsNegative() {
			repaired = true
			continue
		}
		if l.Quantity < 1 {
			l.Quantity = 1
			repaired = true
		}
		if i, ok := index[l.ProductID]; ok {
			out[i].Quantity += l.Quantity
			repaired = true
			continue
		}
		index[l.ProductID] = len(out)
		out = append(out, l)
	}
	return out, repaired
}

func (s *Store) Namespace() identity.Namespace {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ns
}

// AddLine adds qty of p. An existing line keeps its position and accumulates the quantity.
func (s *Store) AddLine(ctx context.Context, p Product, qty int) error {
	if strings.TrimSpace(p.ID) == "" {
		return carterrors.ErrInvalidProduct
	}
	if p.UnitPrice.IsNegative() {
		return carterrors.ErrNegativePrice
	}
	qty = max(qty, 1)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ns.IsGuest() {
		return carterrors.ErrIdentityRequired
	}
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	if i := s.indexOf(p.ID); i >= 0 {
		s.lines[i].Quantity += qty
	} else {
		s.lines = append(s.lines, Line{
			ProductID:   p.ID,
			Name:        p.Name,
			UnitPrice:   p.UnitPrice,
			ImageRef:    p.ImageRef,
			Quantity:    qty,
			Description: p.Description,
			Category:    p.Category,
		})
	}
	s.persist(ctx)
	return nil
}

// UpdateQuantity steps the quantity by one. Quantity never drops below 1.
// It reports whether productID is in the cart.
func (s *Store) UpdateQuantity(ctx context.Context, productID string, dir Direction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ensureLoaded(ctx) != nil {
		return false
	}
	i := s.indexOf(productID)
	if i < 0 {
		return false
	}
	switch dir {
	case Increment:
		s.lines[i].Quantity++
	case Decrement:
		if s.lines[i].Quantity <= 1 {
			return true
		}
		s.lines[i].Quantity--
	default:
		return true
	}
	s.persist(ctx)
	return true
}

// RemoveLine reports whether a line was removed.
func (s *Store) RemoveLine(ctx context.Context, productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ensureLoaded(ctx) != nil {
		return false
	}
	i := s.indexOf(productID)
	if i < 0 {
		return false
	}
	s.lines = append(s.lines[:i], s.lines[i+1:]...)
	s.persist(ctx)
	return true
}

func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = []Line{}
	s.loaded = true
	s.persist(ctx)
}

// ClearNamespace empties the cart persisted for ns. If ns is no longer the current
// namespace only the persisted collection is emptied.
func (s *Store) ClearNamespace(ctx context.Context, ns identity.Namespace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ns == s.ns {
		s.lines = []Line{}
		s.loaded = true
	}
	if err := s.collection.Save(ctx, ns, []Line{}); err != nil {
		return fmt.Errorf("failed to clear cart %s: %w", ns, err)
	}
	return nil
}

// Total is Σ unitPrice × quantity.
func (s *Store) Total() decimal.Decimal {
	return pricing.Subtotal(s.Items())
}

// Count is Σ quantity.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, l := range s.lines {
		n += l.Quantity
	}
	return n
}

func (s *Store) Contains(productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOf(productID) >= 0
}

// Lines returns a copy of the cart lines in insertion order.
func (s *Store) Lines() []Line {
	_, lines := s.Snapshot()
	return lines
}

// Snapshot returns the namespace and a copy of its lines, read atomically.
func (s *Store) Snapshot() (identity.Namespace, []Line) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := make([]Line, len(s.lines))
	copy(lines, s.lines)
	return s.ns, lines
}

// Items converts the lines for pricing.
func (s *Store) Items() []pricing.Item {
	return ToItems(s.Lines())
}

func ToItems(lines []Line) []pricing.Item {
	items := make([]pricing.Item, 0, len(lines))
	for _, l := range lines {
		items = append(items, pricing.Item{UnitPrice: l.UnitPrice, Quantity: l.Quantity})
	}
	return items
}

func (s *Store) indexOf(productID string) int {
	for i, l := range s.lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

// persist must be called with mu held.
func (s *Store) persist(ctx context.Context) {
	if err := s.collection.Save(ctx, s.ns, s.lines); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist cart", "namespace", s.ns, "error", err)
	}
}
