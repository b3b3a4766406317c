// Package rest exposes the session cart, wishlist and checkout over HTTP.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/abgdnv/storefront/internal/checkout"
	sferrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/identity"
	"github.com/abgdnv/storefront/internal/pricing"
	"github.com/abgdnv/storefront/internal/session"
	"github.com/abgdnv/storefront/internal/wishlist"
	"github.com/abgdnv/storefront/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// SessionHeader carries the session id in both directions.
const SessionHeader = "X-Session-Id"

const defaultPageSize = 20

type sessionKey struct{}

// ReadinessCheck reports whether a dependency can serve requests.
type ReadinessCheck func(ctx context.Context) error

type Handler struct {
	sessions   *session.Manager
	catalog    catalog.Finder
	calculator pricing.Calculator
	readiness  ReadinessCheck
	validate   *validator.Validate
	logger     *slog.Logger
}

func NewHandler(sessions *session.Manager, finder catalog.Finder, calculator pricing.Calculator, readiness ReadinessCheck, logger *slog.Logger) *Handler {
	return &Handler{
		sessions:   sessions,
		catalog:    finder,
		calculator: calculator,
		readiness:  readiness,
		validate:   validator.New(),
		logger:     logger.With("component", "rest"),
	}
}

// RegisterRoutes mounts the API. identity resolves the actor of each request.
func (h *Handler) RegisterRoutes(r chi.Router, identity func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(identity)
		r.Use(h.SessionMiddleware)
		r.Route("/api/v1", func(r chi.Router) {
			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.GetCart)
				r.Delete("/", h.ClearCart)
				r.Get("/totals", h.GetTotals)
				r.Post("/items", h.AddItem)
				r.Patch("/items/{productID}", h.UpdateItem)
				r.Delete("/items/{productID}", h.RemoveItem)
			})
			r.Route("/wishlist", func(r chi.Router) {
				r.Get("/", h.GetWishlist)
				r.Post("/toggle", h.ToggleWishlist)
				r.Delete("/{productID}", h.RemoveWishlistEntry)
			})
			r.Route("/checkout", func(r chi.Router) {
				r.Post("/", h.Checkout)
				r.Get("/", h.CheckoutState)
			})
		})
	})
	r.Get("/healthz", h.HealthCheck)
	r.Get("/readyz", h.ReadinessCheck)
}

// SessionMiddleware binds the request to its session and switches the session actor
// to the one resolved for this request. Requests of one session run one at a time.
func (h *Handler) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		s := h.sessions.Acquire(ctx, r.Header.Get(SessionHeader))
		s.Exclusive(ctx, identity.User(web.ActorID(ctx)), func(switched bool) {
			if switched {
				h.logger.DebugContext(ctx, "session actor changed", "session_id", s.ID, "namespace", s.Identity.Namespace())
			}
			w.Header().Set(SessionHeader, s.ID)
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, sessionKey{}, s)))
		})
	})
}

func sessionFrom(r *http.Request) *session.Session {
	s, _ := r.Context().Value(sessionKey{}).(*session.Session)
	return s
}

type CartView struct {
	Namespace string          `json:"namespace"`
	Lines     []cart.Line     `json:"lines"`
	Count     int             `json:"count"`
	Total     decimal.Decimal `json:"total"`
}

type WishlistView struct {
	Entries []wishlist.Entry `json:"entries"`
	Count   int              `json:"count"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

type AddItemRequest struct {
	ProductID string `json:"product_id" validate:"required,max=128"`
	Quantity  int    `json:"quantity" validate:"gte=0,lte=999"`
}

type UpdateItemRequest struct {
	Direction string `json:"direction" validate:"required,oneof=increment decrement"`
}

type ToggleRequest struct {
	ProductID string `json:"product_id" validate:"required,max=128"`
}

type ToggleResponse struct {
	ProductID  string `json:"product_id"`
	InWishlist bool   `json:"in_wishlist"`
	Count      int    `json:"count"`
}

func cartView(s *session.Session) CartView {
	ns, lines := s.Cart.Snapshot()
	count := 0
	for _, l := range lines {
		count += l.Quantity
	}
	return CartView{
		Namespace: ns.String(),
		Lines:     lines,
		Count:     count,
		Total:     pricing.Subtotal(cart.ToItems(lines)).Round(2),
	}
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	web.RespondJSON(w, h.logger, http.StatusOK, cartView(sessionFrom(r)))
}

func (h *Handler) GetTotals(w http.ResponseWriter, r *http.Request) {
	totals := h.calculator.Calculate(sessionFrom(r).Cart.Items())
	web.RespondJSON(w, h.logger, http.StatusOK, totals)
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	s.Cart.Clear(r.Context())
	web.RespondJSON(w, h.logger, http.StatusOK, cartView(s))
}

// AddItem captures the catalog snapshot of a product and adds it to the cart.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req AddItemRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	s := sessionFrom(r)
	if s.Identity.Namespace().IsGuest() {
		h.logger.DebugContext(ctx, "guest tried to add to cart", "session_id", s.ID)
		web.RespondError(w, h.logger, http.StatusUnauthorized, "Sign in to add items to your cart")
		return
	}

	product, err := h.catalog.FindProduct(ctx, req.ProductID)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	if err := s.Cart.AddLine(ctx, product.CartProduct(), req.Quantity); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	h.logger.InfoContext(ctx, "item added to cart", "product_id", req.ProductID, "quantity", max(req.Quantity, 1))
	web.RespondJSON(w, h.logger, http.StatusOK, cartView(s))
}

func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req UpdateItemRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	s := sessionFrom(r)
	s.Cart.UpdateQuantity(r.Context(), chi.URLParam(r, "productID"), cart.Direction(req.Direction))
	web.RespondJSON(w, h.logger, http.StatusOK, cartView(s))
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	s.Cart.RemoveLine(r.Context(), chi.URLParam(r, "productID"))
	web.RespondJSON(w, h.logger, http.StatusOK, cartView(s))
}

func (h *Handler) GetWishlist(w http.ResponseWriter, r *http.Request) {
	limit, ok := web.ParseOptionalGt(r, w, h.logger, "limit", 0, defaultPageSize)
	if !ok {
		return
	}
	offset, ok := web.ParseOptionalGte(r, w, h.logger, "offset", 0, 0)
	if !ok {
		return
	}
	entries, total := sessionFrom(r).Wishlist.Page(offset, limit)
	web.RespondJSON(w, h.logger, http.StatusOK, WishlistView{Entries: entries, Count: total, Limit: limit, Offset: offset})
}

// ToggleWishlist removes a saved product or saves it with its current catalog snapshot.
func (h *Handler) ToggleWishlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ToggleRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	s := sessionFrom(r)

	entry := wishlist.Entry{ProductID: req.ProductID}
	if !s.Wishlist.Contains(req.ProductID) {
		product, err := h.catalog.FindProduct(ctx, req.ProductID)
		if err != nil {
			h.respondDomainError(w, r, err)
			return
		}
		entry = product.WishlistEntry()
	}
	in, err := s.Wishlist.Toggle(ctx, entry)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, ToggleResponse{ProductID: req.ProductID, InWishlist: in, Count: s.Wishlist.Count()})
}

func (h *Handler) RemoveWishlistEntry(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	productID := chi.URLParam(r, "productID")
	s.Wishlist.Remove(r.Context(), productID)
	web.RespondJSON(w, h.logger, http.StatusOK, ToggleResponse{ProductID: productID, InWishlist: false, Count: s.Wishlist.Count()})
}

// Checkout starts the submission of the current cart and answers before the order service does.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var form checkout.Form
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		h.logger.WarnContext(ctx, "Error decoding request body", "error", err)
		web.RespondError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}
	s := sessionFrom(r)
	state, err := s.Submit(ctx, form)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	h.logger.InfoContext(ctx, "checkout submitted", "session_id", s.ID, "namespace", s.Identity.Namespace())
	web.RespondJSON(w, h.logger, http.StatusAccepted, state)
}

func (h *Handler) CheckoutState(w http.ResponseWriter, r *http.Request) {
	web.RespondJSON(w, h.logger, http.StatusOK, sessionFrom(r).Checkout.State())
}

// HealthCheck is a simple health check endpoint.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// ReadinessCheck reports whether storage and messaging are reachable.
func (h *Handler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if h.readiness != nil {
		if err := h.readiness(r.Context()); err != nil {
			h.logger.WarnContext(r.Context(), "not ready", "error", err)
			web.RespondError(w, h.logger, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.WarnContext(ctx, "Error decoding request body", "error", err)
		web.RespondError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			errorResponse := make(map[string]string)
			for _, fieldErr := range validationErrors {
				errorResponse[fieldErr.Field()] = "failed on rule: " + fieldErr.Tag()
			}
			h.logger.WarnContext(ctx, "Validation errors occurred", "errors", errorResponse)
			web.RespondValidationErrors(w, h.logger, http.StatusBadRequest, errorResponse)
			return false
		}
		h.logger.ErrorContext(ctx, "Error validating request body", "error", err)
		web.RespondError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (h *Handler) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, sferrors.ErrIdentityRequired):
		web.RespondError(w, h.logger, http.StatusUnauthorized, "Sign in to add items to your cart")
	case errors.Is(err, sferrors.ErrInvalidProduct), errors.Is(err, sferrors.ErrNegativePrice):
		web.RespondError(w, h.logger, http.StatusBadRequest, err.Error())
	case errors.Is(err, sferrors.ErrProductNotFound):
		web.RespondError(w, h.logger, http.StatusNotFound, "Product not found")
	case errors.Is(err, sferrors.ErrCatalogUnavailable):
		h.logger.ErrorContext(ctx, "catalog unavailable", "error", err)
		web.RespondError(w, h.logger, http.StatusBadGateway, "Product catalog is unavailable")
	case errors.Is(err, sferrors.ErrStorageUnavailable):
		h.logger.ErrorContext(ctx, "storage unavailable", "error", err)
		web.RespondError(w, h.logger, http.StatusServiceUnavailable, "Storage is unavailable, try again later")
	case errors.Is(err, sferrors.ErrEmptyCart):
		web.RespondError(w, h.logger, http.StatusBadRequest, "Your cart is empty")
	case errors.Is(err, sferrors.ErrSubmissionInFlight):
		web.RespondError(w, h.logger, http.StatusConflict, "An order is already being submitted")
	default:
		h.logger.ErrorContext(ctx, "unexpected error", "error", err)
		web.RespondError(w, h.logger, http.StatusInternalServerError, "Internal Server Error")
	}
}
