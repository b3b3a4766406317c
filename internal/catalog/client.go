// Package catalog fetches product display data from the catalog service.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/abgdnv/storefront/internal/cart"
	catalogerrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/wishlist"
	"github.com/abgdnv/storefront/pkg/client"
	"github.com/abgdnv/storefront/pkg/config"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
)

const productsPath = "/api/v1/products/"

// Product is the catalog view of a product. Price is in cents.
type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Price       int64  `json:"price"`
	ImageURL    string `json:"image_url"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Slug        string `json:"slug"`
}

func (p Product) UnitPrice() decimal.Decimal {
	return decimal.New(p.Price, -2)
}

// CartProduct is the snapshot stored on a cart line.
func (p Product) CartProduct() cart.Product {
	return cart.Product{
		ID:          p.ID,
		Name:        p.Name,
		UnitPrice:   p.UnitPrice(),
		ImageRef:    p.ImageURL,
		Description: p.Description,
		Category:    p.Category,
	}
}

// WishlistEntry is the snapshot stored on a wishlist entry.
func (p Product) WishlistEntry() wishlist.Entry {
	return wishlist.Entry{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.UnitPrice(),
		ImageRef:  p.ImageURL,
		Slug:      p.Slug,
	}
}

// Finder looks products up by id.
type Finder interface {
	FindProduct(ctx context.Context, id string) (*Product, error)
}

type Client struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*Product]
	logger  *slog.Logger
}

func NewClient(cfg config.UpstreamConfig, cbCfg config.CircuitBreakerConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		client:  client.NewHTTPClient(cfg.Timeout),
		breaker: client.NewCircuitBreaker[*Product]("catalog-cb", cbCfg, func(err error) bool {
			return err == nil || errors.Is(err, catalogerrors.ErrProductNotFound)
		}),
		logger: logger.With("component", "catalog_client"),
	}
}

// FindProduct returns ErrProductNotFound for unknown ids and ErrCatalogUnavailable
// when the catalog could not answer.
func (c *Client) FindProduct(ctx context.Context, id string) (*Product, error) {
	p, err := c.breaker.Execute(func() (*Product, error) {
		return c.get(ctx, id)
	})
	if err != nil {
		if errors.Is(err, catalogerrors.ErrProductNotFound) || errors.Is(err, catalogerrors.ErrCatalogUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", catalogerrors.ErrCatalogUnavailable, err)
	}
	return p, nil
}

func (c *Client) get(ctx context.Context, id string) (*Product, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+productsPath+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", catalogerrors.ErrCatalogUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, catalogerrors.ErrProductNotFound
	default:
		c.logger.WarnContext(ctx, "catalog returned unexpected status", "product_id", id, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: catalog returned %d", catalogerrors.ErrCatalogUnavailable, resp.StatusCode)
	}

	var p Product
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: unreadable product: %w", catalogerrors.ErrCatalogUnavailable, err)
	}
	if p.ID == "" {
		p.ID = id
	}
	return &p, nil
}
