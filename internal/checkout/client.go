package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	checkouterrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/pkg/client"
	"github.com/abgdnv/storefront/pkg/config"
	"github.com/abgdnv/storefront/pkg/web"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
)

const ordersPath = "/api/v1/orders"

// maxErrorBody bounds how much of a rejected response is read.
const maxErrorBody = 64 << 10

// OrderItem references a product. Prices are computed by the order service.
type OrderItem struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

type OrderRequest struct {
	CustomerName    string      `json:"customer_name"`
	CustomerEmail   string      `json:"customer_email"`
	ShippingAddress string      `json:"shipping_address"`
	ShippingCity    string      `json:"shipping_city"`
	ShippingState   string      `json:"shipping_state"`
	ShippingZip     string      `json:"shipping_zip"`
	ShippingCountry string      `json:"shipping_country"`
	Items           []OrderItem `json:"items"`
}

// Confirmation is the order created by the order service.
type Confirmation struct {
	OrderNumber string          `json:"order_number"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Tax         decimal.Decimal `json:"tax"`
	Shipping    decimal.Decimal `json:"shipping"`
	Total       decimal.Decimal `json:"total"`
	Status      string          `json:"status"`
}

// ValidationError carries the field errors returned by the order service.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("%s: %s", checkouterrors.ErrValidationFailed, strings.Join(keys, ", "))
}

func (e *ValidationError) Unwrap() error {
	return checkouterrors.ErrValidationFailed
}

// Submitter sends orders to the order service.
type Submitter interface {
	// SubmitOrder returns a *ValidationError when the order was rejected and an error
	// wrapping ErrTransportFailed for any other failure.
	SubmitOrder(ctx context.Context, userID string, req OrderRequest) (*Confirmation, error)
}

// HTTPSubmitter posts orders to the order service REST API.
type HTTPSubmitter struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*Confirmation]
	logger  *slog.Logger
}

func NewHTTPSubmitter(cfg config.UpstreamConfig, cbCfg config.CircuitBreakerConfig, logger *slog.Logger) *HTTPSubmitter {
	return &HTTPSubmitter{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		client:  client.NewHTTPClient(cfg.Timeout),
		breaker: client.NewCircuitBreaker[*Confirmation]("order-service-cb", cbCfg, isSystemHealthy),
		logger:  logger.With("component", "order_client"),
	}
}

// isSystemHealthy keeps rejected orders from tripping the breaker.
func isSystemHealthy(err error) bool {
	var vErr *ValidationError
	return err == nil || errors.As(err, &vErr)
}

func (s *HTTPSubmitter) SubmitOrder(ctx context.Context, userID string, req OrderRequest) (*Confirmation, error) {
	conf, err := s.breaker.Execute(func() (*Confirmation, error) {
		return s.post(ctx, userID, req)
	})
	if err != nil {
		var vErr *ValidationError
		if errors.As(err, &vErr) || errors.Is(err, checkouterrors.ErrTransportFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", checkouterrors.ErrTransportFailed, err)
	}
	return conf, nil
}

func (s *HTTPSubmitter) post(ctx context.Context, userID string, req OrderRequest) (*Confirmation, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+ordersPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build order request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if userID != "" {
		httpReq.Header.Set(web.XUserId, userID)
	}
	if reqID, ok := web.GetRequestID(ctx); ok {
		httpReq.Header.Set("X-Request-Id", reqID)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", checkouterrors.ErrTransportFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var conf Confirmation
		if err := json.NewDecoder(resp.Body).Decode(&conf); err != nil {
			return nil, fmt.Errorf("%w: unreadable confirmation: %w", checkouterrors.ErrTransportFailed, err)
		}
		return &conf, nil
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if fields := parseFieldErrors(raw); len(fields) > 0 {
			return nil, &ValidationError{Fields: fields}
		}
		s.logger.WarnContext(ctx, "order rejected without field errors", "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: order service returned %d", checkouterrors.ErrTransportFailed, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: order service returned %d", checkouterrors.ErrTransportFailed, resp.StatusCode)
	}
}

// parseFieldErrors accepts {"validation_errors": {...}} or a flat field map.
// Values may be a message or a list of messages.
func parseFieldErrors(raw []byte) map[string]string {
	var envelope struct {
		ValidationErrors map[string]json.RawMessage `json:"validation_errors"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.ValidationErrors) > 0 {
		return flattenMessages(envelope.ValidationErrors)
	}
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil
	}
	// {"error": "..."} and {"message": "..."} are generic rejections, not field errors
	for _, key := range genericErrorKeys {
		if _, ok := flat[key]; ok {
			return nil
		}
	}
	return flattenMessages(flat)
}

var genericErrorKeys = []string{"error", "message"}

func flattenMessages(in map[string]json.RawMessage) map[string]string {
	out := make(map[string]string, len(in))
	for field, v := range in {
		var msg string
		if err := json.Unmarshal(v, &msg); err == nil {
			out[field] = msg
			continue
		}
		var msgs []string
		if err := json.Unmarshal(v, &msgs); err == nil {
			out[field] = strings.Join(msgs, "; ")
			continue
		}
		// nested objects are not field errors
		return nil
	}
	return out
}
