// Package checkout submits a cart snapshot to the order service and tracks the outcome.
package checkout

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/abgdnv/storefront/internal/cart"
	checkouterrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/identity"
	"github.com/abgdnv/storefront/internal/pricing"
	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/abgdnv/storefront/pkg/messaging/events"
)

// GenericFailureMessage is shown when the order could not be submitted for a reason other than field errors.
const GenericFailureMessage = "Your order could not be placed. Please try again."

type Status string

const (
	StatusIdle       Status = "idle"
	StatusSubmitting Status = "submitting"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// Form holds the contact and shipping fields entered at checkout.
type Form struct {
	CustomerName    string `json:"customer_name"`
	CustomerEmail   string `json:"customer_email"`
	ShippingAddress string `json:"shipping_address"`
	ShippingCity    string `json:"shipping_city"`
	ShippingState   string `json:"shipping_state"`
	ShippingZip     string `json:"shipping_zip"`
	ShippingCountry string `json:"shipping_country"`
}

// Snapshot is the cart being checked out and who owns it.
type Snapshot struct {
	Namespace identity.Namespace
	UserID    string
	Lines     []cart.Line
}

// State is the pipeline state seen by callers.
type State struct {
	Status       Status            `json:"status"`
	FieldErrors  map[string]string `json:"field_errors,omitempty"`
	Error        string            `json:"error,omitempty"`
	Totals       *pricing.Totals   `json:"totals,omitempty"`
	Confirmation *Confirmation     `json:"confirmation,omitempty"`
}

func (s State) clone() State {
	if s.FieldErrors != nil {
		s.FieldErrors = maps.Clone(s.FieldErrors)
	}
	return s
}

// CartClearer empties the cart persisted for a namespace.
type CartClearer interface {
	ClearNamespace(ctx context.Context, ns identity.Namespace) error
}

type Option func(*Pipeline)

// WithPublisher publishes a completion event after every successful checkout.
func WithPublisher(p messaging.Publisher) Option {
	return func(pl *Pipeline) { pl.publisher = p }
}

// WithMetrics records submission outcomes.
func WithMetrics(m *Metrics) Option {
	return func(pl *Pipeline) { pl.metrics = m }
}

// WithTimeout bounds a submission. Zero leaves it to the submitter.
func WithTimeout(d time.Duration) Option {
	return func(pl *Pipeline) { pl.timeout = d }
}

// Pipeline runs at most one submission at a time. Submissions are not cancelled
// once dispatched and are never retried automatically.
type Pipeline struct {
	mu        sync.Mutex
	state     State
	done      chan struct{}
	onSettled func(State)

	submitter  Submitter
	cart       CartClearer
	calculator pricing.Calculator
	publisher  messaging.Publisher
	metrics    *Metrics
	timeout    time.Duration
	logger     *slog.Logger
}

func NewPipeline(submitter Submitter, cart CartClearer, calculator pricing.Calculator, logger *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		state:      State{Status: StatusIdle},
		submitter:  submitter,
		cart:       cart,
		calculator: calculator,
		logger:     logger.With("component", "checkout"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OnSettled registers fn to be called with the terminal state of every submission.
func (p *Pipeline) OnSettled(fn func(State)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onSettled = fn
}

func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.clone()
}

// Submit validates the snapshot, moves to Submitting and dispatches the order in the
// background. It returns the Submitting state without waiting for the order service.
func (p *Pipeline) Submit(ctx context.Context, form Form, snap Snapshot) (State, error) {
	if len(snap.Lines) == 0 {
		return State{}, checkouterrors.ErrEmptyCart
	}

	p.mu.Lock()
	if p.state.Status == StatusSubmitting {
		p.mu.Unlock()
		return State{}, checkouterrors.ErrSubmissionInFlight
	}
	totals := p.calculator.Calculate(cart.ToItems(snap.Lines))
	p.state = State{Status: StatusSubmitting, Totals: &totals}
	p.done = make(chan struct{})
	done := p.done
	state := p.state.clone()
	p.mu.Unlock()

	req := buildRequest(form, snap.Lines)
	go p.dispatch(context.WithoutCancel(ctx), snap, req, done)

	return state, nil
}

// Wait blocks until the current submission settles or ctx is done.
func (p *Pipeline) Wait(ctx context.Context) (State, error) {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return p.State(), ctx.Err()
		}
	}
	return p.State(), nil
}

func buildRequest(form Form, lines []cart.Line) OrderRequest {
	items := make([]OrderItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, OrderItem{ID: l.ProductID, Quantity: l.Quantity})
	}
	return OrderRequest{
		CustomerName:    form.CustomerName,
		CustomerEmail:   form.CustomerEmail,
		ShippingAddress: form.ShippingAddress,
		ShippingCity:    form.ShippingCity,
		ShippingState:   form.ShippingState,
		ShippingZip:     form.ShippingZip,
		ShippingCountry: form.ShippingCountry,
		Items:           items,
	}
}

func (p *Pipeline) dispatch(ctx context.Context, snap Snapshot, req OrderRequest, done chan struct{}) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	started := time.Now()
	conf, err := p.submitter.SubmitOrder(ctx, snap.UserID, req)

	p.mu.Lock()
	next := State{Totals: p.state.Totals}
	var vErr *ValidationError
	var outcome string
	switch {
	case err == nil:
		next.Status = StatusSucceeded
		next.Confirmation = conf
		outcome = "succeeded"
	case errors.As(err, &vErr):
		next.Status = StatusFailed
		next.FieldErrors = maps.Clone(vErr.Fields)
		outcome = "validation_failed"
	default:
		next.Status = StatusFailed
		next.Error = GenericFailureMessage
		outcome = "transport_failed"
	}
	p.mu.Unlock()

	if err == nil {
		p.complete(ctx, snap, conf)
	} else {
		p.logger.WarnContext(ctx, "checkout failed", "namespace", snap.Namespace, "outcome", outcome, "error", err)
	}
	p.metrics.record(ctx, outcome, time.Since(started))

	p.mu.Lock()
	p.state = next
	onSettled := p.onSettled
	close(done)
	p.mu.Unlock()

	if onSettled != nil {
		onSettled(next.clone())
	}
}

// complete clears the checked out cart and announces the order.
func (p *Pipeline) complete(ctx context.Context, snap Snapshot, conf *Confirmation) {
	p.logger.InfoContext(ctx, "checkout succeeded", "namespace", snap.Namespace, "order_number", conf.OrderNumber)

	if err := p.cart.ClearNamespace(ctx, snap.Namespace); err != nil {
		p.logger.ErrorContext(ctx, "failed to clear cart after checkout", "namespace", snap.Namespace, "error", err)
	}
	if p.publisher == nil {
		return
	}
	count := 0
	for _, l := range snap.Lines {
		count += l.Quantity
	}
	event := events.CheckoutCompletedEvent{
		OrderNumber: conf.OrderNumber,
		Namespace:   snap.Namespace.String(),
		Status:      conf.Status,
		Total:       conf.Total.StringFixed(2),
		ItemCount:   count,
		CompletedAt: time.Now().UTC(),
	}
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.logger.WarnContext(ctx, "failed to publish checkout event", "order_number", conf.OrderNumber, "error", err)
	}
}
