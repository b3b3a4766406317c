package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/abgdnv/storefront/internal/cart"
	checkouterrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/identity"
	"github.com/abgdnv/storefront/internal/pricing"
	"github.com/abgdnv/storefront/internal/store"
	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/abgdnv/storefront/pkg/messaging/events"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type mockSubmitter struct {
	mock.Mock
}

func (m *mockSubmitter) SubmitOrder(ctx context.Context, userID string, req OrderRequest) (*Confirmation, error) {
	args := m.Called(ctx, userID, req)
	conf, _ := args.Get(0).(*Confirmation)
	return conf, args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, event messaging.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

var productB = cart.Product{ID: "B", Name: "Tea", UnitPrice: decimal.RequireFromString("10")}

var form = Form{
	CustomerName:    "Ada",
	CustomerEmail:   "ada@example.com",
	ShippingAddress: "1 Main St",
	ShippingCity:    "Springfield",
	ShippingState:   "IL",
	ShippingZip:     "62701",
	ShippingCountry: "US",
}

type fixture struct {
	cart      *cart.Store
	resolver  *identity.Resolver
	submitter *mockSubmitter
	pipeline  *Pipeline
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)
	c := cart.New(store.NewCollection[cart.Line](cart.CollectionName, store.NewInMemory(), logger), logger)
	r := identity.NewResolver()
	r.Subscribe(ctx, c)
	r.SetActor(ctx, identity.User("42"))
	require.NoError(t, c.AddLine(ctx, productB, 2))

	sub := &mockSubmitter{}
	calc := pricing.NewCalculator(decimal.RequireFromString("0.1"), decimal.NewFromInt(5))
	return &fixture{
		cart:      c,
		resolver:  r,
		submitter: sub,
		pipeline:  NewPipeline(sub, c, calc, logger, opts...),
	}
}

func (f *fixture) snapshot() Snapshot {
	ns, lines := f.cart.Snapshot()
	return Snapshot{Namespace: ns, UserID: f.resolver.Actor().ID, Lines: lines}
}

func waitSettled(t *testing.T, p *Pipeline) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := p.Wait(ctx)
	require.NoError(t, err)
	return st
}

func Test_Submit_EmptyCart(t *testing.T) {
	// given
	f := newFixture(t)
	f.cart.Clear(context.Background())

	// when
	_, err := f.pipeline.Submit(context.Background(), form, f.snapshot())

	// then
	require.ErrorIs(t, err, checkouterrors.ErrEmptyCart)
	assert.Equal(t, StatusIdle, f.pipeline.State().Status)
	f.submitter.AssertNotCalled(t, "SubmitOrder", mock.Anything, mock.Anything, mock.Anything)
}

func Test_Submit_Success(t *testing.T) {
	// given
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(e events.CheckoutCompletedEvent) bool {
		return e.OrderNumber == "ORD-1" && e.Namespace == "user:42" && e.ItemCount == 2 && e.Total == "27.00"
	})).Return(nil).Once()
	f := newFixture(t, WithPublisher(pub))
	conf := &Confirmation{OrderNumber: "ORD-1", Subtotal: decimal.NewFromInt(20), Tax: decimal.NewFromInt(2),
		Shipping: decimal.NewFromInt(5), Total: decimal.NewFromInt(27), Status: "pending"}
	expectedReq := OrderRequest{
		CustomerName: "Ada", CustomerEmail: "ada@example.com", ShippingAddress: "1 Main St",
		ShippingCity: "Springfield", ShippingState: "IL", ShippingZip: "62701", ShippingCountry: "US",
		Items: []OrderItem{{ID: "B", Quantity: 2}},
	}
	f.submitter.On("SubmitOrder", mock.Anything, "42", expectedReq).Return(conf, nil).Once()

	var settled []State
	var mu sync.Mutex
	f.pipeline.OnSettled(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		settled = append(settled, s)
	})

	// when
	st, err := f.pipeline.Submit(context.Background(), form, f.snapshot())

	// then
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitting, st.Status)
	require.NotNil(t, st.Totals)
	assert.True(t, decimal.RequireFromString("27").Equal(st.Totals.Total))

	final := waitSettled(t, f.pipeline)
	assert.Equal(t, StatusSucceeded, final.Status)
	assert.Equal(t, conf, final.Confirmation)
	assert.Zero(t, f.cart.Count(), "cart is cleared after success")
	mu.Lock()
	assert.Len(t, settled, 1)
	mu.Unlock()
	f.submitter.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func Test_Submit_ValidationFailure(t *testing.T) {
	// given
	f := newFixture(t)
	f.submitter.On("SubmitOrder", mock.Anything, "42", mock.Anything).
		Return(nil, &ValidationError{Fields: map[string]string{"shipping_zip": "required"}}).Once()

	// when
	_, err := f.pipeline.Submit(context.Background(), form, f.snapshot())
	require.NoError(t, err)
	final := waitSettled(t, f.pipeline)

	// then
	assert.Equal(t, StatusFailed, final.Status)
	assert.Equal(t, map[string]string{"shipping_zip": "required"}, final.FieldErrors)
	assert.Empty(t, final.Error)
	lines := f.cart.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "B", lines[0].ProductID)
	assert.Equal(t, 2, lines[0].Quantity)
}

func Test_Submit_TransportFailure_NoRetry(t *testing.T) {
	// given
	f := newFixture(t)
	f.submitter.On("SubmitOrder", mock.Anything, "42", mock.Anything).
		Return(nil, fmt.Errorf("%w: connection refused", checkouterrors.ErrTransportFailed)).Once()

	// when
	_, err := f.pipeline.Submit(context.Background(), form, f.snapshot())
	require.NoError(t, err)
	final := waitSettled(t, f.pipeline)

	// then
	assert.Equal(t, StatusFailed, final.Status)
	assert.Equal(t, GenericFailureMessage, final.Error)
	assert.Nil(t, final.FieldErrors)
	assert.Equal(t, 2, f.cart.Count())
	f.submitter.AssertNumberOfCalls(t, "SubmitOrder", 1)
}

func Test_Submit_RejectsWhileInFlight(t *testing.T) {
	// given
	f := newFixture(t)
	release := make(chan time.Time)
	f.submitter.On("SubmitOrder", mock.Anything, "42", mock.Anything).
		WaitUntil(release).
		Return(&Confirmation{OrderNumber: "ORD-2"}, nil).Once()

	// when
	_, err := f.pipeline.Submit(context.Background(), form, f.snapshot())
	require.NoError(t, err)
	_, second := f.pipeline.Submit(context.Background(), form, f.snapshot())

	// then
	require.ErrorIs(t, second, checkouterrors.ErrSubmissionInFlight)
	assert.Equal(t, StatusSubmitting, f.pipeline.State().Status)
	close(release)
	assert.Equal(t, StatusSucceeded, waitSettled(t, f.pipeline).Status)
	f.submitter.AssertNumberOfCalls(t, "SubmitOrder", 1)
}

func Test_Submit_ResubmitAfterFailure(t *testing.T) {
	// given
	f := newFixture(t)
	f.submitter.On("SubmitOrder", mock.Anything, "42", mock.Anything).
		Return(nil, errors.New("boom")).Once()
	f.submitter.On("SubmitOrder", mock.Anything, "42", mock.Anything).
		Return(&Confirmation{OrderNumber: "ORD-3"}, nil).Once()

	// when
	_, err := f.pipeline.Submit(context.Background(), form, f.snapshot())
	require.NoError(t, err)
	first := waitSettled(t, f.pipeline)
	_, err = f.pipeline.Submit(context.Background(), form, f.snapshot())
	require.NoError(t, err)
	second := waitSettled(t, f.pipeline)

	// then
	assert.Equal(t, StatusFailed, first.Status)
	assert.Equal(t, StatusSucceeded, second.Status)
	assert.Empty(t, second.Error)
}

func Test_Submit_SurvivesCallerCancellation(t *testing.T) {
	// given
	f := newFixture(t)
	f.submitter.On("SubmitOrder", mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil }), "42", mock.Anything).
		Return(&Confirmation{OrderNumber: "ORD-4"}, nil).Once()
	ctx, cancel := context.WithCancel(context.Background())

	// when
	_, err := f.pipeline.Submit(ctx, form, f.snapshot())
	cancel()

	// then
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, waitSettled(t, f.pipeline).Status)
}

func Test_Submit_ClearsCheckedOutNamespace(t *testing.T) {
	// given
	f := newFixture(t)
	release := make(chan time.Time)
	f.submitter.On("SubmitOrder", mock.Anything, "42", mock.Anything).
		WaitUntil(release).
		Return(&Confirmation{OrderNumber: "ORD-5"}, nil).Once()
	_, err := f.pipeline.Submit(context.Background(), form, f.snapshot())
	require.NoError(t, err)

	// when
	f.resolver.SetActor(context.Background(), identity.User("99"))
	require.NoError(t, f.cart.AddLine(context.Background(), productB, 1))
	close(release)
	waitSettled(t, f.pipeline)

	// then
	assert.Equal(t, 1, f.cart.Count(), "cart of the new actor is untouched")
	f.resolver.SetActor(context.Background(), identity.User("42"))
	assert.Zero(t, f.cart.Count())
}

func Test_Wait_Idle(t *testing.T) {
	f := newFixture(t)
	st, err := f.pipeline.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, st.Status)
}

func Test_Metrics(t *testing.T) {
	// given
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(provider.Meter("checkout-test"))
	require.NoError(t, err)
	f := newFixture(t, WithMetrics(m))
	f.submitter.On("SubmitOrder", mock.Anything, "42", mock.Anything).
		Return(nil, &ValidationError{Fields: map[string]string{"customer_email": "invalid"}}).Once()

	// when
	_, err = f.pipeline.Submit(context.Background(), form, f.snapshot())
	require.NoError(t, err)
	waitSettled(t, f.pipeline)

	// then
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var found bool
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != "storefront.checkout.submissions" {
				continue
			}
			sum, ok := md.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			require.Len(t, sum.DataPoints, 1)
			outcome, _ := sum.DataPoints[0].Attributes.Value("outcome")
			assert.Equal(t, "validation_failed", outcome.AsString())
			assert.Equal(t, int64(1), sum.DataPoints[0].Value)
			found = true
		}
	}
	assert.True(t, found)
}
