package store

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	storeerrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID  string `json:"id"`
	Qty int    `json:"qty"`
}

type mockMedium struct {
	mock.Mock
}

func (m *mockMedium) Get(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *mockMedium) Set(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func newLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, nil))
}

func Test_Key(t *testing.T) {
	assert.Equal(t, "cart/user:7", Key("cart", identity.NamespaceOf(identity.User("7"))))
	assert.Equal(t, "wishlist/guest", Key("wishlist", identity.GuestNamespace))
}

func Test_Collection_SaveLoad(t *testing.T) {
	// given
	ctx := context.Background()
	var buf bytes.Buffer
	medium := NewInMemory()
	c := NewCollection[item]("cart", medium, newLogger(&buf))
	ns := identity.NamespaceOf(identity.User("1"))

	// when
	require.NoError(t, c.Save(ctx, ns, []item{{ID: "a", Qty: 2}, {ID: "b", Qty: 1}}))
	loaded := c.Load(ctx, ns)
	other := c.Load(ctx, identity.GuestNamespace)

	// then
	assert.Equal(t, []item{{ID: "a", Qty: 2}, {ID: "b", Qty: 1}}, loaded)
	assert.Empty(t, other)
	assert.NotNil(t, other)
	raw, found, _ := medium.Get(ctx, "cart/user:1")
	assert.True(t, found)
	assert.JSONEq(t, `[{"id":"a","qty":2},{"id":"b","qty":1}]`, raw)
}

func Test_Collection_SaveNil(t *testing.T) {
	// given
	ctx := context.Background()
	medium := NewInMemory()
	c := NewCollection[item]("cart", medium, slog.New(slog.DiscardHandler))

	// when
	require.NoError(t, c.Save(ctx, identity.GuestNamespace, nil))

	// then
	raw, _, _ := medium.Get(ctx, "cart/guest")
	assert.Equal(t, "[]", raw)
}

func Test_Collection_Load_Recovers(t *testing.T) {
	testCases := []struct {
		name      string
		raw       string
		found     bool
		err       error
		wantInLog string
	}{
		{name: "corrupt payload", raw: "{not json", found: true, wantInLog: "stored collection is corrupt"},
		{name: "wrong shape", raw: `{"id":"a"}`, found: true, wantInLog: "stored collection is corrupt"},
		{name: "medium failure", err: errors.New("connection refused"), wantInLog: "connection refused"},
		{name: "absent", found: false},
		{name: "null payload", raw: "null", found: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			ctx := context.Background()
			var buf bytes.Buffer
			m := &mockMedium{}
			m.On("Get", mock.Anything, "cart/guest").Return(tc.raw, tc.found, tc.err)
			c := NewCollection[item]("cart", m, newLogger(&buf))

			// when
			items := c.Load(ctx, identity.GuestNamespace)

			// then
			assert.NotNil(t, items)
			assert.Empty(t, items)
			if tc.wantInLog != "" {
				assert.Contains(t, buf.String(), tc.wantInLog)
			}
			m.AssertExpectations(t)
		})
	}
}

func Test_Collection_Fetch(t *testing.T) {
	testCases := []struct {
		name      string
		raw       string
		found     bool
		err       error
		wantItems []item
		wantErr   error
	}{
		{name: "stored", raw: `[{"id":"a","qty":2}]`, found: true, wantItems: []item{{ID: "a", Qty: 2}}},
		{name: "absent", found: false, wantItems: []item{}},
		{name: "corrupt payload", raw: "{not json", found: true, wantItems: []item{}},
		{name: "medium failure", err: errors.New("connection refused"), wantErr: storeerrors.ErrStorageUnavailable},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			m := &mockMedium{}
			m.On("Get", mock.Anything, "cart/user:7").Return(tc.raw, tc.found, tc.err)
			c := NewCollection[item]("cart", m, slog.New(slog.DiscardHandler))

			// when
			items, err := c.Fetch(context.Background(), identity.NamespaceOf(identity.User("7")))

			// then
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				assert.ErrorContains(t, err, "connection refused")
				assert.Nil(t, items)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantItems, items)
			m.AssertExpectations(t)
		})
	}
}

func Test_Collection_Save_MediumError(t *testing.T) {
	// given
	ctx := context.Background()
	m := &mockMedium{}
	m.On("Set", mock.Anything, "cart/guest", "[]").Return(errors.New("disk full"))
	c := NewCollection[item]("cart", m, slog.New(slog.DiscardHandler))

	// when
	err := c.Save(ctx, identity.GuestNamespace, []item{})

	// then
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	m.AssertExpectations(t)
}
