package wishlist

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	wlerrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/identity"
	"github.com/abgdnv/storefront/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	lamp  = Entry{ProductID: "lamp", Name: "Desk lamp", Price: decimal.RequireFromString("39.9"), Slug: "desk-lamp"}
	chair = Entry{ProductID: "chair", Name: "Chair", Price: decimal.NewFromInt(120), Slug: "chair"}
)

// flakyMedium fails reads while down is set.
type flakyMedium struct {
	*store.InMemory
	down bool
}

func (f *flakyMedium) Get(ctx context.Context, key string) (string, bool, error) {
	if f.down {
		return "", false, errors.New("connection reset")
	}
	return f.InMemory.Get(ctx, key)
}

func newWishlist(t *testing.T, medium store.Medium, actor identity.Actor) (*Store, *identity.Resolver) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	w := New(store.NewCollection[Entry](CollectionName, medium, logger), logger)
	r := identity.NewResolver()
	r.Subscribe(context.Background(), w)
	r.SetActor(context.Background(), actor)
	return w, r
}

func Test_Add_Idempotent(t *testing.T) {
	// given
	ctx := context.Background()
	w, _ := newWishlist(t, store.NewInMemory(), identity.Anonymous())

	// when
	first, err1 := w.Add(ctx, lamp)
	second, err2 := w.Add(ctx, lamp)

	// then
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.True(t, first)
	assert.False(t, second)
	assert.Equal(t, 1, w.Count())
}

func Test_Add_InvalidProduct(t *testing.T) {
	w, _ := newWishlist(t, store.NewInMemory(), identity.Anonymous())

	_, err := w.Add(context.Background(), Entry{Name: "nameless"})
	assert.ErrorIs(t, err, wlerrors.ErrInvalidProduct)
	_, err = w.Toggle(context.Background(), Entry{ProductID: " "})
	assert.ErrorIs(t, err, wlerrors.ErrInvalidProduct)
	assert.Zero(t, w.Count())
}

func Test_Remove(t *testing.T) {
	// given
	ctx := context.Background()
	w, _ := newWishlist(t, store.NewInMemory(), identity.User("1"))
	_, _ = w.Add(ctx, lamp)

	// when / then
	assert.False(t, w.Remove(ctx, "missing"))
	assert.True(t, w.Remove(ctx, "lamp"))
	assert.False(t, w.Contains("lamp"))
}

func Test_Toggle_Involution(t *testing.T) {
	testCases := []struct {
		name     string
		existing []Entry
	}{
		{name: "starting absent", existing: nil},
		{name: "starting present", existing: []Entry{lamp}},
		{name: "among others", existing: []Entry{chair, lamp}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			ctx := context.Background()
			w, _ := newWishlist(t, store.NewInMemory(), identity.Anonymous())
			for _, e := range tc.existing {
				_, _ = w.Add(ctx, e)
			}
			before := w.Contains(lamp.ProductID)

			// when
			first, err := w.Toggle(ctx, lamp)
			require.NoError(t, err)
			second, err := w.Toggle(ctx, lamp)
			require.NoError(t, err)

			// then
			assert.Equal(t, !before, first)
			assert.Equal(t, before, second)
			assert.Equal(t, before, w.Contains(lamp.ProductID))
			assert.Equal(t, len(tc.existing), w.Count())
		})
	}
}

func Test_Page(t *testing.T) {
	// given
	ctx := context.Background()
	w, _ := newWishlist(t, store.NewInMemory(), identity.Anonymous())
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		_, _ = w.Add(ctx, Entry{ProductID: id})
	}
	testCases := []struct {
		name          string
		offset, limit int
		expected      []string
	}{
		{name: "first page", offset: 0, limit: 2, expected: []string{"a", "b"}},
		{name: "last partial page", offset: 4, limit: 2, expected: []string{"e"}},
		{name: "past the end", offset: 10, limit: 2, expected: []string{}},
		{name: "zero limit", offset: 0, limit: 0, expected: []string{}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// when
			page, total := w.Page(tc.offset, tc.limit)
			// then
			ids := make([]string, 0, len(page))
			for _, e := range page {
				ids = append(ids, e.ProductID)
			}
			assert.Equal(t, tc.expected, ids)
			assert.Equal(t, 5, total)
		})
	}
}

func Test_PersistsPerNamespace(t *testing.T) {
	// given
	ctx := context.Background()
	medium := store.NewInMemory()
	w, r := newWishlist(t, medium, identity.Anonymous())
	_, _ = w.Add(ctx, lamp)

	// when
	r.SetActor(ctx, identity.User("9"))
	_, _ = w.Add(ctx, chair)
	r.SetActor(ctx, identity.Anonymous())

	// then
	assert.Equal(t, []Entry{lamp}, w.Entries())
	raw, found, _ := medium.Get(ctx, "wishlist/user:9")
	require.True(t, found)
	assert.JSONEq(t, `[{"product_id":"chair","name":"Chair","price":"120","image_ref":"","slug":"chair"}]`, raw)
}

func Test_ReadFailure_DoesNotOverwriteStoredWishlist(t *testing.T) {
	// given
	ctx := context.Background()
	medium := &flakyMedium{InMemory: store.NewInMemory()}
	stored, _ := newWishlist(t, medium, identity.User("3"))
	_, err := stored.Add(ctx, lamp)
	require.NoError(t, err)

	medium.down = true
	w, _ := newWishlist(t, medium, identity.User("3"))

	// when
	_, addErr := w.Add(ctx, chair)
	_, toggleErr := w.Toggle(ctx, chair)

	// then
	assert.ErrorIs(t, addErr, wlerrors.ErrStorageUnavailable)
	assert.ErrorIs(t, toggleErr, wlerrors.ErrStorageUnavailable)
	assert.False(t, w.Remove(ctx, "lamp"))

	// when storage answers again
	medium.down = false
	in, err := w.Toggle(ctx, chair)

	// then
	require.NoError(t, err)
	assert.True(t, in)
	assert.Equal(t, []Entry{lamp, chair}, w.Entries())
}

func Test_Rehydrate_DropsDuplicateAndBlankEntries(t *testing.T) {
	// given
	ctx := context.Background()
	medium := store.NewInMemory()
	require.NoError(t, medium.Set(ctx, "wishlist/user:3",
		`[{"product_id":"lamp","slug":"first"},{"product_id":""},{"product_id":"lamp","slug":"second"},{"product_id":"chair"}]`))

	// when
	w, _ := newWishlist(t, medium, identity.User("3"))

	// then
	assert.Equal(t, []Entry{{ProductID: "lamp", Slug: "first"}, {ProductID: "chair"}}, w.Entries())
	assert.True(t, w.Remove(ctx, "lamp"))
	assert.False(t, w.Contains("lamp"))
}
