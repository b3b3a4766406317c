package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/abgdnv/storefront/pkg/config"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFetcher struct {
	calls int
	fail  bool
}

func (f *countingFetcher) fetch(_ context.Context, _ string) (jwk.Set, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("jwks unavailable")
	}
	return jwk.NewSet(), nil
}

func testIdP(interval time.Duration) config.IdP {
	return config.IdP{
		Enabled:     true,
		JwksURL:     "http://idp/jwks",
		Issuer:      "http://idp",
		ClientID:    "storefront",
		MinInterval: interval,
	}
}

func Test_NewJWTVerifier_FailsFastWithoutKeys(t *testing.T) {
	fetcher := &countingFetcher{fail: true}

	_, err := newJWTVerifier(context.Background(), testIdP(time.Minute), fetcher.fetch)

	require.Error(t, err)
	assert.Equal(t, 1, fetcher.calls)
}

func Test_JWTVerifier_CachesKeySet(t *testing.T) {
	// given
	fetcher := &countingFetcher{}
	v, err := newJWTVerifier(context.Background(), testIdP(time.Hour), fetcher.fetch)
	require.NoError(t, err)

	// when
	_, err = v.getKeySet(context.Background())

	// then
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.calls, "key set should be served from cache")
}

func Test_JWTVerifier_FallsBackToCachedSet(t *testing.T) {
	// given
	fetcher := &countingFetcher{}
	v, err := newJWTVerifier(context.Background(), testIdP(time.Nanosecond), fetcher.fetch)
	require.NoError(t, err)
	fetcher.fail = true
	time.Sleep(time.Millisecond)

	// when
	set, err := v.getKeySet(context.Background())

	// then
	require.NoError(t, err)
	assert.NotNil(t, set)
	assert.Equal(t, 2, fetcher.calls)
}

func Test_JWTVerifier_RejectsGarbage(t *testing.T) {
	fetcher := &countingFetcher{}
	v, err := newJWTVerifier(context.Background(), testIdP(time.Hour), fetcher.fetch)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), "not-a-jwt")

	assert.Error(t, err)
}
