package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cartdhttp "github.com/Iwomichu/cart-manager/internal/http"
	"github.com/Iwomichu/cart-manager/internal/store"
)

const testToken = "test-token"

func setupServer(t *testing.T) *Client {
	s := store.NewMemoryStore(time.Hour, 15*time.Minute, zerolog.Nop())
	t.Cleanup(func() { s.Close() })

	server := httptest.NewServer(cartdhttp.NewRouter(s, testToken, zerolog.Nop()))
	t.Cleanup(server.Close)

	return NewClient(server.URL, testToken, server.Client())
}

func TestClient_RoundTrip(t *testing.T) {
	c := setupServer(t)
	ctx := context.Background()

	require.NoError(t, c.Initialize(ctx, map[int64]int{1: 5, 2: 3}))

	products, err := c.GetAvailability(ctx)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, 5, products[1].TotalCount)

	require.NoError(t, c.IncrementCartEntry(ctx, 42, 1))
	require.NoError(t, c.IncrementCartEntry(ctx, 42, 1))

	cart, err := c.GetCart(ctx, 42)
	require.NoError(t, err)
	require.Contains(t, cart.Entries, int64(1))
	assert.Equal(t, 2, cart.Entries[1].UnitCount)

	require.NoError(t, c.DecrementCartEntry(ctx, 42, 1))
	require.NoError(t, c.Checkout(ctx, 42))

	products, err = c.GetAvailability(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, products[1].TotalCount)
	assert.Equal(t, 0, products[1].AlreadyPut)
}

func TestClient_ErrorMapping(t *testing.T) {
	c := setupServer(t)
	ctx := context.Background()

	err := c.IncrementCartEntry(ctx, 42, 99)
	assert.ErrorIs(t, err, ErrProductNotFound)

	// The failed increment still created user 42's (empty) cart, so the
	// missing-cart case needs a user the service has never seen.
	err = c.Checkout(ctx, 7)
	assert.ErrorIs(t, err, ErrCartNotFound)

	// Checking out that implicitly created empty cart succeeds.
	require.NoError(t, c.Checkout(ctx, 42))

	require.NoError(t, c.IncreaseAvailable(ctx, 1, 1))
	require.NoError(t, c.IncrementCartEntry(ctx, 42, 1))
	err = c.IncrementCartEntry(ctx, 42, 1)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	err = c.ReduceAvailable(ctx, 99, 1)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestClient_Unauthorized(t *testing.T) {
	s := store.NewMemoryStore(time.Hour, 15*time.Minute, zerolog.Nop())
	t.Cleanup(func() { s.Close() })
	server := httptest.NewServer(cartdhttp.NewRouter(s, testToken, zerolog.Nop()))
	t.Cleanup(server.Close)

	c := NewClient(server.URL, "wrong-token", server.Client())
	err := c.IncreaseAvailable(context.Background(), 1, 1)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestClient_ResetEntry(t *testing.T) {
	c := setupServer(t)
	ctx := context.Background()

	require.NoError(t, c.IncreaseAvailable(ctx, 1, 5))
	for i := 0; i < 3; i++ {
		require.NoError(t, c.IncrementCartEntry(ctx, 42, 1))
	}

	require.NoError(t, c.ResetCartEntry(ctx, 42, 1))

	products, err := c.GetAvailability(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, products[1].AlreadyPut)
}

func TestClient_BreakerOpensOnServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	c := NewClient(server.URL, testToken, server.Client())
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		err := c.IncreaseAvailable(ctx, 1, 1)
		require.Error(t, err)
		require.NotErrorIs(t, err, gobreaker.ErrOpenState)
	}

	// The breaker has now seen enough consecutive failures to open.
	err := c.IncreaseAvailable(ctx, 1, 1)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}
