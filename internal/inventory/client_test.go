package inventory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/minishop/internal/domain/order"
)

func newTestClient(baseURL string, retries int) *Client {
	return NewClient(Config{
		BaseURL: baseURL,
		Timeout: 2 * time.Second,
		Retries: retries,
		Backoff: time.Millisecond,
	})
}

func stockHandler(t *testing.T, stock map[string]int) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/products/{id}", func(w http.ResponseWriter, r *http.Request) {
		s, ok := stock[r.PathValue("id")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    r.PathValue("id"),
			"name":  "test product",
			"price": 9.99,
			"stock": s,
		})
	})
	return mux
}

func TestCheckAvailability(t *testing.T) {
	srv := httptest.NewServer(stockHandler(t, map[string]int{"p1": 5}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0)

	res := c.CheckAvailability(context.Background(), "p1", 3)
	assert.Equal(t, order.StockCheckResult{ProductID: "p1", Available: true}, res)

	res = c.CheckAvailability(context.Background(), "p1", 5)
	assert.True(t, res.Available, "stock == qty is still available")

	res = c.CheckAvailability(context.Background(), "p1", 6)
	assert.False(t, res.Available)
}

func TestCheckAvailability_UnknownProduct(t *testing.T) {
	srv := httptest.NewServer(stockHandler(t, nil))
	defer srv.Close()

	c := newTestClient(srv.URL, 2)

	res := c.CheckAvailability(context.Background(), "ghost", 1)
	assert.False(t, res.Available)
}

func TestCheckAvailability_ServerDown(t *testing.T) {
	srv := httptest.NewServer(stockHandler(t, nil))
	srv.Close() // connection refused from here on

	c := newTestClient(srv.URL, 1)

	res := c.CheckAvailability(context.Background(), "p1", 1)
	assert.False(t, res.Available, "transport errors are conservative unavailability")
}

func TestCheckAvailability_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"p1","stock":4}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3)

	res := c.CheckAvailability(context.Background(), "p1", 2)
	assert.True(t, res.Available)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCheckAvailability_NoRetryOnNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3)

	res := c.CheckAvailability(context.Background(), "p1", 1)
	assert.False(t, res.Available)
	assert.Equal(t, int32(1), calls.Load(), "404 is definitive, not retryable")
}

func TestDeduct(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /api/products/{id}/deduct", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Quantity int `json:"quantity"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 2, body.Quantity)

		switch r.PathValue("id") {
		case "p1":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"remainingStock":3}`))
		case "gone":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusConflict)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv.URL, 0)

	out := c.Deduct(context.Background(), "p1", 2)
	assert.Equal(t, order.DeductionOutcome{ProductID: "p1", Deducted: true}, out)

	out = c.Deduct(context.Background(), "gone", 2)
	assert.Equal(t, order.FailureNotFound, out.Reason)

	out = c.Deduct(context.Background(), "contested", 2)
	assert.Equal(t, order.FailureInsufficientStock, out.Reason)
}

func TestDeduct_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := newTestClient(srv.URL, 0)

	out := c.Deduct(context.Background(), "p1", 1)
	assert.Equal(t, order.DeductionOutcome{ProductID: "p1", Reason: order.FailureUnreachable}, out)
}

func TestDeduct_NeverRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	// Retries configured for reads must not leak into deductions.
	c := newTestClient(srv.URL, 5)

	out := c.Deduct(context.Background(), "p1", 1)
	assert.Equal(t, order.FailureUnreachable, out.Reason)
	assert.Equal(t, int32(1), calls.Load())
}
