package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/minishop/internal/domain/order"
)

// --- Mocks ---

type stubPlacer struct {
	gotReq order.PlaceOrderRequest
	result *order.PlaceOrderResult
	err    error
}

func (s *stubPlacer) PlaceOrder(_ context.Context, req order.PlaceOrderRequest) (*order.PlaceOrderResult, error) {
	s.gotReq = req
	return s.result, s.err
}

type stubOrderRepo struct {
	byID      map[string]*order.Order
	updateErr error
}

func (s *stubOrderRepo) Create(_ context.Context, _ *order.Order) error { return nil }

func (s *stubOrderRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
	o, ok := s.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (s *stubOrderRepo) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	var out []order.Order
	for _, o := range s.byID {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *stubOrderRepo) UpdateStatus(_ context.Context, id string, status order.Status) (*order.Order, error) {
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	o, ok := s.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	o.Status = status
	return o, nil
}

// --- Helpers ---

func orderMux(placer OrderPlacer, repo order.Repository) *http.ServeMux {
	mux := http.NewServeMux()
	NewOrderHandler(placer, repo).Register(mux)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func testOrder(id, userID string) *order.Order {
	return &order.Order{
		ID:          id,
		UserID:      userID,
		Items:       []order.LineItem{{ProductID: "p1", Quantity: 2}},
		TotalAmount: decimal.RequireFromString("19.98"),
		Status:      order.StatusConfirmed,
		CreatedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// --- Tests ---

func TestPlaceOrderHandler_Created(t *testing.T) {
	o := testOrder("ord-1", "u1")
	placer := &stubPlacer{result: &order.PlaceOrderResult{
		Order: o,
		Deductions: []order.DeductionOutcome{
			{ProductID: "p1", Deducted: true},
		},
	}}
	mux := orderMux(placer, &stubOrderRepo{})

	w := doJSON(t, mux, http.MethodPost, "/api/orders/u1",
		`{"items":[{"productId":"p1","quantity":2}],"totalAmount":19.98}`)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "u1", placer.gotReq.UserID)
	require.Len(t, placer.gotReq.Items, 1)
	assert.Equal(t, order.LineItem{ProductID: "p1", Quantity: 2}, placer.gotReq.Items[0])

	var resp struct {
		Order struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"order"`
		FailedItems []string `json:"failedItems"`
		Deductions  []struct {
			ProductID string `json:"productId"`
			Deducted  bool   `json:"deducted"`
		} `json:"deductions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ord-1", resp.Order.ID)
	assert.Equal(t, "Confirmed", resp.Order.Status)
	assert.Empty(t, resp.FailedItems)
	require.Len(t, resp.Deductions, 1)
	assert.True(t, resp.Deductions[0].Deducted)
}

func TestPlaceOrderHandler_PartiallyFailed(t *testing.T) {
	o := testOrder("ord-2", "u1")
	o.Status = order.StatusPartiallyFailed
	placer := &stubPlacer{result: &order.PlaceOrderResult{
		Order: o,
		Deductions: []order.DeductionOutcome{
			{ProductID: "p1", Deducted: true},
			{ProductID: "p2", Reason: order.FailureInsufficientStock},
		},
		FailedProductIDs: []string{"p2"},
	}}
	mux := orderMux(placer, &stubOrderRepo{})

	w := doJSON(t, mux, http.MethodPost, "/api/orders/u1",
		`{"items":[{"productId":"p1","quantity":1},{"productId":"p2","quantity":1}],"totalAmount":20}`)

	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Order struct {
			Status string `json:"status"`
		} `json:"order"`
		FailedItems []string `json:"failedItems"`
		Deductions  []struct {
			ProductID string `json:"productId"`
			Deducted  bool   `json:"deducted"`
			Reason    string `json:"reason"`
		} `json:"deductions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "PartiallyFailed", resp.Order.Status)
	assert.Equal(t, []string{"p2"}, resp.FailedItems)
	require.Len(t, resp.Deductions, 2)
	assert.Equal(t, "InsufficientStock", resp.Deductions[1].Reason)
}

func TestPlaceOrderHandler_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"empty items", order.ErrEmptyItems},
		{"negative total", order.ErrNegativeTotal},
		{"invalid quantity", &order.InvalidQuantityError{ProductID: "p1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := orderMux(&stubPlacer{err: tt.err}, &stubOrderRepo{})
			w := doJSON(t, mux, http.MethodPost, "/api/orders/u1",
				`{"items":[],"totalAmount":0}`)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestPlaceOrderHandler_Unavailable(t *testing.T) {
	placer := &stubPlacer{err: &order.UnavailableError{ProductIDs: []string{"p1", "p3"}}}
	mux := orderMux(placer, &stubOrderRepo{})

	w := doJSON(t, mux, http.MethodPost, "/api/orders/u1",
		`{"items":[{"productId":"p1","quantity":9}],"totalAmount":10}`)

	require.Equal(t, http.StatusConflict, w.Code)

	var resp struct {
		Code        int      `json:"code"`
		Unavailable []string `json:"unavailable"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, []string{"p1", "p3"}, resp.Unavailable)
}

func TestPlaceOrderHandler_PersistFailure(t *testing.T) {
	placer := &stubPlacer{err: &order.PersistError{Err: errors.New("pool closed")}}
	mux := orderMux(placer, &stubOrderRepo{})

	w := doJSON(t, mux, http.MethodPost, "/api/orders/u1",
		`{"items":[{"productId":"p1","quantity":1}],"totalAmount":10}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "pool closed", "storage details must not leak")
}

func TestPlaceOrderHandler_BadBody(t *testing.T) {
	mux := orderMux(&stubPlacer{}, &stubOrderRepo{})
	w := doJSON(t, mux, http.MethodPost, "/api/orders/u1", `{"items":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetOrderHandler(t *testing.T) {
	repo := &stubOrderRepo{byID: map[string]*order.Order{
		"ord-1": testOrder("ord-1", "u1"),
	}}
	mux := orderMux(&stubPlacer{}, repo)

	w := doJSON(t, mux, http.MethodGet, "/api/orders/u1/ord-1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		ID          string  `json:"id"`
		UserID      string  `json:"userId"`
		TotalAmount float64 `json:"totalAmount"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ord-1", resp.ID)
	assert.Equal(t, "u1", resp.UserID)
	assert.InDelta(t, 19.98, resp.TotalAmount, 0.001)
}

func TestGetOrderHandler_WrongUser(t *testing.T) {
	repo := &stubOrderRepo{byID: map[string]*order.Order{
		"ord-1": testOrder("ord-1", "u1"),
	}}
	mux := orderMux(&stubPlacer{}, repo)

	// Another user guessing the id gets the same 404 as a missing order.
	w := doJSON(t, mux, http.MethodGet, "/api/orders/u2/ord-1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListOrdersHandler(t *testing.T) {
	repo := &stubOrderRepo{byID: map[string]*order.Order{
		"ord-1": testOrder("ord-1", "u1"),
	}}
	mux := orderMux(&stubPlacer{}, repo)

	w := doJSON(t, mux, http.MethodGet, "/api/orders/u1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp []json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp, 1)
}

func TestUpdateStatusHandler(t *testing.T) {
	repo := &stubOrderRepo{byID: map[string]*order.Order{
		"ord-1": testOrder("ord-1", "u1"),
	}}
	mux := orderMux(&stubPlacer{}, repo)

	w := doJSON(t, mux, http.MethodPut, "/api/orders/ord-1/status", `{"status":"Cancelled"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Cancelled", resp.Status)
}

func TestUpdateStatusHandler_UnknownStatus(t *testing.T) {
	repo := &stubOrderRepo{byID: map[string]*order.Order{
		"ord-1": testOrder("ord-1", "u1"),
	}}
	mux := orderMux(&stubPlacer{}, repo)

	// The status vocabulary is closed: arbitrary values never reach the store.
	w := doJSON(t, mux, http.MethodPut, "/api/orders/ord-1/status", `{"status":"Shipped"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, order.StatusConfirmed, repo.byID["ord-1"].Status)
}

func TestUpdateStatusHandler_NotFound(t *testing.T) {
	mux := orderMux(&stubPlacer{}, &stubOrderRepo{})

	w := doJSON(t, mux, http.MethodPut, "/api/orders/ghost/status", `{"status":"Cancelled"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
