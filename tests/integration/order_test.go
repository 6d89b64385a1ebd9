//go:build integration

package integration

import (
	"net/http"
	"regexp"
	"testing"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func TestPlaceOrder_Confirmed(t *testing.T) {
	productID := createProduct(t, "order-confirmed", 10.00, 5)

	resp := doSend(t, http.MethodPost, orderURL, "/api/orders/user-confirmed", placeOrderRequest{
		Items:       []lineItem{{ProductID: productID, Quantity: 2}},
		TotalAmount: 20.00,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	result := decodeJSON[placeOrderResponse](t, resp)
	if !uuidPattern.MatchString(result.Order.ID) {
		t.Errorf("order ID %q is not a valid UUID", result.Order.ID)
	}
	if result.Order.Status != "Confirmed" {
		t.Errorf("status: got %q, want Confirmed", result.Order.Status)
	}
	if len(result.FailedItems) != 0 {
		t.Errorf("failed items: got %v, want none", result.FailedItems)
	}

	// The deduction went through the product service.
	if stock := getStock(t, productID); stock != 3 {
		t.Errorf("stock after order: got %d, want 3", stock)
	}
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	productID := createProduct(t, "order-short-stock", 10.00, 1)

	resp := doSend(t, http.MethodPost, orderURL, "/api/orders/user-short", placeOrderRequest{
		Items:       []lineItem{{ProductID: productID, Quantity: 3}},
		TotalAmount: 30.00,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	// Rejected before persistence: no stock was touched and no order exists.
	if stock := getStock(t, productID); stock != 1 {
		t.Errorf("stock after rejected order: got %d, want 1", stock)
	}

	listResp := doGet(t, orderURL, "/api/orders/user-short")
	defer listResp.Body.Close()
	if orders := decodeJSON[[]orderResponse](t, listResp); len(orders) != 0 {
		t.Errorf("orders after rejection: got %d, want 0", len(orders))
	}
}

func TestPlaceOrder_UnknownProduct(t *testing.T) {
	resp := doSend(t, http.MethodPost, orderURL, "/api/orders/user-ghost", placeOrderRequest{
		Items:       []lineItem{{ProductID: "no-such-product", Quantity: 1}},
		TotalAmount: 5.00,
	})
	defer resp.Body.Close()

	// An unknown product is indistinguishable from an unavailable one.
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestPlaceOrder_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		req  placeOrderRequest
	}{
		{"empty items", placeOrderRequest{TotalAmount: 10}},
		{"zero quantity", placeOrderRequest{
			Items:       []lineItem{{ProductID: "p", Quantity: 0}},
			TotalAmount: 10,
		}},
		{"negative total", placeOrderRequest{
			Items:       []lineItem{{ProductID: "p", Quantity: 1}},
			TotalAmount: -1,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doSend(t, http.MethodPost, orderURL, "/api/orders/user-bad", tt.req)
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
			body := decodeJSON[errorResponse](t, resp)
			if body.Message == "" {
				t.Error("expected an error message")
			}
		})
	}
}

func TestPlaceOrder_SequentialOrdersDrainStock(t *testing.T) {
	productID := createProduct(t, "order-drain", 5.00, 3)

	// First order takes 2 of 3.
	resp := doSend(t, http.MethodPost, orderURL, "/api/orders/user-drain", placeOrderRequest{
		Items:       []lineItem{{ProductID: productID, Quantity: 2}},
		TotalAmount: 10.00,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first order: expected 201, got %d", resp.StatusCode)
	}

	// Second order wants 2 but only 1 remains.
	resp = doSend(t, http.MethodPost, orderURL, "/api/orders/user-drain", placeOrderRequest{
		Items:       []lineItem{{ProductID: productID, Quantity: 2}},
		TotalAmount: 10.00,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second order: expected 409, got %d", resp.StatusCode)
	}

	if stock := getStock(t, productID); stock != 1 {
		t.Errorf("stock: got %d, want 1", stock)
	}
}

func TestOrderLifecycle(t *testing.T) {
	productID := createProduct(t, "order-lifecycle", 7.50, 10)

	resp := doSend(t, http.MethodPost, orderURL, "/api/orders/user-cycle", placeOrderRequest{
		Items:       []lineItem{{ProductID: productID, Quantity: 1}},
		TotalAmount: 7.50,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("place: expected 201, got %d", resp.StatusCode)
	}
	placed := decodeJSON[placeOrderResponse](t, resp)
	resp.Body.Close()
	orderID := placed.Order.ID

	// Owner can fetch it.
	resp = doGet(t, orderURL, "/api/orders/user-cycle/"+orderID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp.StatusCode)
	}
	got := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()
	if got.UserID != "user-cycle" || got.TotalAmount != 7.5 {
		t.Errorf("got order %+v", got)
	}

	// Another user gets a 404 for the same id.
	resp = doGet(t, orderURL, "/api/orders/someone-else/"+orderID)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("cross-user get: expected 404, got %d", resp.StatusCode)
	}

	// It shows up in the owner's list.
	resp = doGet(t, orderURL, "/api/orders/user-cycle")
	orders := decodeJSON[[]orderResponse](t, resp)
	resp.Body.Close()
	if len(orders) != 1 {
		t.Fatalf("list: got %d orders, want 1", len(orders))
	}

	// Status can move to Cancelled.
	resp = doSend(t, http.MethodPut, orderURL, "/api/orders/"+orderID+"/status",
		map[string]string{"status": "Cancelled"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status: expected 200, got %d", resp.StatusCode)
	}
	updated := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()
	if updated.Status != "Cancelled" {
		t.Errorf("status: got %q, want Cancelled", updated.Status)
	}

	// Unknown statuses are rejected.
	resp = doSend(t, http.MethodPut, orderURL, "/api/orders/"+orderID+"/status",
		map[string]string{"status": "Shipped"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad status: expected 400, got %d", resp.StatusCode)
	}
}
