package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/minishop/internal/domain/order"
)

// OrderPlacer runs the placement workflow for one request.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.PlaceOrderResult, error)
}

// OrderHandler exposes order placement and the order query/status API.
type OrderHandler struct {
	placer OrderPlacer
	orders order.Repository
}

// NewOrderHandler constructs an OrderHandler.
func NewOrderHandler(placer OrderPlacer, orders order.Repository) *OrderHandler {
	return &OrderHandler{placer: placer, orders: orders}
}

// Register mounts the order routes on mux.
func (h *OrderHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orders/{userId}", h.placeOrder)
	mux.HandleFunc("GET /api/orders/{userId}", h.listOrders)
	mux.HandleFunc("GET /api/orders/{userId}/{orderId}", h.getOrder)
	mux.HandleFunc("PUT /api/orders/{orderId}/status", h.updateStatus)
}

type placeOrderBody struct {
	Items []struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

func (h *OrderHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var body placeOrderBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	items := make([]order.LineItem, len(body.Items))
	for i, it := range body.Items {
		items[i] = order.LineItem{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	result, err := h.placer.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		UserID:      r.PathValue("userId"),
		Items:       items,
		TotalAmount: body.TotalAmount,
	})
	if err != nil {
		h.placeOrderError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, func(e *jx.Encoder) {
		encodePlaceOrderResult(e, result)
	})
}

// placeOrderError maps the closed workflow error taxonomy onto HTTP
// responses. Every failure path lands on exactly one named kind; anything
// else is a server error.
func (h *OrderHandler) placeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		iqErr *order.InvalidQuantityError
		uaErr *order.UnavailableError
		pErr  *order.PersistError
	)
	switch {
	case errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrNegativeTotal):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.As(err, &iqErr):
		writeError(w, r, http.StatusBadRequest, iqErr.Error())
	case errors.As(err, &uaErr):
		writeJSON(w, r, http.StatusConflict, func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("code", func(e *jx.Encoder) { e.Int(http.StatusConflict) })
				e.Field("message", func(e *jx.Encoder) { e.Str("one or more items are out of stock or unavailable") })
				e.Field("unavailable", func(e *jx.Encoder) {
					e.Arr(func(e *jx.Encoder) {
						for _, id := range uaErr.ProductIDs {
							e.Str(id)
						}
					})
				})
			})
		})
	case errors.As(err, &pErr):
		internalError(w, r, pErr)
	default:
		internalError(w, r, err)
	}
}

func (h *OrderHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListByUser(r.Context(), r.PathValue("userId"))
	if err != nil {
		internalError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range orders {
				encodeOrder(e, &orders[i])
			}
		})
	})
}

func (h *OrderHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetByID(r.Context(), r.PathValue("orderId"))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "order not found")
			return
		}
		internalError(w, r, err)
		return
	}

	// Orders are scoped to their owner; an id guessed across users is a 404,
	// not a 403, to avoid confirming the order exists.
	if o.UserID != r.PathValue("userId") {
		writeError(w, r, http.StatusNotFound, "order not found")
		return
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

type updateStatusBody struct {
	Status string `json:"status"`
}

func (h *OrderHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var body updateStatusBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	status, err := order.ParseStatus(body.Status)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), r.PathValue("orderId"), status)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "order not found")
			return
		}
		internalError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("userId", func(e *jx.Encoder) { e.Str(o.UserID) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, item := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("productId", func(e *jx.Encoder) { e.Str(item.ProductID) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(item.Quantity) })
					})
				}
			})
		})
		e.Field("totalAmount", func(e *jx.Encoder) { e.Float64(o.TotalAmount.InexactFloat64()) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("createdAt", func(e *jx.Encoder) { e.Str(o.CreatedAt.Format(time.RFC3339Nano)) })
	})
}

func encodePlaceOrderResult(e *jx.Encoder, result *order.PlaceOrderResult) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("order", func(e *jx.Encoder) { encodeOrder(e, result.Order) })
		e.Field("failedItems", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, id := range result.FailedProductIDs {
					e.Str(id)
				}
			})
		})
		e.Field("deductions", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, d := range result.Deductions {
					e.Obj(func(e *jx.Encoder) {
						e.Field("productId", func(e *jx.Encoder) { e.Str(d.ProductID) })
						e.Field("deducted", func(e *jx.Encoder) { e.Bool(d.Deducted) })
						if !d.Deducted {
							e.Field("reason", func(e *jx.Encoder) { e.Str(string(d.Reason)) })
						}
					})
				}
			})
		})
	})
}
