package order

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PlaceOrderRequest holds the input for placing an order. It is built per
// request and never persisted as-is.
type PlaceOrderRequest struct {
	UserID      string
	Items       []LineItem
	TotalAmount decimal.Decimal
}

// PlaceOrderResult holds the persisted order and the per-item deduction
// report. Deductions is indexed by line item position; FailedProductIDs
// lists exactly the products whose stock was not deducted.
type PlaceOrderResult struct {
	Order            *Order
	Deductions       []DeductionOutcome
	FailedProductIDs []string
}

// Workflow drives one order-creation request from intake to final status:
// validate, check availability across all items, persist the order as
// Pending, deduct stock, then record Confirmed or PartiallyFailed.
//
// There is no lock on a product between the check and the deduct; a
// concurrent order can win the race for the last units. The workflow's job
// is to make that inconsistency observable, not to prevent it.
type Workflow struct {
	inventory Inventory
	orders    Repository

	tracer    trace.Tracer
	placed    metric.Int64Counter
	deductErr metric.Int64Counter
}

// NewWorkflow creates a placement Workflow over the given inventory
// gateway and order store.
func NewWorkflow(inventory Inventory, orders Repository) *Workflow {
	meter := otel.Meter("minishop.order")
	placed, _ := meter.Int64Counter("minishop.orders.placed",
		metric.WithDescription("Orders persisted, by final status"))
	deductErr, _ := meter.Int64Counter("minishop.orders.deduction_failures",
		metric.WithDescription("Line item deductions that did not apply, by reason"))

	return &Workflow{
		inventory: inventory,
		orders:    orders,
		tracer:    otel.Tracer("minishop.order"),
		placed:    placed,
		deductErr: deductErr,
	}
}

// PlaceOrder executes the placement workflow. It returns a validation or
// availability error with no side effects, a PersistError when the order
// store write fails, or a result whose Order status is Confirmed or
// PartiallyFailed. Identical requests produce distinct orders: there is no
// deduplication key.
func (w *Workflow) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	ctx, span := w.tracer.Start(ctx, "order.place")
	defer span.End()

	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
	}
	if req.TotalAmount.IsNegative() {
		return nil, ErrNegativeTotal
	}

	checks := w.checkAll(ctx, req.Items)

	var unavailable []string
	for _, res := range checks {
		if !res.Available {
			unavailable = append(unavailable, res.ProductID)
		}
	}
	if len(unavailable) > 0 {
		return nil, &UnavailableError{ProductIDs: unavailable}
	}

	// Persist strictly after all checks and strictly before any deduction:
	// the order record is what makes a partially failed deduction phase
	// auditable.
	o := &Order{
		ID:          uuid.New().String(),
		UserID:      req.UserID,
		Items:       slices.Clone(req.Items),
		TotalAmount: req.TotalAmount,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := w.orders.Create(ctx, o); err != nil {
		return nil, &PersistError{Err: err}
	}

	// The order exists now. Deductions and the final status write must run
	// to completion even if the caller's deadline elapses mid-phase, so
	// they use a context detached from cancellation.
	dctx := context.WithoutCancel(ctx)
	outcomes := w.deductAll(dctx, req.Items)

	var failed []string
	for _, out := range outcomes {
		if !out.Deducted {
			failed = append(failed, out.ProductID)
			w.deductErr.Add(dctx, 1, metric.WithAttributes(
				attribute.String("reason", string(out.Reason)),
			))
		}
	}

	final := StatusConfirmed
	if len(failed) > 0 {
		final = StatusPartiallyFailed
	}
	if _, err := w.orders.UpdateStatus(dctx, o.ID, final); err != nil {
		// The response still reports the computed status; the stored row
		// stays Pending until an operator reconciles it.
		zctx.From(ctx).Error("update order status",
			zap.String("order_id", o.ID),
			zap.String("status", string(final)),
			zap.Error(err),
		)
	}
	o.Status = final

	w.placed.Add(dctx, 1, metric.WithAttributes(
		attribute.String("status", string(final)),
	))

	return &PlaceOrderResult{
		Order:            o,
		Deductions:       outcomes,
		FailedProductIDs: failed,
	}, nil
}

// checkAll fans out one availability check per line item and joins on all
// of them. Results land in a slot array indexed by item position, so the
// aggregation is explicit data rather than an implicit error fold. A
// failing check never cancels the others: every item's observed state is
// part of the rejection message.
func (w *Workflow) checkAll(ctx context.Context, items []LineItem) []StockCheckResult {
	ctx, span := w.tracer.Start(ctx, "order.check_stock",
		trace.WithAttributes(attribute.Int("items", len(items))))
	defer span.End()

	results := make([]StockCheckResult, len(items))

	var g errgroup.Group
	for i, item := range items {
		g.Go(func() error {
			results[i] = w.inventory.CheckAvailability(ctx, item.ProductID, item.Quantity)
			return nil
		})
	}
	_ = g.Wait() // join barrier; the closures never return errors

	return results
}

// deductAll fans out one conditional decrement per line item and joins on
// all of them. A failed deduction must not abort deductions in flight for
// other items: those successes are real and are reported to the caller.
func (w *Workflow) deductAll(ctx context.Context, items []LineItem) []DeductionOutcome {
	ctx, span := w.tracer.Start(ctx, "order.deduct_stock",
		trace.WithAttributes(attribute.Int("items", len(items))))
	defer span.End()

	outcomes := make([]DeductionOutcome, len(items))

	var g errgroup.Group
	for i, item := range items {
		g.Go(func() error {
			outcomes[i] = w.inventory.Deduct(ctx, item.ProductID, item.Quantity)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}
