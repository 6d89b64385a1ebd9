package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status enumerates the lifecycle states of a persisted order.
type Status string

const (
	// StatusPending marks an order that has been persisted but whose stock
	// deductions have not finished yet.
	StatusPending Status = "Pending"
	// StatusConfirmed marks an order whose every line item was deducted.
	StatusConfirmed Status = "Confirmed"
	// StatusPartiallyFailed marks an order that was persisted but for which
	// one or more stock deductions did not apply. The order is not rolled
	// back; reconciliation is a caller or operator responsibility.
	StatusPartiallyFailed Status = "PartiallyFailed"
	// StatusCancelled is set only through the status update API.
	StatusCancelled Status = "Cancelled"
)

// ParseStatus converts a string into a Status, accepting only the
// enumerated values. Status updates never merge arbitrary fields; this is
// the whole vocabulary an external caller may write.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusConfirmed, StatusPartiallyFailed, StatusCancelled:
		return Status(s), nil
	}
	return "", errors.Errorf("unknown order status %q", s)
}

// LineItem is a (product, quantity) pair within an order.
type LineItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Order represents a customer order. Items and TotalAmount are immutable
// after creation; only Status may change afterwards.
type Order struct {
	ID          string
	UserID      string
	Items       []LineItem
	TotalAmount decimal.Decimal
	Status      Status
	CreatedAt   time.Time
}

// Repository defines persistence operations for orders.
//
// Create must be durable before it returns. UpdateStatus writes the status
// column only, last-writer-wins; no optimistic concurrency is assumed.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, status Status) (*Order, error)
}

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// StockCheckResult is the outcome of one availability check. Produced once
// per line item per placement run; never persisted.
type StockCheckResult struct {
	ProductID string
	Available bool
}

// DeductionFailure classifies why a stock deduction did not apply.
type DeductionFailure string

const (
	// FailureNotFound: the product no longer exists in the inventory store.
	FailureNotFound DeductionFailure = "NotFound"
	// FailureInsufficientStock: the conditional decrement was rejected
	// because a concurrent order won the race for the remaining stock.
	FailureInsufficientStock DeductionFailure = "InsufficientStock"
	// FailureUnreachable: the inventory store could not be reached; the
	// deduction may or may not have applied remotely.
	FailureUnreachable DeductionFailure = "Unreachable"
)

// DeductionOutcome is the outcome of one stock deduction attempt. Deducted
// outcomes have an empty Reason.
type DeductionOutcome struct {
	ProductID string
	Deducted  bool
	Reason    DeductionFailure
}

// Inventory is the workflow's gateway to the inventory store. Both calls
// are stateless; each reports only the remote outcome and must never
// surface an error as a panic or partial result.
type Inventory interface {
	// CheckAvailability reports whether at least qty units of the product
	// are in stock. Remote failures report Available=false: the workflow
	// must never place an order against unconfirmed stock.
	CheckAvailability(ctx context.Context, productID string, qty int) StockCheckResult

	// Deduct applies a conditional decrement of qty units and reports the
	// remote outcome. Atomicity of the decrement is the inventory store's
	// responsibility, not this client's.
	Deduct(ctx context.Context, productID string, qty int) DeductionOutcome
}

// Sentinel errors for request validation. No side effects precede them.
var (
	ErrEmptyItems    = errors.New("items required")
	ErrNegativeTotal = errors.New("total amount must not be negative")
)

// InvalidQuantityError indicates a line item with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// UnavailableError indicates that one or more line items failed the
// availability check. No order was created.
type UnavailableError struct {
	ProductIDs []string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("out of stock or unavailable: %s", strings.Join(e.ProductIDs, ", "))
}

// PersistError indicates the order record store rejected the write. Fatal
// to the request: no order exists and no deductions were attempted.
type PersistError struct {
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist order: %v", e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}
