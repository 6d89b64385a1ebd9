package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for catalog and stock operations.
var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrInsufficientStock is returned when a conditional decrement would
	// drive the stock count below zero.
	ErrInsufficientStock = errors.New("not enough stock")
)

// Product represents a catalog item together with its current stock count.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	Stock       int
}

// SearchFilter narrows a catalog search. Zero-valued fields are ignored.
type SearchFilter struct {
	Query    string
	Category string
	MinPrice decimal.Decimal
	MaxPrice decimal.Decimal
}

// Update carries the mutable fields for a full product update.
type Update struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	Stock       int
}

// Repository defines catalog and stock operations for products.
//
// DecrementStock must be atomic per product: the stock comparison and the
// write happen as one step, so concurrent decrements can never drive the
// count negative. The order placement workflow depends on this contract.
type Repository interface {
	Create(ctx context.Context, p *Product) error
	List(ctx context.Context) ([]Product, error)
	Search(ctx context.Context, f SearchFilter) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	Update(ctx context.Context, id string, u Update) (*Product, error)
	Delete(ctx context.Context, id string) error

	// DecrementStock subtracts qty from the product's stock and returns the
	// remaining count. It returns ErrNotFound for an unknown id and
	// ErrInsufficientStock when fewer than qty units remain.
	DecrementStock(ctx context.Context, id string, qty int) (remaining int, err error)
}
