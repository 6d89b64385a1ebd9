package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/minishop/internal/domain/product"
)

// ProductHandler exposes the product catalog and the stock endpoints the
// order workflow consumes.
type ProductHandler struct {
	products product.Repository
}

// NewProductHandler constructs a ProductHandler.
func NewProductHandler(products product.Repository) *ProductHandler {
	return &ProductHandler{products: products}
}

// Register mounts the product routes on mux. The "search" literal must be
// registered before the {id} wildcard would otherwise shadow it; the
// ServeMux picks the more specific pattern either way.
func (h *ProductHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/products", h.create)
	mux.HandleFunc("GET /api/products", h.list)
	mux.HandleFunc("GET /api/products/search", h.search)
	mux.HandleFunc("GET /api/products/{id}", h.get)
	mux.HandleFunc("PUT /api/products/{id}", h.update)
	mux.HandleFunc("DELETE /api/products/{id}", h.delete)
	mux.HandleFunc("PUT /api/products/{id}/deduct", h.deduct)
}

type productBody struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Stock       int             `json:"stock"`
}

func (h *ProductHandler) create(w http.ResponseWriter, r *http.Request) {
	var body productBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Name == "" {
		writeError(w, r, http.StatusBadRequest, "name required")
		return
	}
	if body.Price.IsNegative() {
		writeError(w, r, http.StatusBadRequest, "price must not be negative")
		return
	}
	if body.Stock < 0 {
		writeError(w, r, http.StatusBadRequest, "stock must not be negative")
		return
	}
	if body.ID == "" {
		body.ID = uuid.New().String()
	}

	p := &product.Product{
		ID:          body.ID,
		Name:        body.Name,
		Description: body.Description,
		Price:       body.Price,
		Category:    body.Category,
		Stock:       body.Stock,
	}
	if err := h.products.Create(r.Context(), p); err != nil {
		internalError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, func(e *jx.Encoder) {
		encodeProduct(e, p)
	})
}

func (h *ProductHandler) list(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeProducts(w, r, products)
}

func (h *ProductHandler) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := product.SearchFilter{
		Query:    q.Get("q"),
		Category: q.Get("category"),
	}
	if raw := q.Get("minPrice"); raw != "" {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid minPrice")
			return
		}
		filter.MinPrice = v
	}
	if raw := q.Get("maxPrice"); raw != "" {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid maxPrice")
			return
		}
		filter.MaxPrice = v
	}

	products, err := h.products.Search(r.Context(), filter)
	if err != nil {
		internalError(w, r, err)
		return
	}
	if len(products) == 0 {
		writeError(w, r, http.StatusNotFound, "no products found matching your criteria")
		return
	}
	writeProducts(w, r, products)
}

func (h *ProductHandler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "product not found")
			return
		}
		internalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodeProduct(e, p)
	})
}

func (h *ProductHandler) update(w http.ResponseWriter, r *http.Request) {
	var body productBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Price.IsNegative() || body.Stock < 0 {
		writeError(w, r, http.StatusBadRequest, "price and stock must not be negative")
		return
	}

	p, err := h.products.Update(r.Context(), r.PathValue("id"), product.Update{
		Name:        body.Name,
		Description: body.Description,
		Price:       body.Price,
		Category:    body.Category,
		Stock:       body.Stock,
	})
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "product not found")
			return
		}
		internalError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodeProduct(e, p)
	})
}

func (h *ProductHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.products.Delete(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, product.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "product not found")
			return
		}
		internalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("msg", func(e *jx.Encoder) { e.Str("product deleted") })
		})
	})
}

type deductBody struct {
	Quantity int `json:"quantity"`
}

// deduct is the conditional decrement endpoint. 409 marks insufficient
// stock so a lost race is distinguishable from request validation errors.
func (h *ProductHandler) deduct(w http.ResponseWriter, r *http.Request) {
	var body deductBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Quantity <= 0 {
		writeError(w, r, http.StatusBadRequest, "quantity must be greater than 0")
		return
	}

	remaining, err := h.products.DecrementStock(r.Context(), r.PathValue("id"), body.Quantity)
	if err != nil {
		switch {
		case errors.Is(err, product.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "product not found")
		case errors.Is(err, product.ErrInsufficientStock):
			writeError(w, r, http.StatusConflict, "not enough stock")
		default:
			internalError(w, r, err)
		}
		return
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("remainingStock", func(e *jx.Encoder) { e.Int(remaining) })
		})
	})
}

func writeProducts(w http.ResponseWriter, r *http.Request, products []product.Product) {
	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range products {
				encodeProduct(e, &products[i])
			}
		})
	})
}

func encodeProduct(e *jx.Encoder, p *product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("description", func(e *jx.Encoder) { e.Str(p.Description) })
		e.Field("price", func(e *jx.Encoder) { e.Float64(p.Price.InexactFloat64()) })
		e.Field("category", func(e *jx.Encoder) { e.Str(p.Category) })
		e.Field("stock", func(e *jx.Encoder) { e.Int(p.Stock) })
	})
}
