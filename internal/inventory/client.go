// Package inventory implements the order workflow's HTTP gateway to the
// product service's stock endpoints.
package inventory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/minishop/internal/domain/order"
)

// maxBodySize bounds how much of a stock response is read.
const maxBodySize = 1 << 16

var _ order.Inventory = (*Client)(nil)

// Config holds the client's remote-call policy.
type Config struct {
	// BaseURL is the product service root, e.g. http://product:8081.
	BaseURL string
	// Timeout bounds each individual attempt.
	Timeout time.Duration
	// Retries is the number of additional attempts for the availability
	// read. Deductions are never retried: a repeated decrement that did
	// apply remotely would deduct twice.
	Retries int
	// Backoff is the delay before the first retry; it doubles per attempt.
	Backoff time.Duration
}

// Client performs one remote availability check and one remote conditional
// decrement per line item. It holds no state between calls.
type Client struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	retries int
	backoff time.Duration
}

// NewClient creates a Client with an OpenTelemetry-instrumented transport.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 100 * time.Millisecond
	}
	return &Client{
		baseURL: cfg.BaseURL,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		timeout: cfg.Timeout,
		retries: cfg.Retries,
		backoff: cfg.Backoff,
	}
}

// CheckAvailability reads the product's current stock and reports whether
// at least qty units remain. Every failure mode (unknown product,
// transport error, timeout, malformed body) reports unavailable: an order
// is never placed against unconfirmed stock.
func (c *Client) CheckAvailability(ctx context.Context, productID string, qty int) order.StockCheckResult {
	stock, err := c.fetchStock(ctx, productID)
	if err != nil {
		zctx.From(ctx).Debug("availability check failed, treating as unavailable",
			zap.String("product_id", productID),
			zap.Error(err),
		)
		return order.StockCheckResult{ProductID: productID}
	}
	return order.StockCheckResult{ProductID: productID, Available: stock >= qty}
}

// Deduct issues the conditional decrement and reports the remote outcome.
// The stock comparison happens server-side; this client only classifies
// the response.
func (c *Client) Deduct(ctx context.Context, productID string, qty int) order.DeductionOutcome {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body bytes.Buffer
	e := jx.NewStreamingEncoder(&body, -1)
	e.Obj(func(e *jx.Encoder) {
		e.Field("quantity", func(e *jx.Encoder) { e.Int(qty) })
	})
	if err := e.Close(); err != nil {
		return order.DeductionOutcome{ProductID: productID, Reason: order.FailureUnreachable}
	}

	url := fmt.Sprintf("%s/api/products/%s/deduct", c.baseURL, productID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, &body)
	if err != nil {
		return order.DeductionOutcome{ProductID: productID, Reason: order.FailureUnreachable}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		zctx.From(ctx).Warn("stock deduction unreachable",
			zap.String("product_id", productID),
			zap.Error(err),
		)
		return order.DeductionOutcome{ProductID: productID, Reason: order.FailureUnreachable}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))

	switch resp.StatusCode {
	case http.StatusOK:
		return order.DeductionOutcome{ProductID: productID, Deducted: true}
	case http.StatusNotFound:
		return order.DeductionOutcome{ProductID: productID, Reason: order.FailureNotFound}
	case http.StatusConflict:
		return order.DeductionOutcome{ProductID: productID, Reason: order.FailureInsufficientStock}
	default:
		return order.DeductionOutcome{ProductID: productID, Reason: order.FailureUnreachable}
	}
}

// fetchStock reads the product's stock count, retrying transport-level and
// server-side failures with exponential backoff. The read is idempotent,
// so retries are safe here in a way they are not for Deduct.
func (c *Client) fetchStock(ctx context.Context, productID string) (int, error) {
	var lastErr error
	backoff := c.backoff

	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		stock, retryable, err := c.getStock(ctx, productID)
		if err == nil {
			return stock, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}

	return 0, lastErr
}

func (c *Client) getStock(ctx context.Context, productID string) (stock int, retryable bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/api/products/%s", c.baseURL, productID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, false, errors.Wrap(err, "build request")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, true, errors.Wrap(err, "get stock")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return 0, true, errors.Wrap(err, "read body")
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return 0, false, errors.Errorf("product %s not found", productID)
	case resp.StatusCode >= 500:
		return 0, true, errors.Errorf("product service returned %d", resp.StatusCode)
	default:
		return 0, false, errors.Errorf("product service returned %d", resp.StatusCode)
	}

	stock, err = parseStock(body)
	if err != nil {
		return 0, false, errors.Wrap(err, "parse stock")
	}
	return stock, false, nil
}

// parseStock extracts the stock field from a product response, skipping
// every other field.
func parseStock(body []byte) (int, error) {
	d := jx.DecodeBytes(body)

	var (
		stock int
		found bool
	)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "stock" {
			return d.Skip()
		}
		v, err := d.Int()
		if err != nil {
			return err
		}
		stock, found = v, true
		return nil
	}); err != nil {
		return 0, err
	}
	if !found {
		return 0, errors.New("response has no stock field")
	}
	return stock, nil
}
