// Package processor is the HTTP client for the external payments processor.
// It exposes exactly the two collaborator calls the payout engine consumes:
// paginated payment listing and idempotent transfer creation.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"marquee/internal/platform/config"
)

const (
	sandboxBaseURL    = "https://connect.sandbox.payprocessor.example"
	productionBaseURL = "https://connect.payprocessor.example"
)

// Client talks to one processor environment. The environment is fixed at
// construction; nothing selects sandbox vs production per call.
type Client struct {
	http       *http.Client
	baseURL    string
	token      string
	locationID string
	tracer     trace.Tracer
}

func New(cfg config.Processor) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = sandboxBaseURL
		if cfg.Environment == config.EnvProduction {
			base = productionBaseURL
		}
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		http:       &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(base, "/"),
		token:      cfg.AccessToken,
		locationID: cfg.LocationID,
		tracer:     otel.Tracer("marquee/processor"),
	}
}

// Payment is one settled transaction from the processor's ledger. Amounts are
// minor currency units; Memo is the free-text field classification keys off.
type Payment struct {
	ID          string    `json:"id"`
	AmountCents int64     `json:"amount_cents"`
	Memo        string    `json:"memo"`
	CreatedAt   time.Time `json:"created_at"`
}

// PaymentPage is one page of ledger results. An empty NextCursor means the
// listing is complete.
type PaymentPage struct {
	Payments   []Payment `json:"payments"`
	NextCursor string    `json:"cursor"`
}

// Transfer is the processor's record of a dispatched disbursement.
type Transfer struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// APIError is the processor's structured error detail, surfaced verbatim to
// callers for manual review.
type APIError struct {
	StatusCode int
	Code       string
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("processor error %d %s: %s", e.StatusCode, e.Code, e.Detail)
}

// ListPayments fetches one page of the transaction ledger. Callers follow
// NextCursor sequentially; page ordering is processor-defined.
func (c *Client) ListPayments(ctx context.Context, since time.Time, cursor string) (*PaymentPage, error) {
	ctx, span := c.tracer.Start(ctx, "processor.ListPayments")
	defer span.End()

	q := url.Values{}
	q.Set("location_id", c.locationID)
	if !since.IsZero() {
		q.Set("begin_time", since.UTC().Format(time.RFC3339))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/payments?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build list payments request: %w", err)
	}

	var page PaymentPage
	if err := c.do(req, &page); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("payments.count", len(page.Payments)))
	return &page, nil
}

type createTransferRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	DestinationID  string `json:"destination_id"`
	AmountCents    int64  `json:"amount_cents"`
}

type createTransferResponse struct {
	Transfer Transfer `json:"transfer"`
}

// CreateTransfer submits one disbursement. The processor deduplicates on the
// idempotency key, so resubmitting with the same key cannot double-pay.
func (c *Client) CreateTransfer(ctx context.Context, idempotencyKey, destinationID string, amountCents int64) (*Transfer, error) {
	ctx, span := c.tracer.Start(ctx, "processor.CreateTransfer")
	defer span.End()

	body, err := json.Marshal(createTransferRequest{
		IdempotencyKey: idempotencyKey,
		DestinationID:  destinationID,
		AmountCents:    amountCents,
	})
	if err != nil {
		return nil, fmt.Errorf("encode transfer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/transfers", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp createTransferResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp.Transfer, nil
}

type errorEnvelope struct {
	Errors []struct {
		Code   string `json:"code"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("processor request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read processor response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Code: "UNKNOWN", Detail: strings.TrimSpace(string(raw))}
		var envelope errorEnvelope
		if jsonErr := json.Unmarshal(raw, &envelope); jsonErr == nil && len(envelope.Errors) > 0 {
			apiErr.Code = envelope.Errors[0].Code
			apiErr.Detail = envelope.Errors[0].Detail
		}
		return apiErr
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode processor response: %w", err)
	}
	return nil
}
