// Package ledger aggregates a partner's matched gross revenue from the
// external payments ledger.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"marquee/internal/payout/models"
	"marquee/internal/payout/ports"
	dErrors "marquee/pkg/domain-errors"
)

// maxPages bounds a runaway cursor; the processor has never returned more
// than a handful of pages for one location.
const maxPages = 1000

type Client struct {
	api         ports.LedgerAPI
	policy      MatchPolicy
	logger      *slog.Logger
	pagesMetric prometheus.Counter
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithPolicy(policy MatchPolicy) Option {
	return func(c *Client) {
		c.policy = policy
	}
}

func WithPagesMetric(counter prometheus.Counter) Option {
	return func(c *Client) {
		c.pagesMetric = counter
	}
}

func New(api ports.LedgerAPI, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, fmt.Errorf("ledger API is required")
	}

	c := &Client{
		api:    api,
		policy: NewMemoPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchClassifiedRevenue walks every page of the ledger since the given time
// and sums the records the policy matches. Pagination is sequential: page N+1
// needs the cursor from page N, so pages are never fetched in parallel. Any
// page failure aborts the whole aggregation; a partial sum must never
// authorize a partial payout.
func (c *Client) FetchClassifiedRevenue(ctx context.Context, since time.Time, partnerName string, kind models.PayoutKind) (int64, error) {
	var total int64
	var pages, matched int
	cursor := ""

	for {
		page, err := c.api.ListPayments(ctx, since, cursor)
		if err != nil {
			return 0, dErrors.Wrap(err, dErrors.CodeAggregation, "ledger page fetch failed")
		}
		pages++
		if c.pagesMetric != nil {
			c.pagesMetric.Inc()
		}

		for _, record := range page.Records {
			if c.policy.Matches(record.Memo, partnerName, kind) {
				total += record.AmountCents
				matched++
			}
		}

		if page.NextCursor == "" {
			break
		}
		if pages >= maxPages {
			return 0, dErrors.New(dErrors.CodeAggregation, "ledger pagination exceeded page limit")
		}
		cursor = page.NextCursor
	}

	if c.logger != nil {
		c.logger.InfoContext(ctx, "revenue aggregated",
			"partner", partnerName,
			"kind", kind,
			"pages", pages,
			"matched_records", matched,
			"gross_cents", total,
		)
	}

	return total, nil
}
