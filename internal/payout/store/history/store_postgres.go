package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"marquee/internal/payout/models"
	"marquee/pkg/platform/sentinel"
	txcontext "marquee/pkg/platform/tx"
)

// PostgresStore persists the append-only payout history. A unique index on
// key_id enforces at most one disbursement per authorization at the storage
// layer, independent of the service's idempotency guard.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Append(ctx context.Context, entry *models.PayoutHistoryEntry) error {
	query := `
		INSERT INTO payout_history
			(id, recipient, amount_cents, status, processed_at, method, kind, key_id, transfer_id, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		entry.ID, entry.Recipient, entry.AmountCents, entry.Status, entry.ProcessedAt,
		entry.Method, string(entry.Kind), entry.KeyID, entry.TransferID, entry.IdempotencyKey)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("append payout history: %w", err)
	}
	return nil
}

func (s *PostgresStore) SumByRecipient(ctx context.Context, recipient string) (int64, error) {
	var total int64
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM payout_history WHERE recipient = $1`,
		recipient).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum payout history: %w", err)
	}
	return total, nil
}

func (s *PostgresStore) ListByRecipient(ctx context.Context, recipient string) ([]*models.PayoutHistoryEntry, error) {
	query := `
		SELECT id, recipient, amount_cents, status, processed_at, method, kind, key_id, transfer_id, idempotency_key
		FROM payout_history
		WHERE $1 = '' OR recipient = $1
		ORDER BY processed_at DESC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, recipient)
	if err != nil {
		return nil, fmt.Errorf("list payout history: %w", err)
	}
	defer rows.Close()

	var out []*models.PayoutHistoryEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payout history: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) FindByKeyID(ctx context.Context, keyID string) (*models.PayoutHistoryEntry, error) {
	query := `
		SELECT id, recipient, amount_cents, status, processed_at, method, kind, key_id, transfer_id, idempotency_key
		FROM payout_history
		WHERE key_id = $1
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, keyID)
	if err != nil {
		return nil, fmt.Errorf("find payout history by key: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("find payout history by key: %w", err)
		}
		return nil, sentinel.ErrNotFound
	}
	return scanEntry(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.PayoutHistoryEntry, error) {
	var entry models.PayoutHistoryEntry
	var kind string
	if err := row.Scan(&entry.ID, &entry.Recipient, &entry.AmountCents, &entry.Status,
		&entry.ProcessedAt, &entry.Method, &kind, &entry.KeyID, &entry.TransferID,
		&entry.IdempotencyKey); err != nil {
		return nil, fmt.Errorf("scan payout history entry: %w", err)
	}
	entry.Kind = models.PayoutKind(kind)
	return &entry, nil
}

func isUniqueViolation(err error) bool {
	type coder interface{ SQLState() string }
	var c coder
	if errors.As(err, &c) {
		return c.SQLState() == "23505"
	}
	return false
}
