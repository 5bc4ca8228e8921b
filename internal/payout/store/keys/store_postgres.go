package keys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"marquee/internal/payout/models"
	"marquee/pkg/platform/sentinel"
	txcontext "marquee/pkg/platform/tx"
)

// PostgresStore persists authorization keys. This store is pure I/O; lifecycle
// rules (single use, identity binding) belong in the keys service.
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

// execer joins an enclosing transaction when one is carried in ctx. Consume
// relies on this: it must run inside the payout commit transaction.
func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, key *models.AuthorizationKey) error {
	query := `
		INSERT INTO authorization_keys (key_id, secret_hash, partner, kind, issued_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		key.KeyID, key.SecretHash, key.Partner, string(key.Kind), key.IssuedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create authorization key: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, keyID string) (*models.AuthorizationKey, error) {
	query := `
		SELECT key_id, secret_hash, partner, kind, issued_at
		FROM authorization_keys
		WHERE key_id = $1
	`
	var key models.AuthorizationKey
	var kind string
	err := s.execer(ctx).QueryRowContext(ctx, query, keyID).
		Scan(&key.KeyID, &key.SecretHash, &key.Partner, &kind, &key.IssuedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find authorization key: %w", err)
	}
	key.Kind = models.PayoutKind(kind)
	key.Status = models.KeyStatusActive
	return &key, nil
}

// Consume deletes the key row. Zero rows affected means another request beat
// us to it; returning ErrNotFound inside the commit transaction aborts the
// whole payout before any history is written.
func (s *PostgresStore) Consume(ctx context.Context, keyID string) error {
	result, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM authorization_keys WHERE key_id = $1`, keyID)
	if err != nil {
		return fmt.Errorf("consume authorization key: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume authorization key rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]*models.AuthorizationKey, error) {
	query := `
		SELECT key_id, secret_hash, partner, kind, issued_at
		FROM authorization_keys
		ORDER BY issued_at DESC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list authorization keys: %w", err)
	}
	defer rows.Close()

	var out []*models.AuthorizationKey
	for rows.Next() {
		var key models.AuthorizationKey
		var kind string
		if err := rows.Scan(&key.KeyID, &key.SecretHash, &key.Partner, &kind, &key.IssuedAt); err != nil {
			return nil, fmt.Errorf("scan authorization key: %w", err)
		}
		key.Kind = models.PayoutKind(kind)
		key.Status = models.KeyStatusActive
		out = append(out, &key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate authorization keys: %w", err)
	}
	return out, nil
}

// isUniqueViolation matches Postgres error code 23505 without binding the
// store to one driver's error type.
func isUniqueViolation(err error) bool {
	type coder interface{ SQLState() string }
	var c coder
	if errors.As(err, &c) {
		return c.SQLState() == "23505"
	}
	return false
}
