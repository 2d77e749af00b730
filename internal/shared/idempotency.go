package shared

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-wms/internal/platform/db"
)

// IdempotencyHeader carries the client supplied request key.
const IdempotencyHeader = "Idempotency-Key"

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// IdempotencyStore persists processed keys.
type IdempotencyStore struct {
	pool   execer
	logger *slog.Logger
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool, logger *slog.Logger) *IdempotencyStore {
	if pool == nil {
		return newIdempotencyStore(nil, logger)
	}
	return newIdempotencyStore(pool, logger)
}

func newIdempotencyStore(pool execer, logger *slog.Logger) *IdempotencyStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdempotencyStore{pool: pool, logger: logger}
}

// ErrIdempotencyConflict indicates a duplicate key.
var ErrIdempotencyConflict = fmt.Errorf("idempotent request already processed: %w", ErrConflict)

// ParseIdempotencyKey validates a header value. Blank means no key.
func ParseIdempotencyKey(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", FieldErrors{"idempotency_key": "must be a UUID"}
	}
	return id.String(), nil
}

// CheckAndInsert ensures key uniqueness per module.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if s == nil || s.pool == nil {
		return errors.New("idempotency store not initialised")
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)`, key, module, time.Now())
	if db.IsUniqueViolation(err) {
		return ErrIdempotencyConflict
	}
	return err
}

// Cleanup removes entries older than retention.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Delete removes a key, typically used to roll back failed processing.
func (s *IdempotencyStore) Delete(ctx context.Context, key, module string) error {
	if s == nil || s.pool == nil {
		return nil
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key=$1 AND module=$2`, key, module)
	return err
}

// Guard runs fn once per key and module. A failed fn releases the key so the
// client may retry. A blank key or nil store runs fn unguarded.
func (s *IdempotencyStore) Guard(ctx context.Context, key, module string, fn func() error) error {
	if s == nil || s.pool == nil || key == "" {
		return fn()
	}
	if err := s.CheckAndInsert(ctx, key, module); err != nil {
		return err
	}
	if err := fn(); err != nil {
		// The key stays claimed until retention cleanup if the release fails.
		if derr := s.Delete(context.WithoutCancel(ctx), key, module); derr != nil {
			s.logger.Error("release idempotency key",
				slog.String("module", module), slog.String("key", key), slog.Any("error", derr))
		}
		return err
	}
	return nil
}
