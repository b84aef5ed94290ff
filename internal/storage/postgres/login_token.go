package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/yumyard-cafe/internal/domain/auth"
)

const (
	// Both statements of the CTE see the same snapshot, so the fresh row is
	// never deleted.
	replaceLoginTokenSQL = `WITH purged AS (DELETE FROM login_tokens WHERE email = $2)
		INSERT INTO login_tokens (id, email, code_hash, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)`

	latestLoginTokenSQL = `SELECT id, email, code_hash, expires_at, used, created_at
		FROM login_tokens WHERE email = $1
		ORDER BY created_at DESC LIMIT 1`

	markLoginTokenUsedSQL = `UPDATE login_tokens SET used = TRUE WHERE id = $1 AND NOT used`

	loginTokenExistsSQL = `SELECT EXISTS (SELECT 1 FROM login_tokens WHERE id = $1)`
)

var _ auth.Repository = (*LoginTokenRepository)(nil)

// LoginTokenRepository implements auth.Repository backed by PostgreSQL.
type LoginTokenRepository struct {
	pool *pgxpool.Pool
}

// NewLoginTokenRepository returns a LoginTokenRepository that uses the given pool.
func NewLoginTokenRepository(pool *pgxpool.Pool) *LoginTokenRepository {
	return &LoginTokenRepository{pool: pool}
}

// Replace drops every token of t.Email and stores t under a fresh id.
func (r *LoginTokenRepository) Replace(ctx context.Context, t *auth.LoginToken) error {
	id := uuid.NewString()
	_, err := conn(ctx, r.pool).Exec(ctx, replaceLoginTokenSQL, id, t.Email, t.CodeHash, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("replacing login token for %q: %w", t.Email, err)
	}
	t.ID = id
	return nil
}

func (r *LoginTokenRepository) Latest(ctx context.Context, email string) (*auth.LoginToken, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, latestLoginTokenSQL, email)
	if err != nil {
		return nil, fmt.Errorf("getting login token for %q: %w", email, err)
	}
	t, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (auth.LoginToken, error) {
		var t auth.LoginToken
		err := row.Scan(&t.ID, &t.Email, &t.CodeHash, &t.ExpiresAt, &t.Used, &t.CreatedAt)
		return t, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, fmt.Errorf("getting login token for %q: %w", email, err)
	}
	return &t, nil
}

// MarkUsed flips the used flag. The conditional update makes concurrent
// verifications of one code race to a single winner.
func (r *LoginTokenRepository) MarkUsed(ctx context.Context, id string) error {
	q := conn(ctx, r.pool)
	tag, err := q.Exec(ctx, markLoginTokenUsedSQL, id)
	if err != nil {
		return fmt.Errorf("marking login token %q used: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := q.QueryRow(ctx, loginTokenExistsSQL, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking login token %q: %w", id, err)
	}
	if !exists {
		return auth.ErrNotFound
	}
	return auth.ErrCodeUsed
}
