package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Deviart/internal/domain"
)

// TokenRepo — OAuth-токен аккаунта (одна строка).
type TokenRepo struct {
	pool *pgxpool.Pool
}

// NewTokenRepo создаёт новый TokenRepo.
func NewTokenRepo(pool *pgxpool.Pool) *TokenRepo {
	return &TokenRepo{pool: pool}
}

// Load возвращает сохранённый токен или ErrNotFound.
func (r *TokenRepo) Load(ctx context.Context) (*domain.Token, error) {
	var t domain.Token
	var expiresAt *time.Time

	err := r.pool.QueryRow(ctx, `
		SELECT access_token, refresh_token, token_type, expires_at, updated_at
		FROM oauth_tokens
		WHERE id = 1
	`).Scan(&t.AccessToken, &t.RefreshToken, &t.TokenType, &expiresAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	if expiresAt != nil {
		t.ExpiresAt = *expiresAt
	}
	return &t, nil
}

// Save заменяет сохранённый токен.
func (r *TokenRepo) Save(ctx context.Context, t *domain.Token) error {
	var expiresAt *time.Time
	if !t.ExpiresAt.IsZero() {
		expiresAt = &t.ExpiresAt
	}
	tokenType := t.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO oauth_tokens (id, access_token, refresh_token, token_type, expires_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET access_token = EXCLUDED.access_token,
		    refresh_token = EXCLUDED.refresh_token,
		    token_type = EXCLUDED.token_type,
		    expires_at = EXCLUDED.expires_at,
		    updated_at = now()
	`, t.AccessToken, t.RefreshToken, tokenType, expiresAt)
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}
