package repository

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pawedaran/internal/domain"
)

var ErrTokenNotFound = errors.New("token not found")

type PersonalAccessTokenRepository struct {
	db *sql.DB
}

func NewPersonalAccessTokenRepository(db *sql.DB) *PersonalAccessTokenRepository {
	return &PersonalAccessTokenRepository{db: db}
}

// SplitPlainToken splits "<id>|<secret>" into its parts. Tokens without an id prefix
// return a nil id and the whole string as the secret.
func SplitPlainToken(plainToken string) (*int64, string) {
	idx := strings.Index(plainToken, "|")
	if idx <= 0 {
		return nil, plainToken
	}

	id, err := strconv.ParseInt(plainToken[:idx], 10, 64)
	if err != nil {
		return nil, plainToken[idx+1:]
	}
	return &id, plainToken[idx+1:]
}

func HashToken(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return fmt.Sprintf("%x", sum)
}

// FindTokenByPlainToken resolves a bearer token to its owner and the owner's role.
// Only the sha256 of the secret is stored, so the plain value never reaches the database.
func (r *PersonalAccessTokenRepository) FindTokenByPlainToken(ctx context.Context, plainToken string) (*domain.PersonalAccessToken, error) {
	plainToken = strings.TrimSpace(plainToken)
	if plainToken == "" {
		return nil, errors.New("empty token")
	}

	tokenID, secret := SplitPlainToken(plainToken)
	hash := HashToken(secret)

	query := `
		SELECT t.id, t.token, t.user_id, u.role, t.abilities, t.expires_at
		FROM personal_access_tokens t
		JOIN users u ON u.id = t.user_id AND u.deleted_at IS NULL
		WHERE t.token = $1
		  AND (t.expires_at IS NULL OR t.expires_at > $2)
	`
	args := []any{hash, time.Now()}
	if tokenID != nil {
		query += ` AND t.id = $3`
		args = append(args, *tokenID)
	}

	var (
		pat  domain.PersonalAccessToken
		role string
	)
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&pat.ID,
		&pat.TokenHash,
		&pat.UserID,
		&role,
		&pat.Abilities,
		&pat.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("find token: %w", err)
	}
	pat.Role = domain.Role(role)

	if _, err := r.db.ExecContext(ctx, `UPDATE personal_access_tokens SET last_used_at = now() WHERE id = $1`, pat.ID); err != nil {
		return nil, fmt.Errorf("touch token: %w", err)
	}

	return &pat, nil
}
