package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DecryptFunc turns a stored secret into its plaintext. Decryption itself is
// owned by the platform's key management.
type DecryptFunc func(ctx context.Context, ciphertext string) (string, error)

// querier is the subset of *pgxpool.Pool the store needs.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore reads credentials from a table with the columns
// id, family, approval_key, app_key, app_secret, us_exchange, ws_url and
// symbols (text[]).
type PostgresStore struct {
	db      querier
	table   string
	decrypt DecryptFunc
}

// NewPostgresStore creates a store over pool. decrypt may be nil when
// secrets are stored in plaintext.
func NewPostgresStore(pool *pgxpool.Pool, table string, decrypt DecryptFunc) *PostgresStore {
	return newPostgresStore(pool, table, decrypt)
}

func newPostgresStore(db querier, table string, decrypt DecryptFunc) *PostgresStore {
	return &PostgresStore{db: db, table: table, decrypt: decrypt}
}

// Resolve loads one credential by id.
func (s *PostgresStore) Resolve(ctx context.Context, id string) (Credential, error) {
	query := fmt.Sprintf(
		`SELECT id, family, COALESCE(approval_key, ''), COALESCE(app_key, ''),
		        COALESCE(app_secret, ''), COALESCE(us_exchange, ''),
		        COALESCE(ws_url, ''), COALESCE(symbols, '{}')
		   FROM %s WHERE id = $1`,
		pgx.Identifier{s.table}.Sanitize(),
	)

	var c Credential
	err := s.db.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Family, &c.ApprovalKey, &c.AppKey, &c.AppSecret, &c.USExchange, &c.URL, &c.Symbols,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Credential{}, ErrNotFound
	}
	if err != nil {
		return Credential{}, fmt.Errorf("query credential %s: %w", id, err)
	}

	c.Family = strings.ToLower(c.Family)
	if s.decrypt != nil {
		for _, secret := range []*string{&c.ApprovalKey, &c.AppSecret} {
			if *secret == "" {
				continue
			}
			plain, err := s.decrypt(ctx, *secret)
			if err != nil {
				return Credential{}, fmt.Errorf("decrypt credential %s: %w", id, err)
			}
			*secret = plain
		}
	}
	return c, nil
}
