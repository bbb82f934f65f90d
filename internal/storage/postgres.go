package storage

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"lv-onboarding/internal/accounts"
	"lv-onboarding/internal/identity"
	"lv-onboarding/internal/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

const (
	constraintAccountNumber  = "trading_accounts_account_number_key"
	constraintAccountOwner   = "trading_accounts_identity_id_key"
	constraintCompletedEmail = "identities_completed_email_key"
)

// Migrate applies the embedded schema. Statements are idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schemaSQL)
	return err
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct {
	pool *pgxpool.Pool
	pgStores
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, pgStores: pgStores{q: pool}}
}

func (s *PostgresStore) RunInTx(ctx context.Context, fn func(Stores) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	st := pgStores{q: tx}
	if err := fn(Stores{Identities: st, Accounts: st}); err != nil {
		return err
	}
	return mapCommitError(tx.Commit(ctx))
}

type pgStores struct {
	q querier
}

func (s pgStores) Create(ctx context.Context, email, passwordHash string) (string, error) {
	id := uuid.NewString()
	tag, err := s.q.Exec(ctx, `
		INSERT INTO identities (id, email, password_hash, status)
		SELECT $1, $2, $3, 'pending'
		WHERE NOT EXISTS (
			SELECT 1 FROM identities
			WHERE LOWER(email) = LOWER($2) AND status = 'completed'
		)
	`, id, strings.TrimSpace(email), passwordHash)
	if err != nil {
		return "", err
	}
	if tag.RowsAffected() == 0 {
		return "", identity.ErrEmailTaken
	}
	return id, nil
}

func (s pgStores) SetCredentials(ctx context.Context, id, email, passwordHash string) error {
	var taken bool
	if err := s.q.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM identities
			WHERE LOWER(email) = LOWER($1) AND status = 'completed'
		)
	`, strings.TrimSpace(email)).Scan(&taken); err != nil {
		return err
	}
	if taken {
		return identity.ErrEmailTaken
	}
	tag, err := s.q.Exec(ctx, `
		UPDATE identities
		SET email = $2, password_hash = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id, strings.TrimSpace(email), passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrCompleted(ctx, id)
	}
	return nil
}

func (s pgStores) Update(ctx context.Context, id string, fields map[string]string) error {
	patch, err := json.Marshal(identity.ProfileFromFields(fields))
	if err != nil {
		return err
	}
	unset := []string{}
	for key, value := range fields {
		if value == "" {
			unset = append(unset, key)
		}
	}
	tag, err := s.q.Exec(ctx, `
		UPDATE identities
		SET profile = (profile - $3::text[]) || $2::jsonb, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id, string(patch), unset)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrCompleted(ctx, id)
	}
	return nil
}

func (s pgStores) Get(ctx context.Context, id string) (identity.Identity, error) {
	if _, err := uuid.Parse(id); err != nil {
		return identity.Identity{}, identity.ErrNotFound
	}
	var ident identity.Identity
	var status string
	var profile []byte
	err := s.q.QueryRow(ctx, `
		SELECT id::text, email, password_hash, status, profile, created_at, updated_at, completed_at
		FROM identities
		WHERE id = $1
	`, id).Scan(&ident.ID, &ident.Email, &ident.PasswordHash, &status, &profile, &ident.CreatedAt, &ident.UpdatedAt, &ident.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return identity.Identity{}, identity.ErrNotFound
		}
		return identity.Identity{}, err
	}
	ident.Status = types.IdentityStatus(status)
	if err := json.Unmarshal(profile, &ident.Profile); err != nil {
		return identity.Identity{}, err
	}
	return ident, nil
}

func (s pgStores) Discard(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM identities WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrCompleted(ctx, id)
	}
	return nil
}

func (s pgStores) Finalize(ctx context.Context, id string, profile identity.Profile, at time.Time) error {
	raw, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	tag, err := s.q.Exec(ctx, `
		UPDATE identities
		SET status = 'completed', profile = $2::jsonb, completed_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'pending'
	`, id, string(raw), at.UTC())
	if err != nil {
		if isUniqueViolation(err, constraintCompletedEmail) {
			return identity.ErrEmailTaken
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrCompleted(ctx, id)
	}
	return nil
}

func (s pgStores) missingOrCompleted(ctx context.Context, id string) error {
	_, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return identity.ErrNotPending
}

func (s pgStores) Exists(ctx context.Context, accountNumber string) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM trading_accounts WHERE account_number = $1)", accountNumber).Scan(&exists)
	return exists, err
}

func (s pgStores) Insert(ctx context.Context, acc accounts.TradingAccount) error {
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO trading_accounts (
			id, identity_id, account_number, secret_hash,
			balance, equity, free_margin, margin,
			leverage, currency, status, created_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12
		)
	`, acc.ID, acc.IdentityID, acc.AccountNumber, acc.SecretHash,
		acc.Balance, acc.Equity, acc.FreeMargin, acc.Margin,
		acc.Leverage, acc.Currency, string(acc.Status), acc.CreatedAt)
	if err != nil {
		switch {
		case isUniqueViolation(err, constraintAccountNumber):
			return accounts.ErrDuplicateAccountNumber
		case isUniqueViolation(err, constraintAccountOwner):
			return accounts.ErrAccountExists
		}
		return err
	}
	return nil
}

func (s pgStores) FindByIdentity(ctx context.Context, identityID string) (accounts.TradingAccount, error) {
	if _, err := uuid.Parse(identityID); err != nil {
		return accounts.TradingAccount{}, accounts.ErrNotFound
	}
	var acc accounts.TradingAccount
	var status string
	err := s.q.QueryRow(ctx, `
		SELECT id::text, identity_id::text, account_number, secret_hash,
			balance, equity, free_margin, margin,
			leverage, currency, status, created_at
		FROM trading_accounts
		WHERE identity_id = $1
	`, identityID).Scan(
		&acc.ID, &acc.IdentityID, &acc.AccountNumber, &acc.SecretHash,
		&acc.Balance, &acc.Equity, &acc.FreeMargin, &acc.Margin,
		&acc.Leverage, &acc.Currency, &status, &acc.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return accounts.TradingAccount{}, accounts.ErrNotFound
		}
		return accounts.TradingAccount{}, err
	}
	acc.Status = types.AccountStatus(status)
	return acc, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

func mapCommitError(err error) error {
	if isUniqueViolation(err, constraintAccountNumber) {
		return accounts.ErrDuplicateAccountNumber
	}
	return err
}
