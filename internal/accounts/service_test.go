package accounts

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lv-onboarding/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapDirectory struct {
	byNumber   map[string]TradingAccount
	insertErr  error
	insertions int
}

func newMapDirectory() *mapDirectory {
	return &mapDirectory{byNumber: map[string]TradingAccount{}}
}

func (d *mapDirectory) Exists(_ context.Context, number string) (bool, error) {
	_, ok := d.byNumber[number]
	return ok, nil
}

func (d *mapDirectory) Insert(_ context.Context, acc TradingAccount) error {
	d.insertions++
	if d.insertErr != nil {
		return d.insertErr
	}
	if _, ok := d.byNumber[acc.AccountNumber]; ok {
		return ErrDuplicateAccountNumber
	}
	acc.ID = "acc-" + acc.AccountNumber
	d.byNumber[acc.AccountNumber] = acc
	return nil
}

func (d *mapDirectory) FindByIdentity(_ context.Context, identityID string) (TradingAccount, error) {
	for _, acc := range d.byNumber {
		if acc.IdentityID == identityID {
			return acc, nil
		}
	}
	return TradingAccount{}, ErrNotFound
}

func TestNewProvisionerDefaults(t *testing.T) {
	p, err := NewProvisioner(Defaults{})
	require.NoError(t, err)
	assert.Equal(t, 100, p.defaults.Leverage)
	assert.Equal(t, "USD", p.defaults.Currency)

	_, err = NewProvisioner(Defaults{Leverage: 7})
	assert.Error(t, err)
	_, err = NewProvisioner(Defaults{StartingBalance: decimal.NewFromInt(-1)})
	assert.Error(t, err)
}

func TestProvisionDefaults(t *testing.T) {
	p, err := NewProvisioner(Defaults{StartingBalance: decimal.RequireFromString("250.00"), Leverage: 500, Currency: "EUR"})
	require.NoError(t, err)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("UTC+5", 5*3600))
	p.now = func() time.Time { return created }
	dir := newMapDirectory()

	acc, err := p.Provision(context.Background(), dir, "ident-1", Credential{AccountNumber: "12345678", Secret: "AbCdEf1234"})
	require.NoError(t, err)
	assert.Equal(t, "acc-12345678", acc.ID)
	assert.Equal(t, "ident-1", acc.IdentityID)
	assert.True(t, acc.Balance.Equal(decimal.RequireFromString("250")))
	assert.True(t, acc.Equity.Equal(acc.Balance))
	assert.True(t, acc.FreeMargin.Equal(acc.Balance))
	assert.True(t, acc.Margin.IsZero())
	assert.Equal(t, 500, acc.Leverage)
	assert.Equal(t, "EUR", acc.Currency)
	assert.Equal(t, types.AccountStatusPending, acc.Status)
	assert.Equal(t, time.UTC, acc.CreatedAt.Location())
	assert.True(t, acc.MatchesSecret("AbCdEf1234"))
	assert.False(t, acc.MatchesSecret("AbCdEf1235"))
}

func TestProvisionNeverRetries(t *testing.T) {
	p, err := NewProvisioner(Defaults{})
	require.NoError(t, err)
	dir := newMapDirectory()
	dir.byNumber["12345678"] = TradingAccount{IdentityID: "someone-else", AccountNumber: "12345678"}

	_, err = p.Provision(context.Background(), dir, "ident-1", Credential{AccountNumber: "12345678", Secret: "AbCdEf1234"})
	assert.ErrorIs(t, err, ErrDuplicateAccountNumber)
	assert.Equal(t, 1, dir.insertions)
	_, err = dir.FindByIdentity(context.Background(), "ident-1")
	assert.ErrorIs(t, err, ErrNotFound)

	down := errors.New("storage unreachable")
	dir.insertErr = down
	_, err = p.Provision(context.Background(), dir, "ident-1", Credential{AccountNumber: "87654321", Secret: "AbCdEf1234"})
	assert.ErrorIs(t, err, down)
}

func TestProvisionRejectsIncompleteInput(t *testing.T) {
	p, err := NewProvisioner(Defaults{})
	require.NoError(t, err)
	dir := newMapDirectory()

	_, err = p.Provision(context.Background(), dir, "", Credential{AccountNumber: "12345678", Secret: "x"})
	assert.Error(t, err)
	_, err = p.Provision(context.Background(), dir, "ident-1", Credential{AccountNumber: "12345678"})
	assert.Error(t, err)
	assert.Zero(t, dir.insertions)
}

func TestByIdentityHandler(t *testing.T) {
	dir := newMapDirectory()
	dir.byNumber["12345678"] = TradingAccount{ID: "a1", IdentityID: "ident-1", AccountNumber: "12345678", SecretHash: "$2a$10$hash"}
	h := NewHandler(dir)

	rec := httptest.NewRecorder()
	h.ByIdentity(rec, httptest.NewRequest(http.MethodGet, "/", nil), "ident-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"account_number":"12345678"`)
	assert.NotContains(t, rec.Body.String(), "$2a$10$hash")

	rec = httptest.NewRecorder()
	h.ByIdentity(rec, httptest.NewRequest(http.MethodGet, "/", nil), "missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
