package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lv-onboarding/internal/types"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound               = errors.New("account not found")
	ErrDuplicateAccountNumber = errors.New("account number already exists")
	ErrAccountExists          = errors.New("identity already owns a trading account")
)

var allowedLeverageValues = map[int]struct{}{
	2: {}, 5: {}, 10: {}, 20: {}, 30: {}, 40: {}, 50: {},
	100: {}, 200: {}, 500: {}, 1000: {}, 2000: {}, 3000: {},
}

const defaultNewAccountLeverage = 100

func isAllowedLeverage(v int) bool {
	_, ok := allowedLeverageValues[v]
	return ok
}

// Credential is the account identifier and secret pair shown to the user once.
type Credential struct {
	AccountNumber string `json:"account_number"`
	Secret        string `json:"secret"`
}

type TradingAccount struct {
	ID            string              `json:"id"`
	IdentityID    string              `json:"identity_id"`
	AccountNumber string              `json:"account_number"`
	SecretHash    string              `json:"-"`
	Balance       decimal.Decimal     `json:"balance"`
	Equity        decimal.Decimal     `json:"equity"`
	FreeMargin    decimal.Decimal     `json:"free_margin"`
	Margin        decimal.Decimal     `json:"margin"`
	Leverage      int                 `json:"leverage"`
	Currency      string              `json:"currency"`
	Status        types.AccountStatus `json:"status"`
	CreatedAt     time.Time           `json:"created_at"`
}

// MatchesSecret reports whether plain is the secret issued with this account.
func (a TradingAccount) MatchesSecret(plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(a.SecretHash), []byte(plain)) == nil
}

// Directory is the shared account directory. Insert must reject a duplicate
// account number with ErrDuplicateAccountNumber; that constraint is the
// authority on uniqueness.
type Directory interface {
	Exists(ctx context.Context, accountNumber string) (bool, error)
	Insert(ctx context.Context, acc TradingAccount) error
	FindByIdentity(ctx context.Context, identityID string) (TradingAccount, error)
}

type Defaults struct {
	StartingBalance decimal.Decimal
	Leverage        int
	Currency        string
}

type Provisioner struct {
	defaults Defaults
	now      func() time.Time
}

func NewProvisioner(d Defaults) (*Provisioner, error) {
	if d.Leverage == 0 {
		d.Leverage = defaultNewAccountLeverage
	}
	if !isAllowedLeverage(d.Leverage) {
		return nil, fmt.Errorf("unsupported default leverage %d; allowed: 2, 5, 10, 20, 30, 40, 50, 100, 200, 500, 1000, 2000, 3000", d.Leverage)
	}
	if d.StartingBalance.IsNegative() {
		return nil, errors.New("starting balance must not be negative")
	}
	if d.Currency == "" {
		d.Currency = "USD"
	}
	return &Provisioner{defaults: d, now: time.Now}, nil
}

// Provision inserts the single trading account owned by identityID. It does
// not retry; an insert rejection is returned as is.
func (p *Provisioner) Provision(ctx context.Context, dir Directory, identityID string, cred Credential) (TradingAccount, error) {
	if identityID == "" {
		return TradingAccount{}, errors.New("identity_id is required")
	}
	if cred.AccountNumber == "" || cred.Secret == "" {
		return TradingAccount{}, errors.New("credential is incomplete")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cred.Secret), bcrypt.DefaultCost)
	if err != nil {
		return TradingAccount{}, err
	}
	balance := p.defaults.StartingBalance
	acc := TradingAccount{
		IdentityID:    identityID,
		AccountNumber: cred.AccountNumber,
		SecretHash:    string(hash),
		Balance:       balance,
		Equity:        balance,
		FreeMargin:    balance,
		Margin:        decimal.Zero,
		Leverage:      p.defaults.Leverage,
		Currency:      p.defaults.Currency,
		Status:        types.AccountStatusPending,
		CreatedAt:     p.now().UTC(),
	}
	if err := dir.Insert(ctx, acc); err != nil {
		return TradingAccount{}, err
	}
	return dir.FindByIdentity(ctx, identityID)
}
