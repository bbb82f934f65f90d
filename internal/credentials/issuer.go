package credentials

import (
	"context"
	"fmt"
	"math/rand"

	"lv-onboarding/internal/accounts"
	"lv-onboarding/internal/metrics"

	"go.uber.org/zap"
)

const (
	AccountNumberLength = 8
	SecretLength        = 10

	digits       = "0123456789"
	alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Generator produces candidate credential pairs.
type Generator interface {
	Candidate() accounts.Credential
}

// RandomGenerator draws every character uniformly from math/rand. Account
// numbers and secrets are display labels for the user, not authentication
// material, so a non-cryptographic source is sufficient.
type RandomGenerator struct{}

func (RandomGenerator) Candidate() accounts.Credential {
	return accounts.Credential{
		AccountNumber: randomAccountNumber(),
		Secret:        randomString(alphanumeric, SecretLength),
	}
}

func randomAccountNumber() string {
	// leading zero would be lost by anyone storing the number as an integer
	return randomString(digits[1:], 1) + randomString(digits, AccountNumberLength-1)
}

func randomString(alphabet string, n int) string {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(buf)
}

type Issuer struct {
	gen     Generator
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewIssuer(gen Generator, m *metrics.Metrics, logger *zap.Logger) *Issuer {
	if gen == nil {
		gen = RandomGenerator{}
	}
	return &Issuer{gen: gen, metrics: m, logger: logger}
}

// Issue returns a candidate whose account number was not found in dir. When
// the first candidate collides one replacement is generated and returned
// without a further lookup; the directory's insert constraint settles any
// remaining collision.
func (i *Issuer) Issue(ctx context.Context, dir accounts.Directory) (accounts.Credential, error) {
	cred := i.gen.Candidate()
	exists, err := dir.Exists(ctx, cred.AccountNumber)
	if err != nil {
		return accounts.Credential{}, fmt.Errorf("check account number: %w", err)
	}
	if !exists {
		return cred, nil
	}
	i.metrics.CollisionObserved()
	i.logger.Info("account number collision, regenerating", zap.String("account_number", cred.AccountNumber))
	return i.gen.Candidate(), nil
}
