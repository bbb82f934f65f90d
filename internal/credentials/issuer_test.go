package credentials

import (
	"context"
	"errors"
	"testing"
	"unicode"

	"lv-onboarding/internal/accounts"
	"lv-onboarding/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sequenceGenerator struct {
	creds []accounts.Credential
	calls int
}

func (g *sequenceGenerator) Candidate() accounts.Credential {
	c := g.creds[g.calls]
	g.calls++
	return c
}

type fakeDirectory struct {
	existing map[string]bool
	lookups  []string
	err      error
}

func (d *fakeDirectory) Exists(_ context.Context, number string) (bool, error) {
	d.lookups = append(d.lookups, number)
	if d.err != nil {
		return false, d.err
	}
	return d.existing[number], nil
}

func (d *fakeDirectory) Insert(context.Context, accounts.TradingAccount) error { return nil }

func (d *fakeDirectory) FindByIdentity(context.Context, string) (accounts.TradingAccount, error) {
	return accounts.TradingAccount{}, accounts.ErrNotFound
}

func newIssuer(gen Generator) (*Issuer, *metrics.Metrics) {
	m := metrics.New(prometheus.NewRegistry())
	return NewIssuer(gen, m, zap.NewNop()), m
}

func TestRandomGeneratorShape(t *testing.T) {
	gen := RandomGenerator{}
	for i := 0; i < 200; i++ {
		c := gen.Candidate()
		require.Len(t, c.AccountNumber, AccountNumberLength)
		require.Len(t, c.Secret, SecretLength)
		assert.NotEqual(t, byte('0'), c.AccountNumber[0])
		for _, r := range c.AccountNumber {
			assert.True(t, unicode.IsDigit(r), "account number %q", c.AccountNumber)
		}
		for _, r := range c.Secret {
			assert.True(t, unicode.IsDigit(r) || unicode.IsLetter(r), "secret %q", c.Secret)
		}
	}
}

func TestIssueUnique(t *testing.T) {
	gen := &sequenceGenerator{creds: []accounts.Credential{{AccountNumber: "10000001", Secret: "aaaaaaaaaa"}}}
	issuer, m := newIssuer(gen)
	dir := &fakeDirectory{existing: map[string]bool{}}

	cred, err := issuer.Issue(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "10000001", cred.AccountNumber)
	assert.Equal(t, []string{"10000001"}, dir.lookups)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CredentialCollisions))
}

func TestIssueRegeneratesOnceOnCollision(t *testing.T) {
	gen := &sequenceGenerator{creds: []accounts.Credential{
		{AccountNumber: "10000001", Secret: "aaaaaaaaaa"},
		{AccountNumber: "10000002", Secret: "bbbbbbbbbb"},
		{AccountNumber: "10000003", Secret: "cccccccccc"},
	}}
	issuer, m := newIssuer(gen)
	dir := &fakeDirectory{existing: map[string]bool{"10000001": true}}

	cred, err := issuer.Issue(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, accounts.Credential{AccountNumber: "10000002", Secret: "bbbbbbbbbb"}, cred)
	assert.Equal(t, 2, gen.calls, "exactly one replacement is generated")
	assert.Equal(t, []string{"10000001"}, dir.lookups, "replacement is not checked again")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CredentialCollisions))
}

func TestIssueNeverReturnsObservedExisting(t *testing.T) {
	dir := &fakeDirectory{existing: map[string]bool{}}
	issuer, _ := newIssuer(RandomGenerator{})
	for i := 0; i < 100; i++ {
		cred, err := issuer.Issue(context.Background(), dir)
		require.NoError(t, err)
		for _, seen := range dir.lookups {
			if dir.existing[seen] {
				assert.NotEqual(t, seen, cred.AccountNumber)
			}
		}
		dir.existing[cred.AccountNumber] = true
	}
}

func TestIssueDirectoryError(t *testing.T) {
	gen := &sequenceGenerator{creds: []accounts.Credential{{AccountNumber: "10000001", Secret: "aaaaaaaaaa"}}}
	issuer, _ := newIssuer(gen)
	down := errors.New("connection refused")

	_, err := issuer.Issue(context.Background(), &fakeDirectory{err: down})
	assert.ErrorIs(t, err, down)
}
