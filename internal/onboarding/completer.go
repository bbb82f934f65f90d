package onboarding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lv-onboarding/internal/accounts"
	"lv-onboarding/internal/credentials"
	"lv-onboarding/internal/identity"
	"lv-onboarding/internal/metrics"
	"lv-onboarding/internal/notify"
	"lv-onboarding/internal/storage"

	"go.uber.org/zap"
)

// Completion carries the credential. It is handed out once and never stored
// in plain form.
type Completion struct {
	IdentityID string                  `json:"identity_id"`
	Credential accounts.Credential     `json:"credential"`
	Account    accounts.TradingAccount `json:"account"`
}

type Completer struct {
	store       StepStore
	tx          storage.Tx
	issuer      *credentials.Issuer
	provisioner *accounts.Provisioner
	notifier    *notify.Notifier
	metrics     *metrics.Metrics
	logger      *zap.Logger
	maxAttempts int
	now         func() time.Time
}

func NewCompleter(store StepStore, tx storage.Tx, issuer *credentials.Issuer, provisioner *accounts.Provisioner, notifier *notify.Notifier, m *metrics.Metrics, logger *zap.Logger, maxAttempts int) *Completer {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Completer{
		store:       store,
		tx:          tx,
		issuer:      issuer,
		provisioner: provisioner,
		notifier:    notifier,
		metrics:     m,
		logger:      logger,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// Review returns the merged fields of a fully completed attempt, ready for
// the final confirmation.
func (c *Completer) Review(ctx context.Context, attemptID string) (map[string]string, error) {
	recs, err := c.complete(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	return publicFields(mergeFields(recs)), nil
}

func (c *Completer) complete(ctx context.Context, attemptID string) (map[int]StepRecord, error) {
	if attemptID == "" {
		return nil, redirectTo(1)
	}
	recs, err := c.store.All(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if missing := lowestIncomplete(recs, StepCount+1); missing != 0 {
		return nil, redirectTo(missing)
	}
	if recs[1].Fields[FieldIdentityID] == "" {
		return nil, redirectTo(1)
	}
	return recs, nil
}

func mergeFields(recs map[int]StepRecord) map[string]string {
	out := map[string]string{}
	for n := 1; n <= StepCount; n++ {
		for k, v := range recs[n].Fields {
			out[k] = v
		}
	}
	return out
}

// Complete finalizes the identity and opens its trading account in one
// transaction. A duplicate account number reruns the transaction with a fresh
// credential up to maxAttempts times. Any other failure leaves the step data
// in place so the user can retry.
func (c *Completer) Complete(ctx context.Context, attemptID string) (Completion, error) {
	recs, err := c.complete(ctx, attemptID)
	if err != nil {
		return Completion{}, err
	}
	merged := mergeFields(recs)
	identityID := merged[FieldIdentityID]
	profile := identity.ProfileFromFields(merged)

	var result Completion
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Completion{}, err
		}
		err = c.tx.RunInTx(ctx, func(s storage.Stores) error {
			if err := s.Identities.Finalize(ctx, identityID, profile, c.now().UTC()); err != nil {
				return err
			}
			cred, err := c.issuer.Issue(ctx, s.Accounts)
			if err != nil {
				return err
			}
			acc, err := c.provisioner.Provision(ctx, s.Accounts, identityID, cred)
			if err != nil {
				return err
			}
			result = Completion{IdentityID: identityID, Credential: cred, Account: acc}
			return nil
		})
		if err == nil {
			break
		}
		switch {
		case errors.Is(err, accounts.ErrDuplicateAccountNumber):
			c.metrics.CollisionObserved()
			c.logger.Warn("account number taken at insert, retrying",
				zap.String("identity_id", identityID), zap.Int("attempt", attempt))
			continue
		case errors.Is(err, identity.ErrEmailTaken):
			c.metrics.CompletionFailed("email_taken")
			return Completion{}, &ValidationError{Fields: map[string]string{FieldEmail: err.Error()}}
		case errors.Is(err, identity.ErrNotPending), errors.Is(err, accounts.ErrAccountExists):
			c.metrics.CompletionFailed("already_completed")
			return Completion{}, ErrAlreadyCompleted
		default:
			c.metrics.CompletionFailed("storage")
			c.logger.Error("registration completion failed", zap.String("identity_id", identityID), zap.Error(err))
			return Completion{}, fmt.Errorf("%w: %w", ErrProvisioningFailed, err)
		}
	}
	if err != nil {
		c.metrics.CompletionFailed("collisions_exhausted")
		c.logger.Error("registration completion ran out of account numbers",
			zap.String("identity_id", identityID), zap.Int("attempts", c.maxAttempts))
		return Completion{}, fmt.Errorf("%w: %w", ErrProvisioningFailed, err)
	}

	if err := c.store.Clear(ctx, attemptID); err != nil {
		c.logger.Warn("clear step data after completion", zap.String("identity_id", identityID), zap.Error(err))
	}
	c.metrics.AccountProvisioned()
	c.logger.Info("trading account opened",
		zap.String("identity_id", identityID), zap.String("account_number", result.Credential.AccountNumber))
	c.notifier.AccountOpened(merged[FieldEmail], profile.FullName(), result.Credential.AccountNumber)
	return result, nil
}
