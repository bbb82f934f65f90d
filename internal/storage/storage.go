package storage

import (
	"context"

	"lv-onboarding/internal/accounts"
	"lv-onboarding/internal/identity"
)

// Stores groups the record stores that take part in one transaction.
type Stores struct {
	Identities identity.Store
	Accounts   accounts.Directory
}

// Tx runs fn inside a single storage transaction. If fn returns an error
// nothing it wrote is kept.
type Tx interface {
	RunInTx(ctx context.Context, fn func(Stores) error) error
}

// Backend is a complete storage implementation: the record stores used
// outside a transaction plus the transaction boundary.
type Backend interface {
	identity.Store
	accounts.Directory
	Tx
}

var (
	_ Backend = (*MemoryStore)(nil)
	_ Backend = (*PostgresStore)(nil)
)
