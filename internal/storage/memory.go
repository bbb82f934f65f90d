package storage

import (
	"context"
	"strings"
	"sync"
	"time"

	"lv-onboarding/internal/accounts"
	"lv-onboarding/internal/identity"
	"lv-onboarding/internal/types"

	"github.com/google/uuid"
)

type memState struct {
	identities map[string]identity.Identity
	// completed identities by lower-cased email
	emails     map[string]string
	accounts   map[string]accounts.TradingAccount
	byIdentity map[string]string
}

func newMemState() *memState {
	return &memState{
		identities: map[string]identity.Identity{},
		emails:     map[string]string{},
		accounts:   map[string]accounts.TradingAccount{},
		byIdentity: map[string]string{},
	}
}

func (s *memState) clone() *memState {
	out := newMemState()
	for k, v := range s.identities {
		out.identities[k] = v
	}
	for k, v := range s.emails {
		out.emails[k] = v
	}
	for k, v := range s.accounts {
		out.accounts[k] = v
	}
	for k, v := range s.byIdentity {
		out.byIdentity[k] = v
	}
	return out
}

// MemoryStore keeps identities and trading accounts in process memory. A
// transaction works on a copy of the state that replaces the original only on
// success.
type MemoryStore struct {
	txMu  sync.Mutex
	mu    sync.Mutex
	state *memState
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState(), now: time.Now}
}

// lockWrite excludes running transactions so a committed transaction cannot
// overwrite a concurrent direct write.
func (m *MemoryStore) lockWrite() func() {
	m.txMu.Lock()
	m.mu.Lock()
	return func() {
		m.mu.Unlock()
		m.txMu.Unlock()
	}
}

func (m *MemoryStore) view() memView {
	return memView{state: m.state, now: m.now}
}

func (m *MemoryStore) RunInTx(ctx context.Context, fn func(Stores) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	staged := m.state.clone()
	m.mu.Unlock()

	v := &lockedView{view: memView{state: staged, now: m.now}}
	if err := fn(Stores{Identities: v, Accounts: v}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.state = staged
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Create(ctx context.Context, email, passwordHash string) (string, error) {
	unlock := m.lockWrite()
	defer unlock()
	return m.view().Create(ctx, email, passwordHash)
}

func (m *MemoryStore) SetCredentials(ctx context.Context, id, email, passwordHash string) error {
	unlock := m.lockWrite()
	defer unlock()
	return m.view().SetCredentials(ctx, id, email, passwordHash)
}

func (m *MemoryStore) Update(ctx context.Context, id string, fields map[string]string) error {
	unlock := m.lockWrite()
	defer unlock()
	return m.view().Update(ctx, id, fields)
}

func (m *MemoryStore) Get(ctx context.Context, id string) (identity.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().Get(ctx, id)
}

func (m *MemoryStore) Discard(ctx context.Context, id string) error {
	unlock := m.lockWrite()
	defer unlock()
	return m.view().Discard(ctx, id)
}

func (m *MemoryStore) Finalize(ctx context.Context, id string, profile identity.Profile, at time.Time) error {
	// Finalize outside a transaction still has to be all-or-nothing.
	return m.RunInTx(ctx, func(st Stores) error {
		return st.Identities.Finalize(ctx, id, profile, at)
	})
}

func (m *MemoryStore) Exists(ctx context.Context, accountNumber string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().Exists(ctx, accountNumber)
}

func (m *MemoryStore) Insert(ctx context.Context, acc accounts.TradingAccount) error {
	unlock := m.lockWrite()
	defer unlock()
	return m.view().Insert(ctx, acc)
}

func (m *MemoryStore) FindByIdentity(ctx context.Context, identityID string) (accounts.TradingAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().FindByIdentity(ctx, identityID)
}

// CountAccounts returns the number of trading accounts owned by identityID.
func (m *MemoryStore) CountAccounts(identityID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, acc := range m.state.accounts {
		if acc.IdentityID == identityID {
			n++
		}
	}
	return n
}

func (m *MemoryStore) CountIdentities() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.identities)
}

// lockedView serialises calls made through Stores inside one transaction.
type lockedView struct {
	mu   sync.Mutex
	view memView
}

func (l *lockedView) Create(ctx context.Context, email, passwordHash string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.view.Create(ctx, email, passwordHash)
}

func (l *lockedView) SetCredentials(ctx context.Context, id, email, passwordHash string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.view.SetCredentials(ctx, id, email, passwordHash)
}

func (l *lockedView) Update(ctx context.Context, id string, fields map[string]string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.view.Update(ctx, id, fields)
}

func (l *lockedView) Get(ctx context.Context, id string) (identity.Identity, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.view.Get(ctx, id)
}

func (l *lockedView) Discard(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.view.Discard(ctx, id)
}

func (l *lockedView) Finalize(ctx context.Context, id string, profile identity.Profile, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.view.Finalize(ctx, id, profile, at)
}

func (l *lockedView) Exists(ctx context.Context, accountNumber string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.view.Exists(ctx, accountNumber)
}

func (l *lockedView) Insert(ctx context.Context, acc accounts.TradingAccount) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.view.Insert(ctx, acc)
}

func (l *lockedView) FindByIdentity(ctx context.Context, identityID string) (accounts.TradingAccount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.view.FindByIdentity(ctx, identityID)
}

// memView holds the unlocked operations; callers own the locking.
type memView struct {
	state *memState
	now   func() time.Time
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (v memView) Create(_ context.Context, email, passwordHash string) (string, error) {
	if _, taken := v.state.emails[normalizeEmail(email)]; taken {
		return "", identity.ErrEmailTaken
	}
	now := v.now().UTC()
	id := uuid.NewString()
	v.state.identities[id] = identity.Identity{
		ID:           id,
		Email:        strings.TrimSpace(email),
		PasswordHash: passwordHash,
		Status:       types.IdentityStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return id, nil
}

func (v memView) pending(id string) (identity.Identity, error) {
	ident, ok := v.state.identities[id]
	if !ok {
		return identity.Identity{}, identity.ErrNotFound
	}
	if ident.Status != types.IdentityStatusPending {
		return identity.Identity{}, identity.ErrNotPending
	}
	return ident, nil
}

func (v memView) SetCredentials(_ context.Context, id, email, passwordHash string) error {
	ident, err := v.pending(id)
	if err != nil {
		return err
	}
	if _, taken := v.state.emails[normalizeEmail(email)]; taken {
		return identity.ErrEmailTaken
	}
	ident.Email = strings.TrimSpace(email)
	ident.PasswordHash = passwordHash
	ident.UpdatedAt = v.now().UTC()
	v.state.identities[id] = ident
	return nil
}

func (v memView) Update(_ context.Context, id string, fields map[string]string) error {
	ident, err := v.pending(id)
	if err != nil {
		return err
	}
	merged := ident.Profile.Fields()
	for k, val := range fields {
		merged[k] = val
	}
	ident.Profile = identity.ProfileFromFields(merged)
	ident.UpdatedAt = v.now().UTC()
	v.state.identities[id] = ident
	return nil
}

func (v memView) Get(_ context.Context, id string) (identity.Identity, error) {
	ident, ok := v.state.identities[id]
	if !ok {
		return identity.Identity{}, identity.ErrNotFound
	}
	return ident, nil
}

func (v memView) Discard(_ context.Context, id string) error {
	if _, err := v.pending(id); err != nil {
		return err
	}
	delete(v.state.identities, id)
	return nil
}

func (v memView) Finalize(_ context.Context, id string, profile identity.Profile, at time.Time) error {
	ident, err := v.pending(id)
	if err != nil {
		return err
	}
	key := normalizeEmail(ident.Email)
	if _, taken := v.state.emails[key]; taken {
		return identity.ErrEmailTaken
	}
	completedAt := at.UTC()
	ident.Profile = profile
	ident.Status = types.IdentityStatusCompleted
	ident.CompletedAt = &completedAt
	ident.UpdatedAt = completedAt
	v.state.identities[id] = ident
	v.state.emails[key] = id
	return nil
}

func (v memView) Exists(_ context.Context, accountNumber string) (bool, error) {
	_, ok := v.state.accounts[accountNumber]
	return ok, nil
}

func (v memView) Insert(_ context.Context, acc accounts.TradingAccount) error {
	if _, ok := v.state.accounts[acc.AccountNumber]; ok {
		return accounts.ErrDuplicateAccountNumber
	}
	if _, ok := v.state.byIdentity[acc.IdentityID]; ok {
		return accounts.ErrAccountExists
	}
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = v.now().UTC()
	}
	v.state.accounts[acc.AccountNumber] = acc
	v.state.byIdentity[acc.IdentityID] = acc.AccountNumber
	return nil
}

func (v memView) FindByIdentity(_ context.Context, identityID string) (accounts.TradingAccount, error) {
	number, ok := v.state.byIdentity[identityID]
	if !ok {
		return accounts.TradingAccount{}, accounts.ErrNotFound
	}
	return v.state.accounts[number], nil
}
