package identity

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"lv-onboarding/internal/types"
)

var (
	ErrNotFound   = errors.New("identity not found")
	ErrEmailTaken = errors.New("email is already registered")
	ErrNotPending = errors.New("identity registration is already completed")
)

// Identity is the person being registered. ID is assigned once by Create and
// never changes.
type Identity struct {
	ID           string               `json:"id"`
	Email        string               `json:"email"`
	PasswordHash string               `json:"-"`
	Status       types.IdentityStatus `json:"status"`
	Profile      Profile              `json:"profile"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
	CompletedAt  *time.Time           `json:"completed_at,omitempty"`
}

// Profile keys match the registration step field names, so step output can be
// merged into it without a mapping table.
type Profile struct {
	FirstName         string `json:"first_name,omitempty"`
	MiddleName        string `json:"middle_name,omitempty"`
	LastName          string `json:"last_name,omitempty"`
	Phone             string `json:"phone,omitempty"`
	DateOfBirth       string `json:"date_of_birth,omitempty"`
	Gender            string `json:"gender,omitempty"`
	Country           string `json:"country,omitempty"`
	AddressLine       string `json:"address_line,omitempty"`
	City              string `json:"city,omitempty"`
	PostalCode        string `json:"postal_code,omitempty"`
	BankName          string `json:"bank_name,omitempty"`
	AccountHolder     string `json:"account_holder,omitempty"`
	BankAccountNumber string `json:"bank_account_number,omitempty"`
	SwiftCode         string `json:"swift_code,omitempty"`
	DocumentType      string `json:"document_type,omitempty"`
	DocumentNumber    string `json:"document_number,omitempty"`
	DocumentRef       string `json:"document_ref,omitempty"`
	SelfieRef         string `json:"selfie_ref,omitempty"`
	SignatureRef      string `json:"signature_ref,omitempty"`
	AcceptTerms       string `json:"accept_terms,omitempty"`
}

// ProfileFromFields picks the profile attributes out of a flat field map.
// Unknown keys are ignored.
func ProfileFromFields(fields map[string]string) Profile {
	var p Profile
	raw, err := json.Marshal(fields)
	if err != nil {
		return p
	}
	_ = json.Unmarshal(raw, &p)
	return p
}

func (p Profile) Fields() map[string]string {
	out := map[string]string{}
	raw, err := json.Marshal(p)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(raw, &out)
	return out
}

func (p Profile) FullName() string {
	name := p.FirstName
	if p.MiddleName != "" {
		name += " " + p.MiddleName
	}
	if p.LastName != "" {
		name += " " + p.LastName
	}
	return name
}

// Store is the identity record store consumed by the registration steps.
type Store interface {
	Create(ctx context.Context, email, passwordHash string) (string, error)
	SetCredentials(ctx context.Context, id, email, passwordHash string) error
	// Update sets the given profile keys. An empty value unsets the key.
	Update(ctx context.Context, id string, fields map[string]string) error
	Get(ctx context.Context, id string) (Identity, error)
	// Discard removes a pending identity. Completed identities are kept.
	Discard(ctx context.Context, id string) error
	Finalize(ctx context.Context, id string, profile Profile, at time.Time) error
}
