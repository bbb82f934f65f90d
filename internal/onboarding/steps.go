package onboarding

import (
	"fmt"

	"lv-onboarding/internal/types"
)

const StepCount = 6

const CompletePath = "/signup/complete"

const (
	FieldEmail             = "email"
	FieldPassword          = "password"
	FieldIdentityID        = "identity_id"
	FieldFirstName         = "first_name"
	FieldMiddleName        = "middle_name"
	FieldLastName          = "last_name"
	FieldPhone             = "phone"
	FieldDateOfBirth       = "date_of_birth"
	FieldGender            = "gender"
	FieldCountry           = "country"
	FieldAddressLine       = "address_line"
	FieldCity              = "city"
	FieldPostalCode        = "postal_code"
	FieldBankName          = "bank_name"
	FieldAccountHolder     = "account_holder"
	FieldBankAccountNumber = "bank_account_number"
	FieldSwiftCode         = "swift_code"
	FieldDocumentType      = "document_type"
	FieldDocumentNumber    = "document_number"
	FieldAcceptTerms       = "accept_terms"
)

// Step is one registration stage and the fields it owns.
type Step struct {
	Number    int
	Key       string
	Fields    []string
	Artifacts []types.ArtifactKind
}

func (s Step) Path() string {
	return PathFor(s.Number)
}

var steps = []Step{
	{Number: 1, Key: "account", Fields: []string{FieldEmail, FieldPassword}},
	{Number: 2, Key: "personal", Fields: []string{FieldFirstName, FieldMiddleName, FieldLastName, FieldPhone, FieldDateOfBirth, FieldGender}},
	{Number: 3, Key: "address", Fields: []string{FieldCountry, FieldAddressLine, FieldCity, FieldPostalCode}},
	{Number: 4, Key: "bank", Fields: []string{FieldBankName, FieldAccountHolder, FieldBankAccountNumber, FieldSwiftCode}},
	{
		Number:    5,
		Key:       "identity_documents",
		Fields:    []string{FieldDocumentType, FieldDocumentNumber},
		Artifacts: []types.ArtifactKind{types.ArtifactDocument, types.ArtifactSelfie},
	},
	{
		Number:    6,
		Key:       "signature",
		Fields:    []string{FieldAcceptTerms},
		Artifacts: []types.ArtifactKind{types.ArtifactSignature},
	},
}

func Steps() []Step {
	out := make([]Step, len(steps))
	copy(out, steps)
	return out
}

func StepByNumber(n int) (Step, bool) {
	if n < 1 || n > StepCount {
		return Step{}, false
	}
	return steps[n-1], true
}

// PathFor maps a step number to its route. StepCount+1 is the final
// confirmation.
func PathFor(n int) string {
	switch {
	case n <= 1:
		return "/signup"
	case n > StepCount:
		return CompletePath
	default:
		return fmt.Sprintf("/signup/step-%d", n)
	}
}

// RefField is the step field that records where an artifact was stored.
func RefField(kind types.ArtifactKind) string {
	return string(kind) + "_ref"
}
