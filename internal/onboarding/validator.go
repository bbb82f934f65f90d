package onboarding

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"lv-onboarding/internal/artifacts"
	"lv-onboarding/internal/types"

	"github.com/go-playground/validator/v10"
)

const (
	minimumAge = 18
	dateLayout = "2006-01-02"
	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes = 72
)

var postalCodeRe = regexp.MustCompile(`^[A-Za-z0-9 -]{3,12}$`)

// StepInput is the raw submission for one step.
type StepInput struct {
	Fields map[string]string
	Files  map[string]artifacts.Upload
}

// Accepted is a validated step. Password is kept apart from Fields so it is
// never written to the step store.
type Accepted struct {
	Fields   map[string]string
	Password string
	Files    map[types.ArtifactKind]artifacts.File
}

type accountForm struct {
	Email    string `field:"email" validate:"required,max=254,email"`
	Password string `field:"password" validate:"required,min=8,max=72"`
}

type personalForm struct {
	FirstName   string `field:"first_name" validate:"required,min=2,max=60"`
	MiddleName  string `field:"middle_name" validate:"omitempty,max=60"`
	LastName    string `field:"last_name" validate:"required,min=2,max=60"`
	Phone       string `field:"phone" validate:"required,len=10,number"`
	DateOfBirth string `field:"date_of_birth" validate:"required,datetime=2006-01-02,adult"`
	Gender      string `field:"gender" validate:"required,oneof=male female other"`
}

type addressForm struct {
	Country     string `field:"country" validate:"required,len=2,alpha"`
	AddressLine string `field:"address_line" validate:"required,min=6,max=280"`
	City        string `field:"city" validate:"required,min=2,max=100"`
	PostalCode  string `field:"postal_code" validate:"required,postalcode"`
}

type bankForm struct {
	BankName          string `field:"bank_name" validate:"required,min=2,max=120"`
	AccountHolder     string `field:"account_holder" validate:"required,min=3,max=140"`
	BankAccountNumber string `field:"bank_account_number" validate:"required,min=8,max=34,alphanum"`
	SwiftCode         string `field:"swift_code" validate:"omitempty,alphanum,len=8|len=11"`
}

type documentsForm struct {
	DocumentType   string `field:"document_type" validate:"required,oneof=passport id_card driver_license other"`
	DocumentNumber string `field:"document_number" validate:"required,min=3,max=80"`
}

type signatureForm struct {
	AcceptTerms string `field:"accept_terms" validate:"required,eq=true"`
}

type nowKey struct{}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("field")
	})
	must(v.RegisterValidationCtx("adult", func(ctx context.Context, fl validator.FieldLevel) bool {
		now, _ := ctx.Value(nowKey{}).(time.Time)
		born, err := time.Parse(dateLayout, fl.Field().String())
		return err == nil && oldEnough(born, now)
	}))
	must(v.RegisterValidation("postalcode", func(fl validator.FieldLevel) bool {
		return postalCodeRe.MatchString(fl.Field().String())
	}))
	return v
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// formFor builds the normalised form of step n. Text is trimmed; passwords
// are not.
func formFor(n int, in map[string]string) interface{} {
	value := func(key string) string { return strings.TrimSpace(in[key]) }
	switch n {
	case 1:
		return &accountForm{Email: value(FieldEmail), Password: in[FieldPassword]}
	case 2:
		return &personalForm{
			FirstName:   value(FieldFirstName),
			MiddleName:  value(FieldMiddleName),
			LastName:    value(FieldLastName),
			Phone:       value(FieldPhone),
			DateOfBirth: value(FieldDateOfBirth),
			Gender:      strings.ToLower(value(FieldGender)),
		}
	case 3:
		return &addressForm{
			Country:     strings.ToUpper(value(FieldCountry)),
			AddressLine: value(FieldAddressLine),
			City:        value(FieldCity),
			PostalCode:  value(FieldPostalCode),
		}
	case 4:
		return &bankForm{
			BankName:          value(FieldBankName),
			AccountHolder:     value(FieldAccountHolder),
			BankAccountNumber: value(FieldBankAccountNumber),
			SwiftCode:         value(FieldSwiftCode),
		}
	case 5:
		raw := value(FieldDocumentType)
		docType := string(normalizeDocumentType(raw))
		if docType == "" {
			docType = strings.ToLower(raw)
		}
		return &documentsForm{DocumentType: docType, DocumentNumber: value(FieldDocumentNumber)}
	case 6:
		return &signatureForm{AcceptTerms: value(FieldAcceptTerms)}
	}
	return nil
}

// formFields collects the non-empty form values by field name. The password
// never leaves the form.
func formFields(form interface{}) map[string]string {
	out := map[string]string{}
	v := reflect.Indirect(reflect.ValueOf(form))
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		name := t.Field(i).Tag.Get("field")
		if name == "" || name == FieldPassword {
			continue
		}
		if s := v.Field(i).String(); s != "" {
			out[name] = s
		}
	}
	return out
}

// Validate checks one step submission. It has no side effects; now is only
// used for the age rule.
func Validate(step Step, in StepInput, now time.Time) (Accepted, *ValidationError) {
	errs := map[string]string{}
	fail := func(key, msg string) {
		if _, ok := errs[key]; !ok {
			errs[key] = msg
		}
	}

	var out Accepted
	form := formFor(step.Number, in.Fields)
	if form == nil {
		return Accepted{}, &ValidationError{Fields: map[string]string{"step": "unknown step"}}
	}
	ctx := context.WithValue(context.Background(), nowKey{}, now)
	if err := validate.StructCtx(ctx, form); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			fail("step", err.Error())
		}
		for _, fe := range fieldErrs {
			fail(fe.Field(), fieldMessage(fe))
		}
	}
	out.Fields = formFields(form)
	if account, ok := form.(*accountForm); ok {
		out.Password = account.Password
		if len(account.Password) > maxPasswordBytes {
			fail(FieldPassword, "password must be at most 72 bytes")
		}
	}

	if len(step.Artifacts) > 0 {
		out.Files = map[types.ArtifactKind]artifacts.File{}
		for _, kind := range step.Artifacts {
			up, ok := in.Files[string(kind)]
			if !ok {
				fail(string(kind), string(kind)+" file is required")
				continue
			}
			f, err := up.Decode()
			if err != nil {
				fail(string(kind), err.Error())
				continue
			}
			out.Files[kind] = f
		}
	}

	if len(errs) > 0 {
		return Accepted{}, &ValidationError{Fields: errs}
	}
	return out, nil
}

func fieldMessage(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", name, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", name, fe.Param())
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", name, fe.Param())
	case "email":
		return "email is invalid"
	case "number":
		return name + " must contain digits only"
	case "alpha":
		return name + " must contain letters only"
	case "alphanum":
		return name + " must contain letters or digits only"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", name, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "datetime":
		return name + " must be YYYY-MM-DD"
	case "adult":
		return fmt.Sprintf("applicant must be at least %d years old", minimumAge)
	case "postalcode":
		return name + " must be 3 to 12 letters, digits, spaces or dashes"
	case "eq":
		if name == FieldAcceptTerms {
			return "terms must be accepted"
		}
	}
	return name + " is invalid"
}

func oldEnough(born, now time.Time) bool {
	now = now.UTC()
	threshold := time.Date(born.Year()+minimumAge, born.Month(), born.Day(), 0, 0, 0, 0, time.UTC)
	return !threshold.After(now)
}

func normalizeDocumentType(raw string) types.DocumentType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "passport":
		return types.DocumentTypePassport
	case "id_card", "idcard", "id-card":
		return types.DocumentTypeIDCard
	case "driver_license", "driver-license", "drivers_license":
		return types.DocumentTypeDriverLicense
	case "other":
		return types.DocumentTypeOther
	default:
		return ""
	}
}
