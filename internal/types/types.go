package types

type IdentityStatus string

type AccountStatus string

type Gender string

type DocumentType string

type ArtifactKind string

const (
	IdentityStatusPending   IdentityStatus = "pending"
	IdentityStatusCompleted IdentityStatus = "completed"
)

const (
	AccountStatusPending  AccountStatus = "pending"
	AccountStatusActive   AccountStatus = "active"
	AccountStatusDisabled AccountStatus = "disabled"
)

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

const (
	DocumentTypePassport      DocumentType = "passport"
	DocumentTypeIDCard        DocumentType = "id_card"
	DocumentTypeDriverLicense DocumentType = "driver_license"
	DocumentTypeOther         DocumentType = "other"
)

const (
	ArtifactDocument  ArtifactKind = "document"
	ArtifactSelfie    ArtifactKind = "selfie"
	ArtifactSignature ArtifactKind = "signature"
)
