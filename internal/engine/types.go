package engine

import (
	"time"

	"github.com/google/uuid"
)

// Entity lifecycle statuses. Triage and human review move entities between
// these; the masker never touches them.
const (
	StatusAutoMasked   = "auto_masked"
	StatusQuestionable = "questionable"
	StatusAccepted     = "accepted"
	StatusRejected     = "rejected"
	StatusResidual     = "residual"
)

// Detection method provenance tags.
const (
	MethodRuleBased = "rule_based"
	MethodResidual  = "residual_validation"
)

// Canonical entity types. The set is open — model backends may surface types
// not listed here; unknown types fall back to full-token masking.
const (
	TypeEmail        = "EMAIL"
	TypePhone        = "PHONE"
	TypeSSN          = "SSN"
	TypeCreditCard   = "CREDIT_CARD"
	TypeIPAddress    = "IP_ADDRESS"
	TypeIP           = "IP"
	TypeURL          = "URL"
	TypeDate         = "DATE"
	TypeZipCode      = "ZIP_CODE"
	TypeDOB          = "DOB"
	TypeNationalID   = "NATIONAL_ID"
	TypeBankAcct     = "BANK_ACCT"
	TypeIDNum        = "ID_NUM"
	TypePerson       = "PERSON"
	TypeOrganization = "ORGANIZATION"
	TypeLocation     = "LOCATION"
	TypeAddress      = "ADDRESS"
	TypeUsername     = "USERNAME"
	TypeBrand        = "BRAND"
	TypeGeo          = "GEO"
)

// Non-PII sentinel types assigned by model post-processing. They are filtered
// out before fusion and must never reach the masker.
const (
	TypeGreeting   = "GREETING"
	TypeFieldLabel = "FIELD_LABEL"
	TypePronoun    = "PRONOUN"
)

// structuredTypes must always be masked with a full opaque token. Partially
// revealed structured values (e.g. half a credit card number) stay identifying.
var structuredTypes = map[string]bool{
	TypeEmail:      true,
	TypeCreditCard: true,
	TypePhone:      true,
	TypeIPAddress:  true,
	TypeIP:         true,
	TypeSSN:        true,
	TypeNationalID: true,
	TypeBankAcct:   true,
}

// freeTextTypes may use the partial-reveal mask format when configured.
var freeTextTypes = map[string]bool{
	TypePerson:   true,
	TypeBrand:    true,
	TypeAddress:  true,
	TypeUsername: true,
	TypeGeo:      true,
}

// KnownTypes lists every entity type the engine itself can produce. Config
// validation rejects requests for types outside this set.
var KnownTypes = map[string]bool{
	TypeEmail: true, TypePhone: true, TypeSSN: true, TypeCreditCard: true,
	TypeIPAddress: true, TypeIP: true, TypeURL: true, TypeDate: true,
	TypeZipCode: true, TypeDOB: true, TypeNationalID: true, TypeBankAcct: true,
	TypeIDNum: true, TypePerson: true, TypeOrganization: true,
	TypeLocation: true, TypeAddress: true, TypeUsername: true,
	TypeBrand: true, TypeGeo: true,
}

// IsStructured reports whether the type must always receive a full token mask.
func IsStructured(entityType string) bool {
	return structuredTypes[entityType]
}

// IsFreeText reports whether the type may use partial-reveal masking.
func IsFreeText(entityType string) bool {
	return freeTextTypes[entityType]
}

// Entity is a single PII finding. Start and End are half-open byte offsets
// into the source text at detection time; they are only valid against the text
// the entity was detected in.
type Entity struct {
	Type       string
	Value      string
	Start      int
	End        int
	Confidence float64
	Method     string
	Status     string
}

// Overlaps reports whether the two half-open spans intersect.
func (e Entity) Overlaps(other Entity) bool {
	return e.Start < other.End && e.End > other.Start
}

// Result is the output of one Detect call. Entities is the fused,
// non-overlapping set sorted ascending by Start. Questionable is the subset
// flagged for review (still masked). Residual is anything the rule detector
// re-found in MaskedContent — non-empty means the masking policy was violated.
type Result struct {
	ScanID         uuid.UUID
	Entities       []Entity
	MaskedContent  string
	Questionable   []Entity
	Residual       []Entity
	ProcessingTime time.Duration
}

// TypeSet is an entity-type allowlist. The zero value (or an empty set)
// allows every type.
type TypeSet map[string]bool

// NewTypeSet builds a TypeSet from a list of entity type names.
func NewTypeSet(types []string) TypeSet {
	if len(types) == 0 {
		return nil
	}
	s := make(TypeSet, len(types))
	for _, t := range types {
		s[t] = true
	}
	return s
}

// Allows reports whether the given type passes the allowlist.
func (s TypeSet) Allows(entityType string) bool {
	return len(s) == 0 || s[entityType]
}
