package domain

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// EntityCode is the middle segment of a human id, e.g. CUS in JKDP-CUS-001
type EntityCode string

const (
	EntityCustomer  EntityCode = "CUS"
	EntityJob       EntityCode = "JOB"
	EntityInvoice   EntityCode = "INV"
	EntityPayment   EntityCode = "PAY"
	EntityService   EntityCode = "SRV"
	EntityInventory EntityCode = "ITM"
	EntityUser      EntityCode = "USR"
)

// HumanIDEntity binds a table to the code used in its human ids
type HumanIDEntity struct {
	Table string
	Code  EntityCode
}

// HumanIDEntities lists the tables carrying a human_id column, in backfill order
var HumanIDEntities = []HumanIDEntity{
	{Table: "customers", Code: EntityCustomer},
	{Table: "services", Code: EntityService},
	{Table: "inventory_items", Code: EntityInventory},
	{Table: "jobs", Code: EntityJob},
	{Table: "invoices", Code: EntityInvoice},
	{Table: "payments", Code: EntityPayment},
	{Table: "users", Code: EntityUser},
}

const (
	minSequenceWidth = 3
	maxBusinessCode  = 6
	fallbackCode     = "BIZ"
)

// HumanID is the parsed form of a human-readable business identifier
type HumanID struct {
	BusinessCode string
	Entity       EntityCode
	Sequence     int
}

// String formats the id, padding the sequence to at least three digits
func (h HumanID) String() string {
	return fmt.Sprintf("%s-%s-%0*d", h.BusinessCode, h.Entity, minSequenceWidth, h.Sequence)
}

// FormatHumanID validates the parts and formats them
func FormatHumanID(businessCode string, entity EntityCode, sequence int) (string, error) {
	code, err := NormalizeBusinessCode(businessCode)
	if err != nil {
		return "", err
	}
	if !isEntityCode(entity) {
		return "", NewValidationError(fmt.Sprintf("unknown entity code %q", entity))
	}
	if sequence <= 0 {
		return "", NewValidationError(fmt.Sprintf("sequence must be positive, got %d", sequence))
	}
	return HumanID{BusinessCode: code, Entity: entity, Sequence: sequence}.String(), nil
}

// ParseHumanID splits a human id into its parts
func ParseHumanID(value string) (HumanID, error) {
	parts := strings.Split(strings.TrimSpace(value), "-")
	if len(parts) != 3 {
		return HumanID{}, NewValidationError(fmt.Sprintf("malformed human id %q", value))
	}

	code, err := NormalizeBusinessCode(parts[0])
	if err != nil || code != parts[0] {
		return HumanID{}, NewValidationError(fmt.Sprintf("malformed business code in %q", value))
	}

	entity := EntityCode(parts[1])
	if !isEntityCode(entity) {
		return HumanID{}, NewValidationError(fmt.Sprintf("unknown entity code in %q", value))
	}

	if len(parts[2]) < minSequenceWidth {
		return HumanID{}, NewValidationError(fmt.Sprintf("sequence too short in %q", value))
	}
	seq, err := strconv.Atoi(parts[2])
	if err != nil || seq <= 0 {
		return HumanID{}, NewValidationError(fmt.Sprintf("invalid sequence in %q", value))
	}

	id := HumanID{BusinessCode: code, Entity: entity, Sequence: seq}
	if id.String() != strings.TrimSpace(value) {
		return HumanID{}, NewValidationError(fmt.Sprintf("non-canonical sequence in %q", value))
	}
	return id, nil
}

// NormalizeBusinessCode upper-cases a business code and checks it is 2-6 letters or digits
func NormalizeBusinessCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) < 2 || len(code) > maxBusinessCode {
		return "", NewValidationError(fmt.Sprintf("business code %q must be 2-%d characters", code, maxBusinessCode))
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", NewValidationError(fmt.Sprintf("business code %q must be alphanumeric", code))
		}
	}
	return code, nil
}

// DeriveBusinessCode builds a code from a business name: initials of up to four
// words, the first four letters of a single word, or BIZ.
func DeriveBusinessCode(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return !(r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)))
	})

	var code string
	switch {
	case len(words) == 0:
		return fallbackCode
	case len(words) == 1:
		code = words[0]
		if len(code) > 4 {
			code = code[:4]
		}
	default:
		var b strings.Builder
		for i, w := range words {
			if i == 4 {
				break
			}
			b.WriteByte(w[0])
		}
		code = b.String()
	}

	normalized, err := NormalizeBusinessCode(code)
	if err != nil {
		return fallbackCode
	}
	return normalized
}

func isEntityCode(code EntityCode) bool {
	for _, e := range HumanIDEntities {
		if e.Code == code {
			return true
		}
	}
	return false
}
