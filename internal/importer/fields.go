package importer

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

type fieldKind int

const (
	kindText fieldKind = iota
	kindEmail
	kindAmount
	kindQuantity
	kindInt
	kindBool
	kindTime
	kindJSON
)

// field maps an export field to a legacy column. Paths are tried in order
// since exports mix camelCase and snake_case names.
type field struct {
	column string
	paths  []string
	kind   fieldKind
}

var businessRef = field{column: "business_id", paths: []string{"businessId", "business_id", "business"}, kind: kindText}
var createdAt = field{column: "created_at", paths: []string{"createdAt", "created_at", "created"}, kind: kindTime}

// collectionFields lists the columns filled for each table
var collectionFields = map[string][]field{
	"businesses": {
		{column: "name", paths: []string{"name", "businessName"}},
		{column: "code", paths: []string{"code", "shortCode"}},
		{column: "email", paths: []string{"email"}, kind: kindEmail},
		{column: "phone", paths: []string{"phone"}},
		{column: "address", paths: []string{"address"}, kind: kindJSON},
		{column: "settings", paths: []string{"settings"}, kind: kindJSON},
		createdAt,
	},
	"customers": {
		businessRef,
		{column: "name", paths: []string{"name", "fullName"}},
		{column: "email", paths: []string{"email"}, kind: kindEmail},
		{column: "phone", paths: []string{"phone"}},
		{column: "company", paths: []string{"company", "companyName"}},
		{column: "address", paths: []string{"address"}, kind: kindJSON},
		{column: "notes", paths: []string{"notes"}},
		createdAt,
	},
	"services": {
		businessRef,
		{column: "name", paths: []string{"name"}},
		{column: "description", paths: []string{"description"}},
		{column: "unit", paths: []string{"unit"}},
		{column: "base_price", paths: []string{"basePrice", "base_price", "price"}, kind: kindAmount},
		{column: "active", paths: []string{"active", "isActive"}, kind: kindBool},
		createdAt,
	},
	"pricing_rules": {
		businessRef,
		{column: "service_id", paths: []string{"serviceId", "service_id"}},
		{column: "min_quantity", paths: []string{"minQuantity", "min_quantity", "minQty"}, kind: kindInt},
		{column: "max_quantity", paths: []string{"maxQuantity", "max_quantity", "maxQty"}, kind: kindInt},
		{column: "unit_price", paths: []string{"unitPrice", "unit_price", "price"}, kind: kindAmount},
		createdAt,
	},
	"inventory_items": {
		businessRef,
		{column: "name", paths: []string{"name"}},
		{column: "sku", paths: []string{"sku"}},
		{column: "quantity", paths: []string{"quantity", "qty"}, kind: kindQuantity},
		{column: "unit", paths: []string{"unit"}},
		{column: "reorder_level", paths: []string{"reorderLevel", "reorder_level"}, kind: kindQuantity},
		createdAt,
	},
	"jobs": {
		businessRef,
		{column: "customer_id", paths: []string{"customerId", "customer_id"}},
		{column: "service_id", paths: []string{"serviceId", "service_id"}},
		{column: "title", paths: []string{"title", "name"}},
		{column: "status", paths: []string{"status"}},
		{column: "quantity", paths: []string{"quantity", "qty"}, kind: kindInt},
		{column: "total", paths: []string{"total", "totalPrice"}, kind: kindAmount},
		{column: "due_date", paths: []string{"dueDate", "due_date"}, kind: kindTime},
		createdAt,
	},
	"invoices": {
		businessRef,
		{column: "job_id", paths: []string{"jobId", "job_id"}},
		{column: "customer_id", paths: []string{"customerId", "customer_id"}},
		{column: "number", paths: []string{"number", "invoiceNumber"}},
		{column: "amount", paths: []string{"amount", "total"}, kind: kindAmount},
		{column: "status", paths: []string{"status"}},
		{column: "issued_at", paths: []string{"issuedAt", "issued_at", "date"}, kind: kindTime},
		{column: "due_at", paths: []string{"dueAt", "due_at", "dueDate"}, kind: kindTime},
		createdAt,
	},
	"payments": {
		businessRef,
		{column: "invoice_id", paths: []string{"invoiceId", "invoice_id"}},
		{column: "amount", paths: []string{"amount"}, kind: kindAmount},
		{column: "method", paths: []string{"method", "paymentMethod"}},
		{column: "reference", paths: []string{"reference", "ref"}},
		{column: "paid_at", paths: []string{"paidAt", "paid_at", "date"}, kind: kindTime},
		createdAt,
	},
	"users": {
		businessRef,
		{column: "email", paths: []string{"email"}, kind: kindEmail},
		{column: "display_name", paths: []string{"displayName", "display_name", "name"}},
		{column: "phone", paths: []string{"phone", "phoneNumber"}},
		{column: "primary_role", paths: []string{"primaryRole", "primary_role", "role"}},
		createdAt,
	},
	"staff_members": {
		businessRef,
		{column: "email", paths: []string{"email"}, kind: kindEmail},
		{column: "name", paths: []string{"name", "displayName"}},
		{column: "phone", paths: []string{"phone"}},
		{column: "role", paths: []string{"role"}},
		createdAt,
	},
}

// lookup returns the first present, non-null path
func (f field) lookup(doc gjson.Result) gjson.Result {
	for _, p := range f.paths {
		r := doc.Get(p)
		if r.Exists() && r.Type != gjson.Null {
			return r
		}
	}
	return gjson.Result{}
}

// convert turns a JSON value into a column value. A nil value is stored as NULL.
func (f field) convert(r gjson.Result) (interface{}, error) {
	if !r.Exists() || r.Type == gjson.Null {
		return nil, nil
	}

	switch f.kind {
	case kindEmail:
		email := strings.ToLower(strings.TrimSpace(r.String()))
		if email == "" {
			return nil, nil
		}
		if !govalidator.IsEmail(email) {
			return nil, &invalidValueError{column: f.column, value: r.String(), reason: "invalid email"}
		}
		return email, nil
	case kindAmount, kindQuantity:
		d, err := parseDecimal(r)
		if err != nil {
			return nil, &invalidValueError{column: f.column, value: r.Raw, reason: err.Error()}
		}
		return d.StringFixed(2), nil
	case kindInt:
		d, err := parseDecimal(r)
		if err != nil {
			return nil, &invalidValueError{column: f.column, value: r.Raw, reason: err.Error()}
		}
		d = d.Round(0)
		if d.LessThan(minInteger) || d.GreaterThan(maxInteger) {
			return nil, &invalidValueError{column: f.column, value: r.Raw, reason: "out of range for an integer column"}
		}
		return d.IntPart(), nil
	case kindBool:
		return r.Bool(), nil
	case kindTime:
		t, err := parseTimestamp(r)
		if err != nil {
			return nil, &invalidValueError{column: f.column, value: r.Raw, reason: err.Error()}
		}
		return t, nil
	case kindJSON:
		if !r.IsObject() && !r.IsArray() {
			return nil, &invalidValueError{column: f.column, value: r.Raw, reason: "expected an object or array"}
		}
		return r.Raw, nil
	default:
		s := strings.TrimSpace(r.String())
		if s == "" {
			return nil, nil
		}
		return s, nil
	}
}

// bounds of a Postgres INTEGER column
var (
	minInteger = decimal.NewFromInt(math.MinInt32)
	maxInteger = decimal.NewFromInt(math.MaxInt32)
)

// parseDecimal accepts numbers and strings like "1,250.50" or "$12"
func parseDecimal(r gjson.Result) (decimal.Decimal, error) {
	switch r.Type {
	case gjson.Number:
		return decimal.NewFromString(r.Raw)
	case gjson.String:
		s := strings.TrimSpace(r.Str)
		s = strings.TrimLeft(s, "$€£")
		s = strings.ReplaceAll(s, ",", "")
		if s == "" {
			return decimal.Zero, fmt.Errorf("empty amount")
		}
		return decimal.NewFromString(s)
	default:
		return decimal.Zero, fmt.Errorf("unexpected %s for an amount", r.Type)
	}
}

// epochMillisThreshold separates epoch seconds from epoch millis. 1e11
// seconds is in the year 5138 while 1e11 millis is in 1973.
const epochMillisThreshold = 1e11

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTimestamp accepts ISO-8601 strings, epoch seconds or millis, and
// {_seconds, _nanoseconds} timestamp objects
func parseTimestamp(r gjson.Result) (time.Time, error) {
	switch {
	case r.IsObject():
		seconds := r.Get("_seconds")
		if !seconds.Exists() {
			seconds = r.Get("seconds")
		}
		if !seconds.Exists() {
			return time.Time{}, fmt.Errorf("timestamp object without seconds")
		}
		nanos := r.Get("_nanoseconds")
		if !nanos.Exists() {
			nanos = r.Get("nanoseconds")
		}
		return time.Unix(seconds.Int(), nanos.Int()).UTC(), nil
	case r.Type == gjson.Number:
		return fromEpoch(r.Float()), nil
	case r.Type == gjson.String:
		s := strings.TrimSpace(r.Str)
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return fromEpoch(n), nil
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized time format")
	default:
		return time.Time{}, fmt.Errorf("unexpected %s for a timestamp", r.Type)
	}
}

func fromEpoch(n float64) time.Time {
	if math.Abs(n) >= epochMillisThreshold {
		return time.UnixMilli(int64(n)).UTC()
	}
	sec, frac := math.Modf(n)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

// invalidValueError is a field that could not be converted. The column is stored as NULL.
type invalidValueError struct {
	column string
	value  string
	reason string
}

func (e *invalidValueError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.column, e.reason, e.value)
}
