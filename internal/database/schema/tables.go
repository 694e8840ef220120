// Package schema describes the print-shop entity tables and the references
// between them. Migrations and verification checks walk these definitions
// instead of repeating table lists.
package schema

// OnDelete actions used when foreign keys are created
const (
	OnDeleteCascade  = "CASCADE"
	OnDeleteSetNull  = "SET NULL"
	OnDeleteRestrict = "RESTRICT"
)

// Table is an entity table that came out of the document-store import
type Table struct {
	Name string
	// Collection is the name of the collection in the export
	Collection string
	// Merged tables are folded into another table and dropped
	Merged bool
}

// Reference is a column pointing at another table's primary key
type Reference struct {
	Table    string
	Column   string
	RefTable string
	OnDelete string
}

// ConstraintName is the name of the foreign key created for the reference
func (r Reference) ConstraintName() string {
	return "fk_" + r.Table + "_" + r.Column
}

// IndexName is the name of the index backing the referencing column
func (r Reference) IndexName() string {
	return "idx_" + r.Table + "_" + r.Column
}

// Tables are listed parents first
var Tables = []Table{
	{Name: "businesses", Collection: "businesses"},
	{Name: "customers", Collection: "customers"},
	{Name: "services", Collection: "services"},
	{Name: "pricing_rules", Collection: "pricingRules"},
	{Name: "inventory_items", Collection: "inventory"},
	{Name: "jobs", Collection: "jobs"},
	{Name: "invoices", Collection: "invoices"},
	{Name: "payments", Collection: "payments"},
	{Name: "users", Collection: "users"},
	{Name: "staff_members", Collection: "staff", Merged: true},
}

// References lists every reference between entity tables
var References = []Reference{
	{Table: "customers", Column: "business_id", RefTable: "businesses", OnDelete: OnDeleteCascade},
	{Table: "services", Column: "business_id", RefTable: "businesses", OnDelete: OnDeleteCascade},
	{Table: "pricing_rules", Column: "business_id", RefTable: "businesses", OnDelete: OnDeleteCascade},
	{Table: "pricing_rules", Column: "service_id", RefTable: "services", OnDelete: OnDeleteCascade},
	{Table: "inventory_items", Column: "business_id", RefTable: "businesses", OnDelete: OnDeleteCascade},
	{Table: "jobs", Column: "business_id", RefTable: "businesses", OnDelete: OnDeleteCascade},
	{Table: "jobs", Column: "customer_id", RefTable: "customers", OnDelete: OnDeleteSetNull},
	{Table: "jobs", Column: "service_id", RefTable: "services", OnDelete: OnDeleteSetNull},
	{Table: "invoices", Column: "business_id", RefTable: "businesses", OnDelete: OnDeleteCascade},
	{Table: "invoices", Column: "job_id", RefTable: "jobs", OnDelete: OnDeleteSetNull},
	{Table: "invoices", Column: "customer_id", RefTable: "customers", OnDelete: OnDeleteSetNull},
	{Table: "payments", Column: "business_id", RefTable: "businesses", OnDelete: OnDeleteCascade},
	{Table: "payments", Column: "invoice_id", RefTable: "invoices", OnDelete: OnDeleteRestrict},
	{Table: "users", Column: "business_id", RefTable: "businesses", OnDelete: OnDeleteCascade},
	{Table: "staff_members", Column: "business_id", RefTable: "businesses", OnDelete: OnDeleteCascade},
}

// TableNames returns every entity table name, parents first
func TableNames() []string {
	names := make([]string, 0, len(Tables))
	for _, t := range Tables {
		names = append(names, t.Name)
	}
	return names
}

// CurrentTables returns the tables that survive the full migration history
func CurrentTables() []Table {
	var out []Table
	for _, t := range Tables {
		if !t.Merged {
			out = append(out, t)
		}
	}
	return out
}

// CurrentReferences returns the references whose tables survive the full migration history
func CurrentReferences() []Reference {
	merged := map[string]bool{}
	for _, t := range Tables {
		if t.Merged {
			merged[t.Name] = true
		}
	}
	var out []Reference
	for _, r := range References {
		if !merged[r.Table] && !merged[r.RefTable] {
			out = append(out, r)
		}
	}
	return out
}

// ReferencesTo returns the references pointing at table
func ReferencesTo(table string) []Reference {
	var out []Reference
	for _, r := range References {
		if r.RefTable == table {
			out = append(out, r)
		}
	}
	return out
}

// TableByCollection finds the table fed by an export collection
func TableByCollection(collection string) (Table, bool) {
	for _, t := range Tables {
		if t.Collection == collection {
			return t, true
		}
	}
	return Table{}, false
}
