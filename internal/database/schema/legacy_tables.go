package schema

// LegacyTableDefinitions create the tables a document-store export is loaded
// into. Identifiers are the export's document ids, kept as text.
var LegacyTableDefinitions = map[string]string{
	"businesses": `CREATE TABLE IF NOT EXISTS businesses (
		id TEXT PRIMARY KEY,
		name TEXT,
		code TEXT,
		email TEXT,
		phone TEXT,
		address JSONB,
		settings JSONB,
		created_at TIMESTAMPTZ
	)`,
	"customers": `CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		business_id TEXT,
		name TEXT,
		email TEXT,
		phone TEXT,
		company TEXT,
		address JSONB,
		notes TEXT,
		created_at TIMESTAMPTZ
	)`,
	"services": `CREATE TABLE IF NOT EXISTS services (
		id TEXT PRIMARY KEY,
		business_id TEXT,
		name TEXT,
		description TEXT,
		unit TEXT,
		base_price NUMERIC(12,2),
		active BOOLEAN DEFAULT TRUE,
		created_at TIMESTAMPTZ
	)`,
	"pricing_rules": `CREATE TABLE IF NOT EXISTS pricing_rules (
		id TEXT PRIMARY KEY,
		business_id TEXT,
		service_id TEXT,
		min_quantity INTEGER,
		max_quantity INTEGER,
		unit_price NUMERIC(12,2),
		created_at TIMESTAMPTZ
	)`,
	"inventory_items": `CREATE TABLE IF NOT EXISTS inventory_items (
		id TEXT PRIMARY KEY,
		business_id TEXT,
		name TEXT,
		sku TEXT,
		quantity NUMERIC(12,2),
		unit TEXT,
		reorder_level NUMERIC(12,2),
		created_at TIMESTAMPTZ
	)`,
	"jobs": `CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		business_id TEXT,
		customer_id TEXT,
		service_id TEXT,
		title TEXT,
		status TEXT,
		quantity INTEGER,
		total NUMERIC(12,2),
		due_date TIMESTAMPTZ,
		created_at TIMESTAMPTZ
	)`,
	"invoices": `CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		business_id TEXT,
		job_id TEXT,
		customer_id TEXT,
		number TEXT,
		amount NUMERIC(12,2),
		status TEXT,
		issued_at TIMESTAMPTZ,
		due_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ
	)`,
	"payments": `CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		business_id TEXT,
		invoice_id TEXT,
		amount NUMERIC(12,2),
		method TEXT,
		reference TEXT,
		paid_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ
	)`,
	"users": `CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		business_id TEXT,
		email TEXT,
		display_name TEXT,
		phone TEXT,
		primary_role TEXT,
		created_at TIMESTAMPTZ
	)`,
	"staff_members": `CREATE TABLE IF NOT EXISTS staff_members (
		id TEXT PRIMARY KEY,
		business_id TEXT,
		email TEXT,
		name TEXT,
		phone TEXT,
		role TEXT,
		created_at TIMESTAMPTZ
	)`,
}

// ReferencesFrom returns the references declared on table, in declaration order
func ReferencesFrom(table string) []Reference {
	var out []Reference
	for _, r := range References {
		if r.Table == table {
			out = append(out, r)
		}
	}
	return out
}
