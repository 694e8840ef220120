package domain

import "time"

// Business is a tenant of the shared print-shop database.
// ID is the legacy document id before identifier conversion and a UUID string afterwards.
type Business struct {
	ID        string
	Name      string
	Code      string
	CreatedAt time.Time
}

// DisplayCode returns the configured business code or one derived from the name
func (b *Business) DisplayCode() string {
	if code, err := NormalizeBusinessCode(b.Code); err == nil {
		return code
	}
	return DeriveBusinessCode(b.Name)
}
