package migrations

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/jkdp/printshop-migrate/config"
)

// LegacyUUID maps a document id of table to its UUID. It is a v5 (SHA-1) UUID
// of "<table>:<legacy id>", so converting the same export twice yields the same keys.
func LegacyUUID(namespace uuid.UUID, table, legacyID string) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte(table+":"+legacyID))
}

func legacyNamespace(cfg *config.Config) (uuid.UUID, error) {
	raw := config.DefaultNamespaceUUID
	if cfg != nil && cfg.Import.NamespaceUUID != "" {
		raw = cfg.Import.NamespaceUUID
	}
	namespace, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid import.namespace_uuid %q: %w", raw, err)
	}
	return namespace, nil
}
