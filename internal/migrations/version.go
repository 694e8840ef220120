package migrations

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseVersion parses a schema version like "v7" or "7"
func ParseVersion(versionStr string) (int, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(versionStr), "v")
	if clean == "" {
		return 0, fmt.Errorf("invalid version format: %q", versionStr)
	}

	version, err := strconv.Atoi(clean)
	if err != nil {
		return 0, fmt.Errorf("invalid version format: %q", versionStr)
	}
	if version < 0 {
		return 0, fmt.Errorf("version must not be negative: %d", version)
	}

	return version, nil
}

// FormatVersion is the inverse of ParseVersion
func FormatVersion(version int) string {
	return "v" + strconv.Itoa(version)
}
