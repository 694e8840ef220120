package importer

import "fmt"

// ErrImportNotAllowed is returned once identifiers were converted to UUIDs.
// Document ids can no longer be inserted as primary keys at that point.
type ErrImportNotAllowed struct {
	DBVersion int
}

func (e *ErrImportNotAllowed) Error() string {
	return fmt.Sprintf("import is only possible before identifiers are converted (database is at v%d, conversion happens in v%d)",
		e.DBVersion, ConversionVersion)
}
