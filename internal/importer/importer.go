// Package importer loads a document-store export into the legacy tables
package importer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	sq "github.com/Masterminds/squirrel"

	"github.com/jkdp/printshop-migrate/internal/database"
	"github.com/jkdp/printshop-migrate/internal/database/schema"
	"github.com/jkdp/printshop-migrate/pkg/logger"
)

const (
	// LegacyTablesVersion is the schema version that creates the legacy tables
	LegacyTablesVersion = 1
	// AuditColumnsVersion adds legacy_id, which inserts must fill from then on
	AuditColumnsVersion = 2
	// ConversionVersion turns document ids into UUIDs
	ConversionVersion = 3

	insertBatchSize = 200
	maxExportSize   = 1 << 30
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// VersionReader reports the schema version of the database
type VersionReader interface {
	GetCurrentDBVersion(ctx context.Context, db database.DBExecutor) (int, bool, error)
}

// CollectionResult is the outcome of importing one collection
type CollectionResult struct {
	Collection    string
	Table         string
	Documents     int
	Inserted      int
	Skipped       int
	InvalidValues int
}

// Result summarizes an import
type Result struct {
	Collections []CollectionResult
	Unknown     []string
}

// Inserted returns the number of rows inserted across all collections
func (r *Result) Inserted() int {
	n := 0
	for _, c := range r.Collections {
		n += c.Inserted
	}
	return n
}

// InvalidValues returns the number of fields stored as NULL because they could not be converted
func (r *Result) InvalidValues() int {
	n := 0
	for _, c := range r.Collections {
		n += c.InvalidValues
	}
	return n
}

// Importer writes export documents into the legacy tables
type Importer struct {
	db       *sql.DB
	versions VersionReader
	logger   logger.Logger
}

// NewImporter creates an importer
func NewImporter(db *sql.DB, versions VersionReader, logger logger.Logger) *Importer {
	return &Importer{
		db:       db,
		versions: versions,
		logger:   logger,
	}
}

// Import loads src in a single transaction. Rows whose id already exists are
// skipped, so importing the same export twice is harmless. The schema lock is
// held throughout so a concurrent migration cannot move the version underneath.
func (i *Importer) Import(ctx context.Context, src Source) (*Result, error) {
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := database.LockSchema(ctx, tx); err != nil {
		return nil, err
	}

	version, _, err := i.versions.GetCurrentDBVersion(ctx, tx)
	if err != nil {
		return nil, err
	}
	if version >= ConversionVersion {
		return nil, &ErrImportNotAllowed{DBVersion: version}
	}
	if version < LegacyTablesVersion {
		return nil, fmt.Errorf("legacy tables do not exist yet, migrate to v%d first", LegacyTablesVersion)
	}

	export, err := readExport(ctx, src)
	if err != nil {
		return nil, err
	}

	i.logger.WithField("source", src.String()).
		WithField("documents", export.Count()).
		Info("Export loaded")
	for _, name := range export.Unknown {
		i.logger.WithField("collection", name).Warn("Skipping unknown collection")
	}

	result := &Result{Unknown: export.Unknown}
	for _, table := range schema.Tables {
		docs := export.Collections[table.Collection]
		res, err := i.importCollection(ctx, tx, table, docs, version >= AuditColumnsVersion)
		if err != nil {
			return nil, fmt.Errorf("failed to import %s: %w", table.Collection, err)
		}
		result.Collections = append(result.Collections, res)

		if res.Documents > 0 {
			i.logger.WithFields(map[string]interface{}{
				"collection": res.Collection,
				"table":      res.Table,
				"inserted":   res.Inserted,
				"skipped":    res.Skipped,
			}).Info("Collection imported")
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit import: %w", err)
	}

	return result, nil
}

func readExport(ctx context.Context, src Source) (*Export, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rc.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(rc, maxExportSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read export: %w", err)
	}
	if len(data) > maxExportSize {
		return nil, fmt.Errorf("export is larger than %d bytes", maxExportSize)
	}

	return ParseExport(data)
}

func (i *Importer) importCollection(ctx context.Context, db database.DBExecutor, table schema.Table, docs []Document, withLegacyID bool) (CollectionResult, error) {
	res := CollectionResult{Collection: table.Collection, Table: table.Name, Documents: len(docs)}
	fields := collectionFields[table.Name]

	columns := []string{"id"}
	for _, f := range fields {
		columns = append(columns, f.column)
	}
	if withLegacyID {
		columns = append(columns, "legacy_id")
	}

	for start := 0; start < len(docs); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(docs) {
			end = len(docs)
		}

		insert := psql.Insert(table.Name).Columns(columns...)
		for _, doc := range docs[start:end] {
			values := make([]interface{}, 0, len(columns))
			values = append(values, doc.ID)
			for _, f := range fields {
				value, err := f.convert(f.lookup(doc.Fields))
				var invalid *invalidValueError
				if errors.As(err, &invalid) {
					res.InvalidValues++
					i.logger.WithField("document", table.Collection+"/"+doc.ID).
						WithField("column", invalid.column).
						Warn(invalid.Error())
				}
				// created_at is NOT NULL once the audit columns exist
				if withLegacyID && f.column == createdAt.column {
					value = sq.Expr("COALESCE(?::timestamptz, now())", value)
				}
				values = append(values, value)
			}
			if withLegacyID {
				values = append(values, doc.ID)
			}
			insert = insert.Values(values...)
		}

		query, args, err := insert.Suffix("ON CONFLICT (id) DO NOTHING").ToSql()
		if err != nil {
			return res, err
		}
		result, err := db.ExecContext(ctx, query, args...)
		if err != nil {
			return res, err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return res, err
		}
		res.Inserted += int(affected)
		res.Skipped += (end - start) - int(affected)
	}

	return res, nil
}
