package importer

import (
	"fmt"
	"sort"

	"github.com/tidwall/gjson"

	"github.com/jkdp/printshop-migrate/internal/database/schema"
)

// Document is one record of an exported collection
type Document struct {
	ID     string
	Fields gjson.Result
}

// Export is a parsed document-store export: {collection: {docId: {...}}}
type Export struct {
	Collections map[string][]Document
	// Unknown lists collections that do not feed a legacy table
	Unknown []string
}

// ParseExport validates and splits an export by collection. Documents are
// sorted by id so imports are reproducible.
func ParseExport(data []byte) (*Export, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("export is not valid JSON")
	}

	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("export must be a JSON object keyed by collection")
	}

	export := &Export{Collections: make(map[string][]Document)}
	var parseErr error
	root.ForEach(func(name, docs gjson.Result) bool {
		if _, ok := schema.TableByCollection(name.String()); !ok {
			export.Unknown = append(export.Unknown, name.String())
			return true
		}
		if !docs.IsObject() {
			parseErr = fmt.Errorf("collection %q must be an object keyed by document id", name.String())
			return false
		}

		var documents []Document
		docs.ForEach(func(id, fields gjson.Result) bool {
			if !fields.IsObject() {
				parseErr = fmt.Errorf("document %s/%s is not an object", name.String(), id.String())
				return false
			}
			documents = append(documents, Document{ID: id.String(), Fields: fields})
			return true
		})
		if parseErr != nil {
			return false
		}

		sort.Slice(documents, func(i, j int) bool { return documents[i].ID < documents[j].ID })
		export.Collections[name.String()] = append(export.Collections[name.String()], documents...)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	sort.Strings(export.Unknown)
	return export, nil
}

// Count returns the number of documents across all collections
func (e *Export) Count() int {
	n := 0
	for _, docs := range e.Collections {
		n += len(docs)
	}
	return n
}
