package replication

import (
	"sync"

	"github.com/ha1tch/pgflow/pgtype"
)

// KeyFunc renames an identifying column, matching sqlclient.KeyFunc so a
// subscriber and its auxiliary client can share one convention.
type KeyFunc func(column string) string

// relationEntry is the cached shape of one pgoutput Relation message.
type relationEntry struct {
	schema  string
	table   string
	columns []Column
	keys    []string
}

// relationCache maps a Relation message's OID to its cached shape,
// following spec.md §4.6's "upsert cache: schema, table, attrs,
// key-attr-names via key-fn".
type relationCache struct {
	mu      sync.RWMutex
	entries map[uint32]*relationEntry
	keyFn   KeyFunc
}

func newRelationCache(keyFn KeyFunc) *relationCache {
	return &relationCache{entries: make(map[uint32]*relationEntry), keyFn: keyFn}
}

func (c *relationCache) upsert(r *Relation) *relationEntry {
	keys := make([]string, 0, len(r.Columns))
	for _, col := range r.Columns {
		if col.IsKey {
			name := col.Name
			if c.keyFn != nil {
				name = c.keyFn(name)
			}
			keys = append(keys, name)
		}
	}
	entry := &relationEntry{schema: r.Namespace, table: r.Name, columns: r.Columns, keys: keys}

	c.mu.Lock()
	c.entries[r.OID] = entry
	c.mu.Unlock()
	return entry
}

func (c *relationCache) get(oid uint32) (*relationEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[oid]
	return e, ok
}

// decodeRow decodes tuple columns into a name -> Value map using the
// relation's cached column order and types. NULL columns ('n') are
// omitted from the map entirely rather than represented with an explicit
// pgtype.Null entry (spec.md §4.6/§9's resolved ambiguity: the source
// omits NULL columns from the row mapping, and implementers should
// follow suit). Unchanged-TOASTed columns ('u') are present in the map
// as the distinguished pgtype.UnchangedTOAST sentinel, so callers can
// tell "no value was supplied" apart from "the value is NULL". 'b'
// columns carry the binary wire format and go through registry (C2),
// same as sqlclient's extended-query path; 't' columns carry pgoutput's
// text format (int32 len + UTF-8 bytes) and decode as plain text, same
// as sqlclient's simple-query path -- the registry's scalar decoders
// are binary-only and would misread text bytes. An UnknownDataTypeError
// from a 'b' column propagates so the caller can install an alias and
// retry exactly once (spec.md §4.2).
func (e *relationEntry) decodeRow(registry *pgtype.DecoderRegistry, cols []TupleColumn) (map[string]pgtype.Value, error) {
	row := make(map[string]pgtype.Value, len(cols))
	for i, col := range cols {
		if i >= len(e.columns) {
			break
		}
		name := e.columns[i].Name
		switch col.Kind {
		case 'n':
			continue // NULL: omitted from the mapping, not represented explicitly
		case 'u':
			row[name] = pgtype.UnchangedTOAST
		case 't':
			row[name] = pgtype.Value{Kind: pgtype.KindText, Text: string(col.Value)}
		case 'b':
			v, err := registry.Decode(e.columns[i].TypeOID, col.Value)
			if err != nil {
				return nil, err
			}
			row[name] = v
		}
	}
	return row, nil
}
