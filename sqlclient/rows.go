package sqlclient

import (
	"strconv"
	"strings"

	"github.com/ha1tch/pgflow/pgtype"
)

// Row is one decoded result row, column order preserved.
type Row struct {
	columns []string
	values  []pgtype.Value
}

// Columns returns the (possibly key-renamed) column names in order.
func (r Row) Columns() []string { return r.columns }

// Get returns the value of the named column and whether it was present.
func (r Row) Get(name string) (pgtype.Value, bool) {
	for i, c := range r.columns {
		if c == name {
			return r.values[i], true
		}
	}
	return pgtype.Null, false
}

// At returns the value at a column index.
func (r Row) At(i int) pgtype.Value { return r.values[i] }

// CommandTag is the parsed form of a CommandComplete tag, per spec.md
// §4.5: "INSERT 0 N", "UPDATE N", "DELETE N", "MERGE N", "SELECT N",
// "MOVE N", "FETCH N", "COPY N", else the tag verbatim as Command with
// Rows=0 and RowsValid=false.
type CommandTag struct {
	Command   string
	Rows      int64
	RowsValid bool
}

func parseCommandTag(tag string) CommandTag {
	fields := strings.Fields(tag)
	if len(fields) == 0 {
		return CommandTag{Command: tag}
	}

	switch fields[0] {
	case "INSERT":
		if len(fields) == 3 {
			if n, err := strconv.ParseInt(fields[2], 10, 64); err == nil {
				return CommandTag{Command: fields[0], Rows: n, RowsValid: true}
			}
		}
	case "UPDATE", "DELETE", "MERGE", "SELECT", "MOVE", "FETCH", "COPY":
		if len(fields) == 2 {
			if n, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
				return CommandTag{Command: fields[0], Rows: n, RowsValid: true}
			}
		}
	}
	return CommandTag{Command: tag}
}

// QueryResult is the outcome of one statement: its CommandComplete tag
// (if any) and the rows produced (nil if the statement produced none).
type QueryResult struct {
	Tag  CommandTag
	Rows []Row
}
