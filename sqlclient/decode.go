package sqlclient

import (
	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/ha1tch/pgflow/pgtype"
)

// decodeDataRow decodes a DataRow against the column OIDs carried by the
// preceding RowDescription. NULL columns decode to pgtype.Null; non-NULL
// columns decode as pgtype.KindText, without the registry.
func (c *Client) decodeDataRow(cols []string, m *pgproto3.DataRow) (Row, error) {
	values := make([]pgtype.Value, len(m.Values))
	for i, raw := range m.Values {
		if raw == nil {
			values[i] = pgtype.Null
			continue
		}
		// Simple query results are always text format; the extended query
		// path below decodes binary. Text-format scalars decode as text and
		// are left for the caller to interpret -- Postgres's simple query
		// protocol has no binary result format.
		values[i] = pgtype.Value{Kind: pgtype.KindText, Text: string(raw)}
	}
	return Row{columns: cols, values: values}, nil
}

// decodeBinaryDataRow decodes a DataRow produced by the extended query
// protocol, whose result format is requested as all-binary (spec.md
// §4.5), using the column OIDs from the preceding RowDescription.
func (c *Client) decodeBinaryDataRow(cols []string, oids []pgtype.OID, m *pgproto3.DataRow) (Row, error) {
	values := make([]pgtype.Value, len(m.Values))
	for i, raw := range m.Values {
		if raw == nil {
			values[i] = pgtype.Null
			continue
		}
		v, err := c.registry.Decode(oids[i], raw)
		if err != nil {
			if _, ok := err.(*pgtype.UnknownDataTypeError); ok {
				return Row{}, err
			}
			return Row{}, err
		}
		values[i] = v
	}
	return Row{columns: cols, values: values}, nil
}
