package sqlclient

import (
	"context"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/ha1tch/pgflow/internal/logging"
	"github.com/ha1tch/pgflow/pgerr"
	"github.com/ha1tch/pgflow/pgtype"
)

// Query is one statement of an Eq pipeline: SQL text plus positional
// parameters.
type Query struct {
	SQL    string
	Params []pgtype.Value
}

// Q is a convenience constructor for Query.
func Q(sql string, params ...pgtype.Value) Query {
	return Query{SQL: sql, Params: params}
}

// Eq runs one or more queries through the extended query protocol as a
// single pipeline (spec.md §4.5): Parse/Describe/Bind/Execute for every
// query, then one Sync. If any query fails, the whole call fails with
// that query's server error and no partial results are returned
// (§8 property 7). If exactly one query was given, the single result is
// returned directly via the first element; callers with one query should
// index results[0].
func (c *Client) Eq(ctx context.Context, queries ...Query) ([]QueryResult, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return nil, pgerr.New(pgerr.Incorrect, "sqlclient.Eq", "no queries given")
	}

	encoded, err := c.encodeQueries(queries)
	if err != nil {
		// Incorrect: encoding happens before any frame is sent (spec.md §9).
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, q := range encoded {
		c.conn.Send(&pgproto3.Parse{Query: q.sql, ParameterOIDs: q.oids})
		c.conn.Send(&pgproto3.Describe{ObjectType: 'S'})
		c.conn.Send(&pgproto3.Bind{
			ParameterFormatCodes: allBinary(len(q.params)),
			Parameters:           q.params,
			ResultFormatCodes:    []int16{1},
		})
		c.conn.Send(&pgproto3.Execute{})
	}
	c.conn.Send(&pgproto3.Sync{})

	if err := c.conn.Flush(); err != nil {
		return nil, c.fail(err)
	}

	results, err := c.readPipelineResponses(len(encoded))
	if err != nil {
		return nil, c.fail(err)
	}
	return results, nil
}

type encodedQuery struct {
	sql    string
	oids   []uint32
	params [][]byte
}

func (c *Client) encodeQueries(queries []Query) ([]encodedQuery, error) {
	out := make([]encodedQuery, len(queries))
	for i, q := range queries {
		oids := make([]uint32, len(q.Params))
		params := make([][]byte, len(q.Params))
		for j, p := range q.Params {
			oids[j] = uint32(c.paramOID(p))
			if p.IsNull() {
				params[j] = nil
				continue
			}
			var (
				b   []byte
				err error
			)
			if p.Kind == pgtype.KindRange {
				_, b, err = c.registry.EncodeRange(pgtype.OID(oids[j]), p)
			} else {
				_, b, err = c.registry.Encode(p)
			}
			if err != nil {
				return nil, pgerr.Wrapf(err, pgerr.Incorrect, "sqlclient.Eq", "encoding parameter %d of query %d", j, i)
			}
			params[j] = b
		}
		out[i] = encodedQuery{sql: q.SQL, oids: oids, params: params}
	}
	return out, nil
}

func allBinary(n int) []int16 {
	codes := make([]int16, n)
	for i := range codes {
		codes[i] = 1
	}
	return codes
}

// pipelineState tracks one query's progress through the extended-query
// state machine of spec.md §4.5.
type pipelineState int

const (
	stateAwaiting pipelineState = iota
	stateRows
	stateDone
	stateErrored
)

func (c *Client) readPipelineResponses(n int) ([]QueryResult, error) {
	results := make([]QueryResult, 0, n)

	var (
		state      = stateAwaiting
		cols       []string
		colOIDs    []pgtype.OID
		rows       []Row
		firstError error
	)

	finishOne := func(tag CommandTag) {
		results = append(results, QueryResult{Tag: tag, Rows: rows})
		cols, colOIDs, rows = nil, nil, nil
		state = stateAwaiting
	}

	for {
		msg, err := c.conn.Receive()
		if err != nil {
			return nil, err
		}

		switch m := msg.(type) {
		case *pgproto3.ParseComplete, *pgproto3.BindComplete, *pgproto3.ParameterDescription, *pgproto3.NoData:
			// no state change

		case *pgproto3.RowDescription:
			state = stateRows
			cols = make([]string, len(m.Fields))
			colOIDs = make([]pgtype.OID, len(m.Fields))
			for i, f := range m.Fields {
				cols[i] = c.renameKey(string(f.Name))
				colOIDs[i] = pgtype.OID(f.DataTypeOID)
			}

		case *pgproto3.DataRow:
			row, err := c.decodeBinaryDataRow(cols, colOIDs, m)
			if err != nil {
				return nil, pgerr.Wrap(err, pgerr.Fault, "sqlclient.Eq", "protocol desynchronization")
			}
			rows = append(rows, row)

		case *pgproto3.CommandComplete:
			if state != stateErrored {
				finishOne(parseCommandTag(string(m.CommandTag)))
			}

		case *pgproto3.PortalSuspended:
			if state != stateErrored {
				finishOne(CommandTag{})
			}

		case *pgproto3.EmptyQueryResponse:
			if state != stateErrored {
				finishOne(CommandTag{})
			}

		case *pgproto3.NoticeResponse:
			if c.log != nil {
				c.log.For(logging.CategoryConnection).Infow("notice", "message", m.Message)
			}

		case *pgproto3.ErrorResponse:
			state = stateErrored
			if firstError == nil {
				firstError = serverErrorFrom(m)
			}

		case *pgproto3.ReadyForQuery:
			if firstError != nil {
				return nil, firstError
			}
			return results, nil

		default:
			return nil, pgerr.Newf(pgerr.Fault, "sqlclient.Eq", "unexpected message %T", msg)
		}
	}
}
