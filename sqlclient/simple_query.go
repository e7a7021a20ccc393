package sqlclient

import (
	"context"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/ha1tch/pgflow/internal/logging"
	"github.com/ha1tch/pgflow/pgerr"
)

// Sq runs query via the simple query protocol (spec.md §4.5). A query
// string containing multiple ';'-separated statements yields one
// QueryResult per statement, in order.
func (c *Client) Sq(ctx context.Context, query string) ([]QueryResult, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.Send(&pgproto3.Query{String: query})
	if err := c.conn.Flush(); err != nil {
		return nil, c.fail(err)
	}

	results, err := c.readSimpleQueryResponses()
	if err != nil {
		return nil, c.fail(err)
	}
	return results, nil
}

func (c *Client) readSimpleQueryResponses() ([]QueryResult, error) {
	var (
		results    []QueryResult
		curCols    []string
		curRows    []Row
		curStarted bool
		pending    error
	)

	flushCurrent := func(tag CommandTag) {
		results = append(results, QueryResult{Tag: tag, Rows: curRows})
		curCols = nil
		curRows = nil
		curStarted = false
	}

	for {
		msg, err := c.conn.Receive()
		if err != nil {
			return nil, err
		}

		switch m := msg.(type) {
		case *pgproto3.RowDescription:
			curStarted = true
			curCols = make([]string, len(m.Fields))
			for i, f := range m.Fields {
				curCols[i] = c.renameKey(string(f.Name))
			}

		case *pgproto3.DataRow:
			row, err := c.decodeDataRow(curCols, m)
			if err != nil {
				return nil, pgerr.Wrap(err, pgerr.Fault, "sqlclient.Sq", "protocol desynchronization")
			}
			curRows = append(curRows, row)

		case *pgproto3.CommandComplete:
			flushCurrent(parseCommandTag(string(m.CommandTag)))

		case *pgproto3.EmptyQueryResponse:
			flushCurrent(CommandTag{})

		case *pgproto3.CopyInResponse:
			c.conn.Send(&pgproto3.CopyDone{})
			if err := c.conn.Flush(); err != nil {
				return nil, err
			}
			if pending == nil {
				pending = pgerr.New(pgerr.Unsupported, "sqlclient.Sq", "CopyIn is not supported")
			}

		case *pgproto3.CopyOutResponse, *pgproto3.CopyData, *pgproto3.CopyDone:
			// Read and discarded, not surfaced structurally; callers needing COPY OUT
			// payloads should use a dedicated path (outside C5's scope).

		case *pgproto3.ParameterStatus:
			// Runtime parameter changes are observational here; backend_parameters
			// from startup already live on the session result (C4).

		case *pgproto3.NoticeResponse:
			if c.log != nil {
				c.log.For(logging.CategoryConnection).Infow("notice", "message", m.Message)
			}

		case *pgproto3.ErrorResponse:
			if pending == nil {
				pending = serverErrorFrom(m)
			}
			curCols = nil
			curRows = nil
			curStarted = false

		case *pgproto3.ReadyForQuery:
			if curStarted {
				flushCurrent(CommandTag{})
			}
			return results, pending

		default:
			return nil, pgerr.Newf(pgerr.Fault, "sqlclient.Sq", "unexpected message %T", msg)
		}
	}
}

func serverErrorFrom(m *pgproto3.ErrorResponse) error {
	return pgerr.Server(map[string]string{
		"severity": m.Severity,
		"code":     m.Code,
		"message":  m.Message,
		"detail":   m.Detail,
		"hint":     m.Hint,
	})
}
