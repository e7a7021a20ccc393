package replication

import (
	"context"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/ha1tch/pgflow/internal/logging"
	"github.com/ha1tch/pgflow/pgauth"
	"github.com/ha1tch/pgflow/pgconn"
	"github.com/ha1tch/pgflow/pgerr"
	"github.com/ha1tch/pgflow/pgtype"
)

// primaryConn is the replication-mode connection: once Startup has sent
// replication=database, the only commands it accepts are IDENTIFY_SYSTEM,
// CreateReplicationSlot variants, and START_REPLICATION, all framed as
// simple queries (spec.md §4.6). After START_REPLICATION succeeds the
// connection enters CopyBoth and primaryConn switches to raw CopyData
// send/receive.
type primaryConn struct {
	conn *pgconn.Conn
	log  *logging.Logger
}

func dialPrimary(ctx context.Context, host string, port int, verifier pgconn.TLSVerifier, params pgauth.Params, log *logging.Logger) (*primaryConn, error) {
	conn, err := pgconn.Open(ctx, host, port)
	if err != nil {
		return nil, err
	}
	if verifier != nil {
		if err := conn.Secure(verifier, host); err != nil {
			conn.Close()
			return nil, err
		}
	}
	params.ReplicationMode = "database"
	if _, err := pgauth.Startup(ctx, conn, params, log); err != nil {
		conn.Close()
		return nil, err
	}
	if log != nil {
		log.Replication().Infow("primary connection established", "conn_id", conn.ID())
	}
	return &primaryConn{conn: conn, log: log}, nil
}

// identifySystemResult is the single row IDENTIFY_SYSTEM returns.
type identifySystemResult struct {
	systemID string
	timeline int32
	xlogpos  pgtype.LSN
	dbName   string
}

func (p *primaryConn) identifySystem() (*identifySystemResult, error) {
	rows, err := p.simpleQuery("IDENTIFY_SYSTEM")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || len(rows[0]) < 3 {
		return nil, pgerr.New(pgerr.Fault, "replication.identifySystem", "malformed IDENTIFY_SYSTEM response")
	}
	row := rows[0]
	lsn, err := pgtype.ParseLSN(row[2])
	if err != nil {
		return nil, err
	}
	result := &identifySystemResult{systemID: row[0], xlogpos: lsn}
	if len(row) > 3 {
		result.dbName = row[3]
	}
	return result, nil
}

// simpleQuery runs a command text and returns its text-format rows; it
// does not expect a CopyBoth response (that's startReplication's job).
func (p *primaryConn) simpleQuery(query string) ([][]string, error) {
	p.conn.Send(&pgproto3.Query{String: query})
	if err := p.conn.Flush(); err != nil {
		return nil, err
	}

	var (
		rows      [][]string
		firstErr  error
	)
	for {
		msg, err := p.conn.Receive()
		if err != nil {
			return nil, err
		}
		switch m := msg.(type) {
		case *pgproto3.RowDescription, *pgproto3.CommandComplete, *pgproto3.EmptyQueryResponse:
			// no-op; rows accumulate from DataRow, tag is unused here

		case *pgproto3.DataRow:
			vals := make([]string, len(m.Values))
			for i, raw := range m.Values {
				vals[i] = string(raw)
			}
			rows = append(rows, vals)

		case *pgproto3.NoticeResponse:
			if p.log != nil {
				p.log.For(logging.CategoryReplication).Infow("notice", "message", m.Message)
			}

		case *pgproto3.ErrorResponse:
			if firstErr == nil {
				firstErr = serverErrorFrom(m)
			}

		case *pgproto3.ReadyForQuery:
			return rows, firstErr

		default:
			return nil, pgerr.Newf(pgerr.Fault, "replication.simpleQuery", "unexpected message %T", msg)
		}
	}
}

// startReplication issues START_REPLICATION and blocks until the server
// confirms CopyBoth, putting the connection into streaming mode.
func (p *primaryConn) startReplication(stmt string) error {
	p.conn.Send(&pgproto3.Query{String: stmt})
	if err := p.conn.Flush(); err != nil {
		return err
	}

	for {
		msg, err := p.conn.Receive()
		if err != nil {
			return err
		}
		switch m := msg.(type) {
		case *pgproto3.CopyBothResponse:
			return nil
		case *pgproto3.NoticeResponse:
			if p.log != nil {
				p.log.For(logging.CategoryReplication).Infow("notice", "message", m.Message)
			}
		case *pgproto3.ErrorResponse:
			// drain to ReadyForQuery before returning, the connection stays usable
			err := serverErrorFrom(m)
			for {
				next, rerr := p.conn.Receive()
				if rerr != nil {
					return rerr
				}
				if _, ok := next.(*pgproto3.ReadyForQuery); ok {
					return err
				}
			}
		default:
			return pgerr.Newf(pgerr.Fault, "replication.startReplication", "unexpected message %T awaiting CopyBoth", msg)
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

// sendCopyData writes a raw CopyData frame on the primary connection,
// holding the connection lock for the duration (spec.md §4.6's "inline,
// holding no locks other than the connection write lock").
func (p *primaryConn) sendCopyData(payload []byte) error {
	p.conn.Lock()
	defer p.conn.Unlock()
	p.conn.Send(&pgproto3.CopyData{Data: payload})
	return p.conn.Flush()
}

// receive reads the next backend message during replication streaming.
func (p *primaryConn) receive() (pgproto3.BackendMessage, error) {
	return p.conn.Receive()
}

func (p *primaryConn) close() error {
	return p.conn.Close()
}
