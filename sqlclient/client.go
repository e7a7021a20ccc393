// Package sqlclient implements the synchronous SQL client surface (C5):
// simple query, extended query/pipelining, and the small set of
// replication-adjacent helper statements (CREATE_REPLICATION_SLOT,
// DROP_REPLICATION_SLOT, pg_logical_emit_message). It generalizes the
// teacher's per-connection, per-query state machine
// (protocol/tds/connection.go, tds/conn.go) from TDS's token stream to
// Postgres's simple/extended query message flow.
package sqlclient

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ha1tch/pgflow/internal/logging"
	"github.com/ha1tch/pgflow/pgauth"
	"github.com/ha1tch/pgflow/pgconn"
	"github.com/ha1tch/pgflow/pgerr"
	"github.com/ha1tch/pgflow/pgtype"
)

// OIDFunc lets a caller override the wire-format type OID inferred for a
// bind parameter (spec.md §4.5: "oid_fn(value) ?? builtin_oid(value)").
type OIDFunc func(v pgtype.Value) (pgtype.OID, bool)

// KeyFunc renames a result column name, e.g. to a "keyword" convention
// (":n" instead of "n"). Identity if nil.
type KeyFunc func(column string) string

// Client is a single, exclusively-owned connection driving the simple
// and extended query protocols. It is single-thread-safe: concurrent
// calls serialize on mu (spec.md §8 property 8).
type Client struct {
	mu       sync.Mutex
	conn     *pgconn.Conn
	registry *pgtype.DecoderRegistry
	log      *logging.Logger

	oidFn OIDFunc
	keyFn KeyFunc

	closed atomic.Bool
}

// Options configures Connect.
type Options struct {
	OIDFunc OIDFunc
	KeyFunc KeyFunc
	Log     *logging.Logger
}

// Connect opens a TCP connection, optionally upgrades to TLS, and runs
// the startup/authentication handshake (C4), returning a ready Client.
func Connect(ctx context.Context, host string, port int, params pgauth.Params, verifier pgconn.TLSVerifier, opts Options) (*Client, error) {
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

	log := opts.Log
	if log == nil {
		log = logging.Noop()
	}

	if _, err := pgauth.Startup(ctx, conn, params, log); err != nil {
		conn.Close()
		return nil, err
	}
	log.Connection().Infow("sql client connected", "conn_id", conn.ID())

	return &Client{
		conn:     conn,
		registry: pgtype.NewDecoderRegistry(),
		log:      log,
		oidFn:    opts.OIDFunc,
		keyFn:    opts.KeyFunc,
	}, nil
}

// Registry exposes the connection's decoder registry, e.g. so a
// replication subscriber's auxiliary client and primary connection can
// share type-alias installs.
func (c *Client) Registry() *pgtype.DecoderRegistry { return c.registry }

// ConnID returns the underlying connection's correlation ID, for callers
// that want to tie their own log lines to this session.
func (c *Client) ConnID() uuid.UUID { return c.conn.ID() }

// Close terminates the connection. Idempotent.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.conn.Close()
}

// checkOpen returns the closed-client error specified by spec.md §7:
// "Disconnected from server", classified Incorrect.
func (c *Client) checkOpen() error {
	if c.closed.Load() {
		return pgerr.New(pgerr.Incorrect, "sqlclient", "Disconnected from server")
	}
	return nil
}

// fail applies the client-closing policy of spec.md §7: a call leaves the
// client usable if the failure is Incorrect, Unsupported, or ServerError;
// any other kind (Unavailable, Forbidden, Fault) closes the client.
func (c *Client) fail(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case pgerr.OfKind(err, pgerr.Incorrect), pgerr.OfKind(err, pgerr.Unsupported), pgerr.OfKind(err, pgerr.ServerError):
		return err
	default:
		c.closed.Store(true)
		_ = c.conn.Close()
		return err
	}
}

func (c *Client) renameKey(col string) string {
	if c.keyFn == nil {
		return col
	}
	return c.keyFn(col)
}

// builtinOID infers a parameter's wire type OID from its Kind, for the
// Parse message's parameter OID list. Returns ok=false when no fixed OID
// applies (e.g. a bare range value), in which case the caller sends 0
// ("server infers").
func builtinOID(v pgtype.Value) (pgtype.OID, bool) {
	if v.IsNull() {
		return 0, false
	}
	switch v.Kind {
	case pgtype.KindBool:
		return pgtype.OIDBool, true
	case pgtype.KindInt2:
		return pgtype.OIDInt2, true
	case pgtype.KindInt4:
		return pgtype.OIDInt4, true
	case pgtype.KindInt8:
		return pgtype.OIDInt8, true
	case pgtype.KindFloat4:
		return pgtype.OIDFloat4, true
	case pgtype.KindFloat8:
		return pgtype.OIDFloat8, true
	case pgtype.KindText:
		return pgtype.OIDText, true
	case pgtype.KindBytes:
		return pgtype.OIDBytea, true
	case pgtype.KindUUID:
		return pgtype.OIDUUID, true
	case pgtype.KindNumeric:
		return pgtype.OIDNumeric, true
	case pgtype.KindDate:
		return pgtype.OIDDate, true
	case pgtype.KindTime:
		return pgtype.OIDTime, true
	case pgtype.KindTimetz:
		return pgtype.OIDTimetz, true
	case pgtype.KindTimestamp:
		return pgtype.OIDTimestamp, true
	case pgtype.KindTimestamptz:
		return pgtype.OIDTimestamptz, true
	case pgtype.KindInterval:
		return pgtype.OIDInterval, true
	case pgtype.KindInet:
		return pgtype.OIDInet, true
	case pgtype.KindJSON:
		return pgtype.OIDJSON, true
	case pgtype.KindJSONB:
		return pgtype.OIDJSONB, true
	case pgtype.KindPgLSN:
		return pgtype.OIDPgLSN, true
	case pgtype.KindArray:
		if len(v.Array) == 0 {
			return 0, false
		}
		elemOID, ok := builtinOID(v.Array[0])
		if !ok {
			return 0, false
		}
		arrOID, ok := pgtype.ArrayOIDOf(elemOID)
		return arrOID, ok
	default:
		return 0, false
	}
}

func (c *Client) paramOID(v pgtype.Value) pgtype.OID {
	if c.oidFn != nil {
		if oid, ok := c.oidFn(v); ok {
			return oid
		}
	}
	if oid, ok := builtinOID(v); ok {
		return oid
	}
	return 0
}
