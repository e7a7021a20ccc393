package sqlclient_test

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/ha1tch/pgflow/internal/pgtest"
	"github.com/ha1tch/pgflow/pgtype"
	"github.com/ha1tch/pgflow/sqlclient"
)

func int4Bytes(v int32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(v))
	return b
}

// drainExtendedQueryMessages reads and discards Parse/Describe/Bind/
// Execute frontend messages until the terminating Sync, which is how a
// scripted server stands in for a real backend's extended-query intake.
func drainExtendedQueryMessages(t *testing.T, srv *pgtest.Server, nQueries int) {
	t.Helper()
	for i := 0; i < nQueries; i++ {
		for _, want := range []string{"Parse", "Describe", "Bind", "Execute"} {
			msg, err := srv.Receive()
			if err != nil {
				t.Fatalf("Receive (%s): %v", want, err)
			}
			_ = msg
		}
	}
	if _, err := srv.Receive(); err != nil { // Sync
		t.Fatalf("Receive (Sync): %v", err)
	}
}

func TestEqSingleQueryPipeline(t *testing.T) {
	client := dialFakeServer(t, func(srv *pgtest.Server) {
		drainExtendedQueryMessages(t, srv, 1)
		srv.SendAll(
			&pgproto3.ParseComplete{},
			&pgproto3.BindComplete{},
			&pgproto3.RowDescription{Fields: []pgproto3.FieldDescription{
				{Name: []byte("id"), DataTypeOID: uint32(pgtype.OIDInt4), Format: 1},
			}},
			&pgproto3.DataRow{Values: [][]byte{int4Bytes(42)}},
			&pgproto3.CommandComplete{CommandTag: []byte("SELECT 1")},
			&pgproto3.ReadyForQuery{TxStatus: 'I'},
		)
	})

	results, err := client.Eq(context.Background(), sqlclient.Q("SELECT $1::int4", pgtype.Int4(7)))
	if err != nil {
		t.Fatalf("Eq: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	v, ok := results[0].Rows[0].Get("id")
	if !ok || v.Kind != pgtype.KindInt4 || v.Int != 42 {
		t.Errorf("id = %+v, want int4 42", v)
	}
}

func TestEqPipelinesMultipleQueriesInOneRoundTrip(t *testing.T) {
	client := dialFakeServer(t, func(srv *pgtest.Server) {
		drainExtendedQueryMessages(t, srv, 2)
		srv.SendAll(
			&pgproto3.ParseComplete{},
			&pgproto3.BindComplete{},
			&pgproto3.NoData{},
			&pgproto3.CommandComplete{CommandTag: []byte("INSERT 0 1")},

			&pgproto3.ParseComplete{},
			&pgproto3.BindComplete{},
			&pgproto3.NoData{},
			&pgproto3.CommandComplete{CommandTag: []byte("INSERT 0 1")},

			&pgproto3.ReadyForQuery{TxStatus: 'I'},
		)
	})

	results, err := client.Eq(context.Background(),
		sqlclient.Q("INSERT INTO t VALUES ($1)", pgtype.Int4(1)),
		sqlclient.Q("INSERT INTO t VALUES ($1)", pgtype.Int4(2)),
	)
	if err != nil {
		t.Fatalf("Eq: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Tag.Rows != 1 || results[1].Tag.Rows != 1 {
		t.Errorf("Tags = %+v / %+v", results[0].Tag, results[1].Tag)
	}
}

func TestEqServerErrorFailsWholePipeline(t *testing.T) {
	client := dialFakeServer(t, func(srv *pgtest.Server) {
		drainExtendedQueryMessages(t, srv, 2)
		srv.SendAll(
			&pgproto3.ParseComplete{},
			&pgproto3.BindComplete{},
			&pgproto3.NoData{},
			&pgproto3.CommandComplete{CommandTag: []byte("INSERT 0 1")},

			&pgproto3.ErrorResponse{Severity: "ERROR", Code: "23505", Message: "duplicate key"},

			&pgproto3.ReadyForQuery{TxStatus: 'I'},
		)
	})

	_, err := client.Eq(context.Background(),
		sqlclient.Q("INSERT INTO t VALUES ($1)", pgtype.Int4(1)),
		sqlclient.Q("INSERT INTO t VALUES ($1)", pgtype.Int4(1)),
	)
	if err == nil {
		t.Fatal("expected the pipeline to fail when one query errors (spec.md §8 property 7)")
	}
}
