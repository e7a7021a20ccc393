package sqlclient_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/ha1tch/pgflow/internal/pgtest"
	"github.com/ha1tch/pgflow/pgauth"
	"github.com/ha1tch/pgflow/sqlclient"
)

func dialFakeServer(t *testing.T, serve func(*pgtest.Server)) *sqlclient.Client {
	t.Helper()
	ln, err := pgtest.Listen()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		srv, err := ln.Accept()
		if err != nil {
			return
		}
		defer srv.Close()
		if _, err := srv.ReceiveStartup(); err != nil {
			return
		}
		if err := srv.AuthenticateTrust(); err != nil {
			return
		}
		serve(srv)
	}()

	client, err := sqlclient.Connect(context.Background(), ln.Host(), ln.Port(), pgauth.Params{
		Database: "testdb", User: "tester",
	}, nil, sqlclient.Options{})
	if err != nil {
		t.Fatalf("sqlclient.Connect: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestSqReturnsRows(t *testing.T) {
	client := dialFakeServer(t, func(srv *pgtest.Server) {
		if _, err := srv.Receive(); err != nil {
			return
		}
		srv.SendAll(
			&pgproto3.RowDescription{Fields: []pgproto3.FieldDescription{
				{Name: []byte("id")}, {Name: []byte("name")},
			}},
			&pgproto3.DataRow{Values: [][]byte{[]byte("1"), []byte("alice")}},
			&pgproto3.DataRow{Values: [][]byte{[]byte("2"), []byte("bob")}},
			&pgproto3.CommandComplete{CommandTag: []byte("SELECT 2")},
			&pgproto3.ReadyForQuery{TxStatus: 'I'},
		)
	})

	results, err := client.Sq(context.Background(), "SELECT id, name FROM users")
	if err != nil {
		t.Fatalf("Sq: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if len(results[0].Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(results[0].Rows))
	}
	name, ok := results[0].Rows[1].Get("name")
	if !ok || name.Text != "bob" {
		t.Errorf("row[1].name = %+v, want bob", name)
	}
	if results[0].Tag.Command != "SELECT" || results[0].Tag.Rows != 2 {
		t.Errorf("Tag = %+v, want SELECT/2", results[0].Tag)
	}
}

func TestSqServerErrorLeavesClientOpen(t *testing.T) {
	// A ServerError (spec.md §7) is one of the three kinds that do not
	// close the client: the server already resynchronized to
	// ReadyForQuery, so the connection remains perfectly usable.
	var secondQueryServed bool
	client := dialFakeServer(t, func(srv *pgtest.Server) {
		if _, err := srv.Receive(); err != nil {
			return
		}
		srv.SendAll(
			&pgproto3.ErrorResponse{Severity: "ERROR", Code: "42601", Message: "syntax error"},
			&pgproto3.ReadyForQuery{TxStatus: 'I'},
		)

		if _, err := srv.Receive(); err != nil {
			return
		}
		secondQueryServed = true
		srv.SendAll(
			&pgproto3.CommandComplete{CommandTag: []byte("SELECT 0")},
			&pgproto3.ReadyForQuery{TxStatus: 'I'},
		)
	})

	_, err := client.Sq(context.Background(), "GARBAGE")
	if err == nil {
		t.Fatal("expected Sq to surface the server error")
	}

	if _, err := client.Sq(context.Background(), "SELECT 1 WHERE false"); err != nil {
		t.Fatalf("expected client to remain open after a ServerError, got: %v", err)
	}
	if !secondQueryServed {
		t.Fatal("server never saw the second query; client must have closed the connection")
	}
}
