package pgauth_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/ha1tch/pgflow/internal/pgtest"
	"github.com/ha1tch/pgflow/pgauth"
	"github.com/ha1tch/pgflow/pgconn"
	"github.com/ha1tch/pgflow/pgerr"
)

func TestStartupTrustAuth(t *testing.T) {
	ln, err := pgtest.Listen()
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	serverDone := make(chan error, 1)
	go func() {
		srv, err := ln.Accept()
		if err != nil {
			serverDone <- err
			return
		}
		defer srv.Close()
		if _, err := srv.ReceiveStartup(); err != nil {
			serverDone <- err
			return
		}
		serverDone <- srv.AuthenticateTrust()
	}()

	ctx := context.Background()
	conn, err := pgconn.Open(ctx, ln.Host(), ln.Port())
	if err != nil {
		t.Fatalf("pgconn.Open: %v", err)
	}
	defer conn.Close()

	res, err := pgauth.Startup(ctx, conn, pgauth.Params{Database: "testdb", User: "tester"}, nil)
	if err != nil {
		t.Fatalf("Startup: %v", err)
	}
	if res.TxStatus != 'I' {
		t.Errorf("TxStatus = %q, want 'I'", res.TxStatus)
	}
	if res.KeyData.ProcessID != 4242 {
		t.Errorf("ProcessID = %d, want 4242", res.KeyData.ProcessID)
	}
	if res.BackendParams["server_version"] != "16.0" {
		t.Errorf("server_version = %q, want 16.0", res.BackendParams["server_version"])
	}

	if err := <-serverDone; err != nil {
		t.Fatalf("server goroutine: %v", err)
	}
}

func TestStartupErrorResponse(t *testing.T) {
	ln, err := pgtest.Listen()
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go func() {
		srv, err := ln.Accept()
		if err != nil {
			return
		}
		defer srv.Close()
		srv.ReceiveStartup()
		srv.Send(&pgproto3.ErrorResponse{
			Severity: "FATAL",
			Code:     "28000",
			Message:  "no pg_hba.conf entry",
		})
	}()

	ctx := context.Background()
	conn, err := pgconn.Open(ctx, ln.Host(), ln.Port())
	if err != nil {
		t.Fatalf("pgconn.Open: %v", err)
	}
	defer conn.Close()

	_, err = pgauth.Startup(ctx, conn, pgauth.Params{Database: "testdb", User: "tester"}, nil)
	if err == nil {
		t.Fatal("expected Startup to fail on ErrorResponse")
	}
	if !pgerr.OfKind(err, pgerr.ServerError) {
		t.Errorf("expected ServerError kind, got %v", err)
	}
}
