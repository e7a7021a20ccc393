package pgconn_test

import (
	"context"
	"crypto/tls"
	"testing"

	"github.com/ha1tch/pgflow/internal/pgtest"
	"github.com/ha1tch/pgflow/pgconn"
)

func TestSecureUpgradesToTLS(t *testing.T) {
	ln, err := pgtest.Listen()
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	serverCfg, err := pgtest.SelfSignedConfig()
	if err != nil {
		t.Fatalf("SelfSignedConfig: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		srv, err := ln.Accept()
		if err != nil {
			done <- err
			return
		}
		defer srv.Close()
		if _, err := srv.AcceptSSL(serverCfg); err != nil {
			done <- err
			return
		}
		done <- nil
	}()

	conn, err := pgconn.Open(context.Background(), ln.Host(), ln.Port())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	verifier := pgconn.TLSVerifierFunc(func(serverName string) *tls.Config {
		return &tls.Config{InsecureSkipVerify: true}
	})
	if err := conn.Secure(verifier, "localhost"); err != nil {
		t.Fatalf("Secure: %v", err)
	}
	if !conn.IsSecure() {
		t.Fatal("IsSecure() = false after a successful TLS upgrade")
	}
	if conn.PeerCertificate() == nil {
		t.Fatal("PeerCertificate() = nil after a successful TLS upgrade")
	}
	if _, err := conn.CertificateHash(); err != nil {
		t.Fatalf("CertificateHash: %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("server side: %v", err)
	}
}

func TestSecureContinuesInPlaintextWhenServerRepliesN(t *testing.T) {
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
		srv.RejectSSL()
	}()

	conn, err := pgconn.Open(context.Background(), ln.Host(), ln.Port())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	verifier := pgconn.TLSVerifierFunc(func(serverName string) *tls.Config {
		return &tls.Config{InsecureSkipVerify: true}
	})
	if err := conn.Secure(verifier, "localhost"); err != nil {
		t.Fatalf("Secure: %v", err)
	}
	if conn.IsSecure() {
		t.Fatal("IsSecure() = true after the server rejected TLS")
	}
}
