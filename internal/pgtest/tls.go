package pgtest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgproto3"
)

// SelfSignedConfig generates an ECDSA self-signed certificate valid for
// "127.0.0.1"/"localhost" and returns a server-side tls.Config, so tests
// can exercise pgconn.Conn.Secure's TLS upgrade path without a CA.
func SelfSignedConfig() (*tls.Config, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}
	tmpl := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{Organization: []string{"pgflow test fixture"}, CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	cert := tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}

// AcceptSSL replies 'S' to an SSLRequest and performs the server side of
// the TLS handshake, returning a Server whose subsequent Receive/Send
// calls run over the encrypted connection.
func (s *Server) AcceptSSL(cfg *tls.Config) (*Server, error) {
	if _, err := s.conn.Write([]byte{'S'}); err != nil {
		return nil, err
	}
	tlsConn := tls.Server(s.conn, cfg)
	if err := tlsConn.Handshake(); err != nil {
		return nil, err
	}
	return &Server{conn: tlsConn, backend: pgproto3.NewBackend(tlsConn, tlsConn)}, nil
}
