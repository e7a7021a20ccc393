// Package pgconn implements the frame I/O layer (THE CORE's C1): opening a
// TCP connection to a PostgreSQL server, the SSLRequest/TLS upgrade
// handshake, and certificate-hash extraction for SCRAM channel binding.
// Message framing itself is delegated to jackc/pgx/v5's pgproto3, the
// idiomatic Go implementation of the wire format spec.md §4.1 describes
// byte-for-byte (tag + big-endian length + body) -- re-deriving that
// framer by hand would just be a worse copy of a library already in the
// dependency graph.
package pgconn

import (
	"bufio"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/ha1tch/pgflow/pgerr"
)

// TLSVerifier is an abstract handle for server certificate verification.
// Constructing an x.509 trust root is explicitly out of scope for THE
// CORE (spec.md §1); callers supply a pre-built *tls.Config via this
// narrow interface.
type TLSVerifier interface {
	// ClientConfig returns the tls.Config to use for the upgrade.
	// serverName is the connection's target host, for SNI/hostname
	// verification.
	ClientConfig(serverName string) *tls.Config
}

// TLSVerifierFunc adapts a plain func to TLSVerifier.
type TLSVerifierFunc func(serverName string) *tls.Config

func (f TLSVerifierFunc) ClientConfig(serverName string) *tls.Config { return f(serverName) }

const sslRequestCode = 80877103

// Conn is a single, exclusively-owned connection to a PostgreSQL backend.
// It owns the duplex byte stream, the TLS state, and the frontend framer;
// every read/write goes through mu so the wire state machine is never
// interleaved (spec.md §5).
type Conn struct {
	mu sync.Mutex

	id       uuid.UUID
	netConn  net.Conn
	tlsConn  *tls.Conn
	frontend *pgproto3.Frontend

	secure bool

	readTimeout  time.Duration
	writeTimeout time.Duration
}

// ID returns a correlation ID generated when the connection was opened,
// for tying together log lines and metrics across a single session.
func (c *Conn) ID() uuid.UUID { return c.id }

// Option configures Open.
type Option func(*dialOpts)

type dialOpts struct {
	connectTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
}

func WithConnectTimeout(d time.Duration) Option {
	return func(o *dialOpts) { o.connectTimeout = d }
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *dialOpts) { o.readTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *dialOpts) { o.writeTimeout = d }
}

// Open dials host:port, enabling TCP keepalive (Nagle stays on, matching
// spec.md §4.1's "open" contract). A refused connection is classified
// Unavailable.
func Open(ctx context.Context, host string, port int, opts ...Option) (*Conn, error) {
	o := dialOpts{connectTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	dialer := net.Dialer{Timeout: o.connectTimeout, KeepAlive: 30 * time.Second}
	addr := net.JoinHostPort(host, itoa(port))

	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, pgerr.Wrapf(err, pgerr.Unavailable, "pgconn.Open", "dial %s", addr)
	}

	c := &Conn{
		id:           uuid.New(),
		netConn:      netConn,
		readTimeout:  o.readTimeout,
		writeTimeout: o.writeTimeout,
	}
	c.frontend = pgproto3.NewFrontend(bufio.NewReader(netConn), netConn)
	return c, nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// Frontend exposes the underlying pgproto3.Frontend for message send/receive.
func (c *Conn) Frontend() *pgproto3.Frontend { return c.frontend }

// Lock/Unlock expose the connection's mutex so higher layers (sqlclient,
// replication) can hold it across a whole request/response exchange, per
// spec.md §5's "operations that read or write the connection take it for
// the duration of a single request/response exchange".
func (c *Conn) Lock()   { c.mu.Lock() }
func (c *Conn) Unlock() { c.mu.Unlock() }

// Secure performs the SSLRequest/TLS-upgrade handshake. On the server's
// 'N' reply the connection continues unencrypted; on 'S' it negotiates
// TLS 1.2+. Certificate failures are classified Forbidden.
func (c *Conn) Secure(verifier TLSVerifier, serverName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	req := make([]byte, 8)
	binary.BigEndian.PutUint32(req[0:4], 8)
	binary.BigEndian.PutUint32(req[4:8], sslRequestCode)
	if _, err := c.netConn.Write(req); err != nil {
		return pgerr.Wrap(err, pgerr.Unavailable, "pgconn.Secure", "writing SSLRequest")
	}

	reply := make([]byte, 1)
	if _, err := io.ReadFull(c.netConn, reply); err != nil {
		return pgerr.Wrap(err, pgerr.Unavailable, "pgconn.Secure", "reading SSLRequest reply")
	}

	switch reply[0] {
	case 'N':
		return nil
	case 'S':
		// fallthrough to negotiate TLS below
	default:
		return pgerr.Newf(pgerr.Fault, "pgconn.Secure", "unexpected SSLRequest reply byte %q", reply[0])
	}

	cfg := verifier.ClientConfig(serverName)
	if cfg.MinVersion == 0 {
		cfg.MinVersion = tls.VersionTLS12
	}

	tlsConn := tls.Client(c.netConn, cfg)
	if err := tlsConn.HandshakeContext(context.Background()); err != nil {
		return pgerr.Wrap(err, pgerr.Forbidden, "pgconn.Secure", "TLS handshake")
	}

	c.tlsConn = tlsConn
	c.secure = true
	c.frontend = pgproto3.NewFrontend(bufio.NewReader(tlsConn), tlsConn)
	return nil
}

// IsSecure reports whether the connection has been TLS-upgraded.
func (c *Conn) IsSecure() bool { return c.secure }

// CertificateHash returns the SHA-256 of the DER-encoded end-entity server
// certificate, for SCRAM-SHA-256-PLUS channel binding. Returns an error if
// the connection isn't TLS-secured.
func (c *Conn) CertificateHash() ([]byte, error) {
	if c.tlsConn == nil {
		return nil, pgerr.New(pgerr.Incorrect, "pgconn.CertificateHash", "connection is not TLS-secured")
	}
	state := c.tlsConn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return nil, pgerr.New(pgerr.Incorrect, "pgconn.CertificateHash", "no peer certificates")
	}
	sum := sha256.Sum256(state.PeerCertificates[0].Raw)
	return sum[:], nil
}

// PeerCertificate returns the end-entity server certificate, if any.
func (c *Conn) PeerCertificate() *x509.Certificate {
	if c.tlsConn == nil {
		return nil
	}
	state := c.tlsConn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return nil
	}
	return state.PeerCertificates[0]
}

// Send queues a frontend message for the next Flush (mirrors
// pgproto3.Frontend.Send semantics -- buffered until Flush).
func (c *Conn) Send(msg pgproto3.FrontendMessage) {
	c.frontend.Send(msg)
}

// Flush writes all queued frontend messages atomically, applying the
// configured write timeout.
func (c *Conn) Flush() error {
	if c.writeTimeout > 0 {
		c.netConn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		defer c.netConn.SetWriteDeadline(time.Time{})
	}
	if err := c.frontend.Flush(); err != nil {
		return pgerr.Wrap(err, pgerr.Unavailable, "pgconn.Flush", "writing frame")
	}
	return nil
}

// Receive reads the next backend message, applying the configured read
// timeout. EOF or a short read is classified Unavailable.
func (c *Conn) Receive() (pgproto3.BackendMessage, error) {
	if c.readTimeout > 0 {
		c.netConn.SetReadDeadline(time.Now().Add(c.readTimeout))
		defer c.netConn.SetReadDeadline(time.Time{})
	}
	msg, err := c.frontend.Receive()
	if err != nil {
		return nil, pgerr.Wrap(err, pgerr.Unavailable, "pgconn.Receive", "reading frame")
	}
	return msg, nil
}

// Close sends Terminate best-effort, then closes the underlying socket.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.frontend.Send(&pgproto3.Terminate{})
	_ = c.frontend.Flush()

	if c.tlsConn != nil {
		return c.tlsConn.Close()
	}
	return c.netConn.Close()
}

// RemoteAddr returns the remote address.
func (c *Conn) RemoteAddr() net.Addr { return c.netConn.RemoteAddr() }
