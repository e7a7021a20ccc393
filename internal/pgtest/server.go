// Package pgtest provides a minimal fake PostgreSQL backend listening on
// loopback TCP, so pgconn, sqlclient, pgauth, and replication can be
// exercised against a scripted server without a live PostgreSQL instance
// (mirroring the way the teacher's own pkg/protocol/postgres/listener.go
// drives pgproto3 from the server side).
package pgtest

import (
	"net"

	"github.com/jackc/pgx/v5/pgproto3"
)

// Listener accepts a single connection and hands back a Server wrapping
// it. Tests dial Addr() with pgconn.Open, then call Accept to obtain the
// server-side handle once the client has connected.
type Listener struct {
	ln net.Listener
}

// Listen starts listening on loopback with an OS-assigned port.
func Listen() (*Listener, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln}, nil
}

// Addr returns the "host:port" string suitable for pgconn.Open, split
// into its components by callers that need host/port separately.
func (l *Listener) Addr() string {
	return l.ln.Addr().String()
}

func (l *Listener) Host() string {
	return l.ln.Addr().(*net.TCPAddr).IP.String()
}

func (l *Listener) Port() int {
	return l.ln.Addr().(*net.TCPAddr).Port
}

// Accept blocks for the next incoming connection and wraps it as a Server.
func (l *Listener) Accept() (*Server, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return &Server{conn: conn, backend: pgproto3.NewBackend(conn, conn)}, nil
}

// Close stops accepting new connections.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Server is the backend half of one fake PostgreSQL connection. Tests
// script its behavior by calling Receive/Send in whatever sequence the
// scenario under test requires.
type Server struct {
	conn    net.Conn
	backend *pgproto3.Backend
}

// ReceiveStartup reads the very first frontend message, which is framed
// without a type byte (StartupMessage, SSLRequest, or CancelRequest).
func (s *Server) ReceiveStartup() (pgproto3.FrontendMessage, error) {
	return s.backend.ReceiveStartupMessage()
}

// RejectSSL replies 'N' to an SSLRequest, telling the client to continue
// in cleartext, then reads the StartupMessage that follows.
func (s *Server) RejectSSL() (pgproto3.FrontendMessage, error) {
	if _, err := s.conn.Write([]byte{'N'}); err != nil {
		return nil, err
	}
	return s.backend.ReceiveStartupMessage()
}

// Receive reads the next regular (type-byte-prefixed) frontend message.
func (s *Server) Receive() (pgproto3.FrontendMessage, error) {
	return s.backend.Receive()
}

// Send writes and flushes a single backend message.
func (s *Server) Send(msg pgproto3.BackendMessage) error {
	s.backend.Send(msg)
	return s.backend.Flush()
}

// SendAll writes several backend messages, each in its own frame, and
// flushes them together.
func (s *Server) SendAll(msgs ...pgproto3.BackendMessage) error {
	for _, m := range msgs {
		s.backend.Send(m)
	}
	return s.backend.Flush()
}

// AuthenticateTrust replies to a StartupMessage with the handshake of a
// server configured for "trust" authentication: AuthenticationOk followed
// by the minimal ParameterStatus/BackendKeyData/ReadyForQuery every
// client's drainToReady loop expects.
func (s *Server) AuthenticateTrust() error {
	return s.SendAll(
		&pgproto3.AuthenticationOk{},
		&pgproto3.ParameterStatus{Name: "server_version", Value: "16.0"},
		&pgproto3.ParameterStatus{Name: "server_encoding", Value: "UTF8"},
		&pgproto3.BackendKeyData{ProcessID: 4242, SecretKey: 24242},
		&pgproto3.ReadyForQuery{TxStatus: 'I'},
	)
}

// Close closes the server's side of the connection.
func (s *Server) Close() error {
	return s.conn.Close()
}
