package pgauth

import (
	"context"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/ha1tch/pgflow/internal/logging"
	"github.com/ha1tch/pgflow/pgconn"
	"github.com/ha1tch/pgflow/pgerr"
)

// Params holds the session parameters of the Startup message and the
// credentials used to satisfy whatever authentication request the server
// issues in response.
type Params struct {
	Database string
	User     string
	Password string

	// ReplicationMode sets the "replication" startup parameter ("database"
	// for logical replication, "true" for physical). Empty means a plain
	// session.
	ReplicationMode string

	// RuntimeParams are extra startup parameters (e.g. application_name).
	RuntimeParams map[string]string
}

// BackendKeyData carries the values the server sends with BackendKeyData,
// needed by sqlclient for query cancellation (currently unused, see
// spec.md §7 Non-goals, but captured since the server always sends it).
type BackendKeyData struct {
	ProcessID uint32
	SecretKey uint32
}

// Result is what a successful Startup yields: the negotiated backend
// parameters and key data, ending at ReadyForQuery.
type Result struct {
	BackendParams map[string]string
	KeyData       BackendKeyData
	TxStatus      byte
}

// Startup sends the Startup message, carries out whatever authentication
// request the server issues (SCRAM-SHA-256 or SCRAM-SHA-256-PLUS; an
// immediate AuthenticationOk is accepted; cleartext, MD5 and GSSAPI
// requests are classified Unsupported), and drains ParameterStatus/
// BackendKeyData through ReadyForQuery. It generalizes the teacher's
// LOGIN7/LOGINACK exchange (protocol/tds/connection.go's handshake) to
// Postgres's SASL-based flow.
func Startup(ctx context.Context, conn *pgconn.Conn, params Params, log *logging.Logger) (*Result, error) {
	startup := &pgproto3.StartupMessage{
		ProtocolVersion: pgproto3.ProtocolVersionNumber,
		Parameters: map[string]string{
			"user":     params.User,
			"database": params.Database,
		},
	}
	if params.ReplicationMode != "" {
		startup.Parameters["replication"] = params.ReplicationMode
	}
	for k, v := range params.RuntimeParams {
		startup.Parameters[k] = v
	}

	conn.Lock()
	defer conn.Unlock()

	conn.Send(startup)
	if err := conn.Flush(); err != nil {
		return nil, err
	}

	if err := authenticate(conn, params); err != nil {
		return nil, err
	}

	return drainToReady(conn, log)
}

func authenticate(conn *pgconn.Conn, params Params) error {
	msg, err := conn.Receive()
	if err != nil {
		return err
	}

	auth, ok := msg.(*pgproto3.AuthenticationOk)
	if ok {
		_ = auth
		return nil
	}

	switch m := msg.(type) {
	case *pgproto3.AuthenticationSASL:
		return authenticateSASL(conn, params, m.AuthMechanisms)
	case *pgproto3.AuthenticationCleartextPassword, *pgproto3.AuthenticationMD5Password, *pgproto3.AuthenticationGSS:
		return pgerr.Newf(pgerr.Unsupported, "pgauth.authenticate", "%T authentication is not supported; use SCRAM-SHA-256", msg)
	case *pgproto3.ErrorResponse:
		return serverErr(m)
	default:
		return pgerr.Newf(pgerr.Fault, "pgauth.authenticate", "unexpected message %T during authentication", msg)
	}
}

func authenticateSASL(conn *pgconn.Conn, params Params, mechanisms []string) error {
	mechanism := chooseMechanism(mechanisms)
	if mechanism == "" {
		return pgerr.Newf(pgerr.Unsupported, "pgauth.authenticateSASL", "no supported SASL mechanism among %v", mechanisms)
	}

	var certHash []byte
	if mechanism == MechanismSHA256Plus {
		hash, err := conn.CertificateHash()
		if err != nil {
			return err
		}
		certHash = hash
	}

	client, err := newSCRAMClient(mechanism, params.Password, certHash)
	if err != nil {
		return err
	}

	conn.Send(&pgproto3.SASLInitialResponse{
		AuthMechanism: mechanism,
		Data:          client.InitialResponse(),
	})
	if err := conn.Flush(); err != nil {
		return err
	}

	msg, err := conn.Receive()
	if err != nil {
		return err
	}
	cont, ok := msg.(*pgproto3.AuthenticationSASLContinue)
	if !ok {
		if errMsg, ok := msg.(*pgproto3.ErrorResponse); ok {
			return serverErr(errMsg)
		}
		return pgerr.Newf(pgerr.Fault, "pgauth.authenticateSASL", "expected AuthenticationSASLContinue, got %T", msg)
	}

	clientFinal, err := client.ClientFinal(string(cont.Data))
	if err != nil {
		return err
	}

	conn.Send(&pgproto3.SASLResponse{Data: []byte(clientFinal)})
	if err := conn.Flush(); err != nil {
		return err
	}

	msg, err = conn.Receive()
	if err != nil {
		return err
	}
	final, ok := msg.(*pgproto3.AuthenticationSASLFinal)
	if !ok {
		if errMsg, ok := msg.(*pgproto3.ErrorResponse); ok {
			return serverErr(errMsg)
		}
		return pgerr.Newf(pgerr.Fault, "pgauth.authenticateSASL", "expected AuthenticationSASLFinal, got %T", msg)
	}
	if err := client.VerifyServerFinal(string(final.Data)); err != nil {
		return err
	}

	msg, err = conn.Receive()
	if err != nil {
		return err
	}
	if _, ok := msg.(*pgproto3.AuthenticationOk); !ok {
		if errMsg, ok := msg.(*pgproto3.ErrorResponse); ok {
			return serverErr(errMsg)
		}
		return pgerr.Newf(pgerr.Forbidden, "pgauth.authenticateSASL", "expected AuthenticationOk, got %T", msg)
	}
	return nil
}

func chooseMechanism(offered []string) string {
	for _, m := range offered {
		if m == MechanismSHA256Plus {
			return MechanismSHA256Plus
		}
	}
	for _, m := range offered {
		if m == MechanismSHA256 {
			return MechanismSHA256
		}
	}
	return ""
}

func drainToReady(conn *pgconn.Conn, log *logging.Logger) (*Result, error) {
	res := &Result{BackendParams: make(map[string]string)}
	for {
		msg, err := conn.Receive()
		if err != nil {
			return nil, err
		}
		switch m := msg.(type) {
		case *pgproto3.ParameterStatus:
			res.BackendParams[m.Name] = m.Value
		case *pgproto3.BackendKeyData:
			res.KeyData = BackendKeyData{ProcessID: m.ProcessID, SecretKey: m.SecretKey}
		case *pgproto3.ReadyForQuery:
			res.TxStatus = m.TxStatus
			if log != nil {
				log.For(logging.CategorySystem).Debugw("session ready", "params", len(res.BackendParams))
			}
			return res, nil
		case *pgproto3.NoticeResponse:
			if log != nil {
				log.For(logging.CategorySystem).Debugw("startup notice", "message", m.Message)
			}
		case *pgproto3.ErrorResponse:
			return nil, serverErr(m)
		default:
			return nil, pgerr.Newf(pgerr.Fault, "pgauth.drainToReady", "unexpected message %T before ReadyForQuery", msg)
		}
	}
}

func serverErr(m *pgproto3.ErrorResponse) error {
	fields := map[string]string{
		"severity": m.Severity,
		"code":     m.Code,
		"message":  m.Message,
		"detail":   m.Detail,
	}
	return pgerr.Server(fields)
}
