// Package pgauth implements session startup: the SSLRequest/TLS step
// delegated to pgconn, the Startup message, and the SASL authentication
// loop (SCRAM-SHA-256 and SCRAM-SHA-256-PLUS per RFC 5802), generalizing
// the teacher's PRELOGIN->TLS->LOGIN7->LOGINACK state machine
// (protocol/tds/connection.go) to Postgres's SSLRequest->TLS->Startup->
// SASL->ReadyForQuery sequence.
package pgauth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/ha1tch/pgflow/pgerr"
)

const (
	MechanismSHA256     = "SCRAM-SHA-256"
	MechanismSHA256Plus = "SCRAM-SHA-256-PLUS"
)

// scramClient drives one SCRAM-SHA-256(-PLUS) exchange.
type scramClient struct {
	password       string
	clientNonce    string
	channelBinding bool
	gs2Header      string
	cbindData      []byte

	clientFirstBare string
	saltedPassword  []byte
	authMessage     string
}

// newSCRAMClient builds a client for the given mechanism. certHash is the
// SHA-256 of the server's DER certificate (required, non-nil) when
// mechanism is SCRAM-SHA-256-PLUS.
func newSCRAMClient(mechanism, password string, certHash []byte) (*scramClient, error) {
	nonce := make([]byte, 18)
	if _, err := rand.Read(nonce); err != nil {
		return nil, pgerr.Wrap(err, pgerr.Fault, "pgauth.newSCRAMClient", "generating nonce")
	}

	c := &scramClient{
		password:    password,
		clientNonce: base64.StdEncoding.EncodeToString(nonce),
	}

	switch mechanism {
	case MechanismSHA256Plus:
		if len(certHash) == 0 {
			return nil, pgerr.New(pgerr.Incorrect, "pgauth.newSCRAMClient", "channel binding requires a certificate hash")
		}
		c.channelBinding = true
		c.gs2Header = "p=tls-server-end-point,,"
		c.cbindData = certHash
	case MechanismSHA256:
		c.gs2Header = "n,,"
	default:
		return nil, pgerr.Newf(pgerr.Unsupported, "pgauth.newSCRAMClient", "unsupported SASL mechanism %q", mechanism)
	}

	return c, nil
}

// InitialResponse returns the bytes of the client-first message (gs2
// header + bare message) to send as SASLInitialResponse.
func (c *scramClient) InitialResponse() []byte {
	c.clientFirstBare = "n=,r=" + c.clientNonce
	return []byte(c.gs2Header + c.clientFirstBare)
}

// parsedServerFirst holds the fields of the server-first message.
type parsedServerFirst struct {
	nonce      string
	salt       []byte
	iterations int
}

func parseServerFirst(msg string) (parsedServerFirst, error) {
	var p parsedServerFirst
	for _, field := range strings.Split(msg, ",") {
		if len(field) < 2 || field[1] != '=' {
			continue
		}
		switch field[0] {
		case 'r':
			p.nonce = field[2:]
		case 's':
			salt, err := base64.StdEncoding.DecodeString(field[2:])
			if err != nil {
				return p, pgerr.Wrap(err, pgerr.Forbidden, "pgauth.parseServerFirst", "decoding salt")
			}
			p.salt = salt
		case 'i':
			n, err := strconv.Atoi(field[2:])
			if err != nil {
				return p, pgerr.Wrap(err, pgerr.Forbidden, "pgauth.parseServerFirst", "parsing iteration count")
			}
			p.iterations = n
		}
	}
	if p.nonce == "" || p.salt == nil || p.iterations == 0 {
		return p, pgerr.Newf(pgerr.Forbidden, "pgauth.parseServerFirst", "malformed server-first message %q", msg)
	}
	return p, nil
}

// ClientFinal computes the client-final message for a given server-first
// message, per RFC 5802.
func (c *scramClient) ClientFinal(serverFirst string) (string, error) {
	p, err := parseServerFirst(serverFirst)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(p.nonce, c.clientNonce) {
		return "", pgerr.New(pgerr.Forbidden, "pgauth.ClientFinal", "server nonce does not extend client nonce")
	}

	c.saltedPassword = pbkdf2.Key([]byte(c.password), p.salt, p.iterations, sha256.Size, sha256.New)

	clientKey := hmacSHA256(c.saltedPassword, "Client Key")
	storedKey := sha256.Sum256(clientKey)

	cbindInput := c.gs2Header
	if c.channelBinding {
		cbindInput = c.gs2Header + string(c.cbindData)
	}
	channelBindingB64 := base64.StdEncoding.EncodeToString([]byte(cbindInput))

	clientFinalWithoutProof := "c=" + channelBindingB64 + ",r=" + p.nonce
	c.authMessage = c.clientFirstBare + "," + serverFirst + "," + clientFinalWithoutProof

	clientSignature := hmacSHA256(storedKey[:], c.authMessage)
	clientProof := xorBytes(clientKey, clientSignature)

	return clientFinalWithoutProof + ",p=" + base64.StdEncoding.EncodeToString(clientProof), nil
}

// VerifyServerFinal validates the v=<signature> of the server-final
// message against the locally-computed server signature.
func (c *scramClient) VerifyServerFinal(serverFinal string) error {
	var sigB64 string
	for _, field := range strings.Split(serverFinal, ",") {
		if strings.HasPrefix(field, "v=") {
			sigB64 = field[2:]
		}
	}
	if sigB64 == "" {
		return pgerr.New(pgerr.Forbidden, "pgauth.VerifyServerFinal", "missing server signature")
	}
	gotSig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return pgerr.Wrap(err, pgerr.Forbidden, "pgauth.VerifyServerFinal", "decoding server signature")
	}

	serverKey := hmacSHA256(c.saltedPassword, "Server Key")
	wantSig := hmacSHA256(serverKey, c.authMessage)

	if subtle.ConstantTimeCompare(gotSig, wantSig) != 1 {
		return pgerr.New(pgerr.Forbidden, "pgauth.VerifyServerFinal", "server signature mismatch")
	}
	return nil
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range out {
		out[i] = a[i] ^ b[i%len(b)]
	}
	return out
}
