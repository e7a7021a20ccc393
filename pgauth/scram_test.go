package pgauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"

	"golang.org/x/crypto/pbkdf2"
)

// TestSCRAMExchangeRoundTrip drives a full client/server SCRAM-SHA-256
// exchange per RFC 5802 §3, with the server side hand-computed the same
// way a real PostgreSQL backend would, and checks both directions of
// the mutual proof: the client's proof the server would verify, and the
// server's signature the client verifies via VerifyServerFinal.
func TestSCRAMExchangeRoundTrip(t *testing.T) {
	const password = "pencil"

	client, err := newSCRAMClient(MechanismSHA256, password, nil)
	if err != nil {
		t.Fatalf("newSCRAMClient: %v", err)
	}
	initial := client.InitialResponse()
	if !strings.HasPrefix(string(initial), "n,,n=,r=") {
		t.Fatalf("InitialResponse() = %q, want n,,n=,r=<nonce> prefix", initial)
	}
	clientNonce := strings.TrimPrefix(string(initial), "n,,n=,r=")

	// --- simulated server ---
	serverNonceSuffix := make([]byte, 18)
	if _, err := rand.Read(serverNonceSuffix); err != nil {
		t.Fatal(err)
	}
	serverNonce := clientNonce + base64.StdEncoding.EncodeToString(serverNonceSuffix)

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		t.Fatal(err)
	}
	const iterations = 4096

	serverFirst := "r=" + serverNonce + ",s=" + base64.StdEncoding.EncodeToString(salt) + ",i=" + itoaTest(iterations)

	// --- client computes its final message ---
	clientFinal, err := client.ClientFinal(serverFirst)
	if err != nil {
		t.Fatalf("ClientFinal: %v", err)
	}

	// --- server independently verifies the client's proof ---
	saltedPassword := pbkdf2.Key([]byte(password), salt, iterations, sha256.Size, sha256.New)
	clientKey := hmacSHA256(saltedPassword, "Client Key")
	storedKey := sha256.Sum256(clientKey)

	clientFirstBare := "n=,r=" + clientNonce
	authMessage := clientFirstBare + "," + serverFirst + "," + withoutProof(clientFinal)

	expectedSig := hmacSHA256(storedKey[:], authMessage)
	proof := extractProof(t, clientFinal)
	recoveredClientKey := xorBytes(proof, expectedSig)
	recoveredStoredKey := sha256.Sum256(recoveredClientKey)
	if string(recoveredStoredKey[:]) != string(storedKey[:]) {
		t.Fatal("server-side proof verification failed: recovered StoredKey does not match")
	}

	// --- server computes its signature and the client verifies it ---
	serverKey := hmacSHA256(saltedPassword, "Server Key")
	serverSig := hmacSHA256(serverKey, authMessage)
	serverFinal := "v=" + base64.StdEncoding.EncodeToString(serverSig)

	if err := client.VerifyServerFinal(serverFinal); err != nil {
		t.Fatalf("VerifyServerFinal: %v", err)
	}
}

func TestSCRAMRejectsTamperedServerSignature(t *testing.T) {
	client, err := newSCRAMClient(MechanismSHA256, "pencil", nil)
	if err != nil {
		t.Fatal(err)
	}
	client.InitialResponse()

	salt := make([]byte, 16)
	serverFirst := "r=" + client.clientNonce + "abc,s=" + base64.StdEncoding.EncodeToString(salt) + ",i=4096"
	if _, err := client.ClientFinal(serverFirst); err != nil {
		t.Fatal(err)
	}

	if err := client.VerifyServerFinal("v=" + base64.StdEncoding.EncodeToString([]byte("not the real signature!"))); err == nil {
		t.Fatal("expected VerifyServerFinal to reject a tampered signature")
	}
}

func TestSCRAMRejectsNonExtendingNonce(t *testing.T) {
	client, err := newSCRAMClient(MechanismSHA256, "pencil", nil)
	if err != nil {
		t.Fatal(err)
	}
	client.InitialResponse()

	serverFirst := "r=totally-different-nonce,s=" + base64.StdEncoding.EncodeToString([]byte("salt1234")) + ",i=4096"
	if _, err := client.ClientFinal(serverFirst); err == nil {
		t.Fatal("expected ClientFinal to reject a server nonce that doesn't extend the client nonce")
	}
}

func TestSCRAMPlusRequiresCertHash(t *testing.T) {
	if _, err := newSCRAMClient(MechanismSHA256Plus, "pencil", nil); err == nil {
		t.Fatal("expected error constructing SCRAM-SHA-256-PLUS client without a certificate hash")
	}
	if _, err := newSCRAMClient(MechanismSHA256Plus, "pencil", []byte("32-byte-cert-hash-stand-in-here")); err != nil {
		t.Fatalf("unexpected error with a certificate hash present: %v", err)
	}
}

func TestSCRAMUnsupportedMechanism(t *testing.T) {
	if _, err := newSCRAMClient("SCRAM-SHA-1", "pencil", nil); err == nil {
		t.Fatal("expected error for an unsupported mechanism")
	}
}

func withoutProof(clientFinal string) string {
	idx := strings.LastIndex(clientFinal, ",p=")
	if idx < 0 {
		return clientFinal
	}
	return clientFinal[:idx]
}

func extractProof(t *testing.T, clientFinal string) []byte {
	t.Helper()
	idx := strings.LastIndex(clientFinal, ",p=")
	if idx < 0 {
		t.Fatalf("client-final message has no proof: %q", clientFinal)
	}
	proof, err := base64.StdEncoding.DecodeString(clientFinal[idx+3:])
	if err != nil {
		t.Fatalf("decoding proof: %v", err)
	}
	return proof
}

func itoaTest(n int) string {
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
