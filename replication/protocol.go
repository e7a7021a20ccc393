package replication

import (
	"strings"

	"github.com/ha1tch/pgflow/pgtype"
)

// Streaming is the subscriber's streaming-transaction mode (spec.md §6.4).
type Streaming string

const (
	StreamingOff      Streaming = "off"
	StreamingOn       Streaming = "on"
	StreamingParallel Streaming = "parallel"
)

// quotedIdent double-quotes a SQL identifier, escaping embedded quotes.
func quotedIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// quotedPublicationNames double-quotes and comma-joins publication names,
// following pg_recvlogical's convention (spec.md SUPPLEMENTED FEATURES)
// rather than the distilled spec's unquoted CSV.
func quotedPublicationNames(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quotedIdent(n)
	}
	return strings.Join(quoted, ",")
}

// buildStartReplication constructs the START_REPLICATION command text of
// spec.md §4.6, always including the `messages` option (SUPPLEMENTED
// FEATURES) so logical decoding messages are delivered whenever asked.
func buildStartReplication(slot string, startLSN pgtype.LSN, protocolVersion int, publications []string, streaming Streaming, messages bool) string {
	var b strings.Builder
	b.WriteString("START_REPLICATION SLOT ")
	b.WriteString(quotedIdent(slot))
	b.WriteString(" LOGICAL ")
	b.WriteString(startLSN.String())
	b.WriteString(" (proto_version '")
	b.WriteString(itoa(protocolVersion))
	b.WriteString("', publication_names '")
	b.WriteString(quotedPublicationNames(publications))
	b.WriteString("', streaming '")
	if streaming == "" {
		streaming = StreamingOff
	}
	b.WriteString(streamingWireValue(streaming, protocolVersion))
	b.WriteString("', binary 'true', messages '")
	if messages {
		b.WriteString("true")
	} else {
		b.WriteString("false")
	}
	b.WriteString("')")
	return b.String()
}

// streamingWireValue renders Streaming for the wire: protocol versions
// before 4 only understand 'on'/'off', so 'parallel' degrades to 'on'.
func streamingWireValue(s Streaming, protocolVersion int) string {
	if s == StreamingParallel && protocolVersion < 4 {
		return "on"
	}
	return string(s)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
