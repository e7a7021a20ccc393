// Package replication implements the logical-decoding subscriber (C6):
// START_REPLICATION session setup, the pgoutput message decoder, the
// relation/type cache, the replication state machine, and the LSN
// flusher. It generalizes the reader/dispatcher shape of the teacher's
// TDS token-stream loop (tds/token.go) to Postgres's CopyBoth replication
// stream.
package replication

import (
	"encoding/binary"

	"github.com/ha1tch/pgflow/pgerr"
	"github.com/ha1tch/pgflow/pgtype"
)

// copyData payload leading bytes, per the streaming replication protocol.
const (
	copyTagXLogData  = 'w'
	copyTagKeepalive = 'k'
	copyTagStandby   = 'r'
)

// PrimaryKeepAlive is a decoded 'k' CopyData payload.
type PrimaryKeepAlive struct {
	ServerWALEnd pgtype.LSN
	ServerTime   int64 // microseconds since 2000-01-01 UTC
	ReplyASAP    bool
}

// WalData is a decoded 'w' CopyData payload: the pgoutput section still
// needs decoding by DecodeMessage.
type WalData struct {
	StartLSN   pgtype.LSN
	EndLSN     pgtype.LSN
	ServerTime int64
	Data       []byte
}

// DecodeCopyData classifies a CopyData payload into a keepalive or WAL
// data frame.
func DecodeCopyData(payload []byte) (ka *PrimaryKeepAlive, wal *WalData, err error) {
	if len(payload) < 1 {
		return nil, nil, pgerr.New(pgerr.Fault, "replication.DecodeCopyData", "empty CopyData payload")
	}
	switch payload[0] {
	case copyTagKeepalive:
		if len(payload) < 18 {
			return nil, nil, pgerr.New(pgerr.Fault, "replication.DecodeCopyData", "short keepalive payload")
		}
		return &PrimaryKeepAlive{
			ServerWALEnd: pgtype.LSN(binary.BigEndian.Uint64(payload[1:9])),
			ServerTime:   int64(binary.BigEndian.Uint64(payload[9:17])),
			ReplyASAP:    payload[17] != 0,
		}, nil, nil
	case copyTagXLogData:
		if len(payload) < 25 {
			return nil, nil, pgerr.New(pgerr.Fault, "replication.DecodeCopyData", "short XLogData payload")
		}
		return nil, &WalData{
			StartLSN:   pgtype.LSN(binary.BigEndian.Uint64(payload[1:9])),
			EndLSN:     pgtype.LSN(binary.BigEndian.Uint64(payload[9:17])),
			ServerTime: int64(binary.BigEndian.Uint64(payload[17:25])),
			Data:       payload[25:],
		}, nil
	default:
		return nil, nil, pgerr.Newf(pgerr.Unsupported, "replication.DecodeCopyData", "unknown CopyData tag %q", payload[0])
	}
}

// EncodeStandbyStatusUpdate builds the CopyData payload the client sends
// back to acknowledge progress.
func EncodeStandbyStatusUpdate(written, flushed, applied pgtype.LSN, clockMicros int64, replyASAP bool) []byte {
	buf := make([]byte, 34)
	buf[0] = copyTagStandby
	binary.BigEndian.PutUint64(buf[1:9], uint64(written))
	binary.BigEndian.PutUint64(buf[9:17], uint64(flushed))
	binary.BigEndian.PutUint64(buf[17:25], uint64(applied))
	binary.BigEndian.PutUint64(buf[25:33], uint64(clockMicros))
	if replyASAP {
		buf[33] = 1
	}
	return buf
}

// pgEpochMicros is the number of microseconds between the Unix epoch and
// the PostgreSQL epoch (2000-01-01 UTC), used to compute the "system
// clock" field the protocol wants.
const pgEpochMicros = 946684800000000

// NowPGEpochMicros converts a Unix-epoch microsecond timestamp (the
// caller's clock read) into PostgreSQL-epoch microseconds.
func NowPGEpochMicros(unixMicros int64) int64 {
	return unixMicros - pgEpochMicros
}
