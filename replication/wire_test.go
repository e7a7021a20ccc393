package replication

import (
	"encoding/binary"
	"testing"

	"github.com/ha1tch/pgflow/pgtype"
)

func TestDecodeCopyDataKeepalive(t *testing.T) {
	payload := make([]byte, 18)
	payload[0] = copyTagKeepalive
	binary.BigEndian.PutUint64(payload[1:9], 0x1234)
	binary.BigEndian.PutUint64(payload[9:17], 99999)
	payload[17] = 1

	ka, wal, err := DecodeCopyData(payload)
	if err != nil {
		t.Fatalf("DecodeCopyData: %v", err)
	}
	if wal != nil {
		t.Fatal("expected wal to be nil for a keepalive")
	}
	if ka.ServerWALEnd != pgtype.LSN(0x1234) {
		t.Errorf("ServerWALEnd = %d, want 0x1234", ka.ServerWALEnd)
	}
	if ka.ServerTime != 99999 {
		t.Errorf("ServerTime = %d, want 99999", ka.ServerTime)
	}
	if !ka.ReplyASAP {
		t.Error("ReplyASAP = false, want true")
	}
}

func TestDecodeCopyDataXLogData(t *testing.T) {
	body := []byte("pgoutput bytes here")
	payload := make([]byte, 25+len(body))
	payload[0] = copyTagXLogData
	binary.BigEndian.PutUint64(payload[1:9], 100)
	binary.BigEndian.PutUint64(payload[9:17], 200)
	binary.BigEndian.PutUint64(payload[17:25], 300)
	copy(payload[25:], body)

	ka, wal, err := DecodeCopyData(payload)
	if err != nil {
		t.Fatalf("DecodeCopyData: %v", err)
	}
	if ka != nil {
		t.Fatal("expected ka to be nil for XLogData")
	}
	if wal.StartLSN != 100 || wal.EndLSN != 200 || wal.ServerTime != 300 {
		t.Errorf("wal = %+v", wal)
	}
	if string(wal.Data) != string(body) {
		t.Errorf("wal.Data = %q, want %q", wal.Data, body)
	}
}

func TestDecodeCopyDataUnknownTag(t *testing.T) {
	if _, _, err := DecodeCopyData([]byte{'Z'}); err == nil {
		t.Fatal("expected an error for an unrecognized CopyData tag")
	}
}

func TestDecodeCopyDataEmpty(t *testing.T) {
	if _, _, err := DecodeCopyData(nil); err == nil {
		t.Fatal("expected an error for an empty payload")
	}
}

func TestEncodeStandbyStatusUpdate(t *testing.T) {
	buf := EncodeStandbyStatusUpdate(pgtype.LSN(10), pgtype.LSN(20), pgtype.LSN(30), 42, true)
	if len(buf) != 34 {
		t.Fatalf("len = %d, want 34", len(buf))
	}
	if buf[0] != copyTagStandby {
		t.Errorf("tag = %q, want 'r'", buf[0])
	}
	if got := binary.BigEndian.Uint64(buf[1:9]); got != 10 {
		t.Errorf("written = %d, want 10", got)
	}
	if got := binary.BigEndian.Uint64(buf[9:17]); got != 20 {
		t.Errorf("flushed = %d, want 20", got)
	}
	if got := binary.BigEndian.Uint64(buf[17:25]); got != 30 {
		t.Errorf("applied = %d, want 30", got)
	}
	if got := int64(binary.BigEndian.Uint64(buf[25:33])); got != 42 {
		t.Errorf("clock = %d, want 42", got)
	}
	if buf[33] != 1 {
		t.Error("replyASAP byte not set")
	}
}

func TestNowPGEpochMicros(t *testing.T) {
	// 2000-01-02 00:00:00 UTC is exactly one day after the PG epoch.
	unixMicrosOfPGEpochPlusOneDay := int64(946684800000000) + int64(86400000000)
	if got := NowPGEpochMicros(unixMicrosOfPGEpochPlusOneDay); got != 86400000000 {
		t.Errorf("NowPGEpochMicros = %d, want 86400000000", got)
	}
}
