package replication

import (
	"encoding/binary"
	"testing"

	"github.com/ha1tch/pgflow/pgtype"
)

func newTestEntry() *relationEntry {
	return &relationEntry{
		schema: "public",
		table:  "accounts",
		columns: []Column{
			{IsKey: true, Name: "id", TypeOID: pgtype.OIDInt4},
			{Name: "balance", TypeOID: pgtype.OIDInt8},
			{Name: "label", TypeOID: pgtype.OIDText},
		},
	}
}

func TestDecodeRowTextColumnsDecodeAsText(t *testing.T) {
	entry := newTestEntry()
	registry := pgtype.NewDecoderRegistry()

	// pgoutput's 't' tag is the text format (int32 len + UTF-8 bytes,
	// already stripped to raw bytes by decodeTuple): an ASCII "1" here
	// must not be fed to the binary int4 decoder, which expects 4
	// raw bytes and would reject or misread it.
	cols := []TupleColumn{
		{Kind: 't', Value: []byte("1")},
		{Kind: 't', Value: []byte("100")},
		{Kind: 't', Value: []byte("hello")},
	}

	row, err := entry.decodeRow(registry, cols)
	if err != nil {
		t.Fatalf("decodeRow: %v", err)
	}
	if v := row["id"]; v.Kind != pgtype.KindText || v.Text != "1" {
		t.Errorf("id = %+v, want text \"1\"", v)
	}
	if v := row["balance"]; v.Kind != pgtype.KindText || v.Text != "100" {
		t.Errorf("balance = %+v, want text \"100\"", v)
	}
	if v := row["label"]; v.Kind != pgtype.KindText || v.Text != "hello" {
		t.Errorf("label = %+v, want text \"hello\"", v)
	}
}

func TestDecodeRowBinaryColumnsDecodeViaRegistry(t *testing.T) {
	entry := newTestEntry()
	registry := pgtype.NewDecoderRegistry()

	id := make([]byte, 4)
	binary.BigEndian.PutUint32(id, 1)
	balance := make([]byte, 8)
	binary.BigEndian.PutUint64(balance, 100)

	cols := []TupleColumn{
		{Kind: 'b', Value: id},
		{Kind: 'b', Value: balance},
		{Kind: 'b', Value: []byte("hello")},
	}

	row, err := entry.decodeRow(registry, cols)
	if err != nil {
		t.Fatalf("decodeRow: %v", err)
	}
	if v := row["id"]; v.Kind != pgtype.KindInt4 || v.Int != 1 {
		t.Errorf("id = %+v, want int4 1", v)
	}
	if v := row["balance"]; v.Kind != pgtype.KindInt8 || v.Int != 100 {
		t.Errorf("balance = %+v, want int8 100", v)
	}
	if v := row["label"]; v.Kind != pgtype.KindText || v.Text != "hello" {
		t.Errorf("label = %+v, want text \"hello\"", v)
	}
}

func TestDecodeRowNullAndUnchangedToast(t *testing.T) {
	entry := newTestEntry()
	registry := pgtype.NewDecoderRegistry()

	cols := []TupleColumn{
		{Kind: 'n'},
		{Kind: 'u'},
		{Kind: 't', Value: []byte("x")},
	}

	row, err := entry.decodeRow(registry, cols)
	if err != nil {
		t.Fatalf("decodeRow: %v", err)
	}
	if _, ok := row["id"]; ok {
		t.Errorf("id should be omitted for a NULL column, got %+v", row["id"])
	}
	if v, ok := row["balance"]; !ok || v.Kind != pgtype.KindUnchangedTOAST {
		t.Errorf("balance = %+v, want the UnchangedTOAST sentinel", row["balance"])
	}
	if row["balance"] == pgtype.Null {
		t.Error("unchanged-TOAST sentinel must not equal Null")
	}
	if v := row["label"]; v.Kind != pgtype.KindText || v.Text != "x" {
		t.Errorf("label = %+v, want text \"x\"", v)
	}
}

func TestDecodeRowUnknownOIDPropagatesError(t *testing.T) {
	entry := &relationEntry{
		columns: []Column{{Name: "weird", TypeOID: pgtype.OID(999999)}},
	}
	registry := pgtype.NewDecoderRegistry()

	cols := []TupleColumn{{Kind: 'b', Value: []byte{1, 2, 3, 4}}}
	if _, err := entry.decodeRow(registry, cols); err == nil {
		t.Fatal("expected an UnknownDataTypeError for an unregistered OID")
	}
}

func TestRelationCacheUpsertAppliesKeyFn(t *testing.T) {
	cache := newRelationCache(func(col string) string { return "pk_" + col })
	rel := &Relation{
		OID:       1,
		Namespace: "public",
		Name:      "accounts",
		Columns: []Column{
			{IsKey: true, Name: "id", TypeOID: pgtype.OIDInt4},
			{Name: "balance", TypeOID: pgtype.OIDInt8},
		},
	}

	entry := cache.upsert(rel)
	if len(entry.keys) != 1 || entry.keys[0] != "pk_id" {
		t.Errorf("keys = %v, want [pk_id]", entry.keys)
	}

	got, ok := cache.get(1)
	if !ok || got != entry {
		t.Fatal("get did not return the upserted entry")
	}
	if _, ok := cache.get(2); ok {
		t.Fatal("get should miss for an unknown OID")
	}
}
