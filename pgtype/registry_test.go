package pgtype

import "testing"

func TestRegistryEncodeDecodeRoundTrip(t *testing.T) {
	r := NewDecoderRegistry()

	cases := []Value{
		Bool(true),
		Bool(false),
		Int4(42),
		Int8(-9223372036854775808),
		Text("hello, world"),
		Bytes([]byte{0x01, 0x02, 0xFF}),
	}

	for _, v := range cases {
		oid, enc, err := r.Encode(v)
		if err != nil {
			t.Fatalf("Encode(%+v): %v", v, err)
		}
		dec, err := r.Decode(oid, enc)
		if err != nil {
			t.Fatalf("Decode(oid=%d): %v", oid, err)
		}
		if dec.Kind != v.Kind {
			t.Errorf("round trip kind mismatch: got %v, want %v", dec.Kind, v.Kind)
		}
		switch v.Kind {
		case KindBool:
			if dec.Bool != v.Bool {
				t.Errorf("bool round trip: got %v, want %v", dec.Bool, v.Bool)
			}
		case KindInt4, KindInt8:
			if dec.Int != v.Int {
				t.Errorf("int round trip: got %d, want %d", dec.Int, v.Int)
			}
		case KindText:
			if dec.Text != v.Text {
				t.Errorf("text round trip: got %q, want %q", dec.Text, v.Text)
			}
		case KindBytes:
			if string(dec.Bytes) != string(v.Bytes) {
				t.Errorf("bytes round trip: got %v, want %v", dec.Bytes, v.Bytes)
			}
		}
	}
}

func TestUnknownDataTypeError(t *testing.T) {
	r := NewDecoderRegistry()
	_, err := r.Decode(OID(999999), []byte{1, 2, 3})
	if err == nil {
		t.Fatal("expected UnknownDataTypeError, got nil")
	}
	unk, ok := err.(*UnknownDataTypeError)
	if !ok {
		t.Fatalf("expected *UnknownDataTypeError, got %T", err)
	}
	if unk.OID != OID(999999) {
		t.Errorf("UnknownDataTypeError.OID = %d, want 999999", unk.OID)
	}
}

func TestInstallAliasRedecode(t *testing.T) {
	r := NewDecoderRegistry()
	const domainOID OID = 999999

	if _, err := r.Decode(domainOID, []byte{0}); err == nil {
		t.Fatal("expected failure before alias install")
	}

	r.InstallAlias(domainOID, OIDBool)
	oid, enc, err := r.Encode(Bool(true))
	if err != nil {
		t.Fatalf("Encode(true): %v", err)
	}
	if oid != OIDBool {
		t.Fatalf("Encode(true) oid = %d, want OIDBool", oid)
	}

	dec, err := r.Decode(domainOID, enc)
	if err != nil {
		t.Fatalf("Decode(domainOID) after alias install: %v", err)
	}
	if dec.Kind != KindBool || dec.Bool != true {
		t.Errorf("decoded %+v, want Bool(true)", dec)
	}
}
