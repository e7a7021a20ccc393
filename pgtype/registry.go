package pgtype

import (
	"sync"

	"github.com/ha1tch/pgflow/pgerr"
)

// UnknownDataTypeError is returned by Decode when no decoder is registered
// for an OID. Callers (the data-row layer, per spec.md §4.2) recover by
// querying pg_type and calling InstallAlias, then retrying exactly once.
type UnknownDataTypeError struct {
	OID OID
}

func (e *UnknownDataTypeError) Error() string {
	return pgerr.Newf(pgerr.Unsupported, "pgtype.Decode", "unknown data type oid %d", e.OID).Error()
}

// AliasKind describes how a runtime-discovered type should be decoded,
// taken from pg_type.typtype.
type AliasKind byte

const (
	// AliasComposite decodes as a record (typtype = 'c').
	AliasComposite AliasKind = 'c'
	// AliasEnum decodes as text (typtype = 'e').
	AliasEnum AliasKind = 'e'
	// AliasDomain/base installs the decoder of typbasetype.
	AliasBase AliasKind = 'b'
)

// DecoderRegistry is an OID -> codec-pair registry, owned by each
// connection-bearing client (sqlclient.Client, replication.Subscriber)
// rather than being process-global state. install/read are safe for
// concurrent use: writes take the exclusive lock and every read takes the
// shared read lock; reads are not lock-free.
type DecoderRegistry struct {
	mu      sync.RWMutex
	aliases map[OID]OID // unknown OID -> OID whose codec to use instead
}

// NewDecoderRegistry returns a registry with only the built-in OIDs of
// spec.md §4.2 known; no aliases installed.
func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{aliases: make(map[OID]OID)}
}

// InstallAlias registers oid to be encoded/decoded using the codec for
// target (typbasetype for AliasBase, or the fixed record/text OID for
// AliasComposite/AliasEnum per spec.md §4.2).
func (r *DecoderRegistry) InstallAlias(oid OID, target OID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[oid] = target
}

// AliasTarget resolves a runtime AliasKind + typbasetype into the OID whose
// codec should be installed for oid.
func AliasTarget(kind AliasKind, typbasetype OID) OID {
	switch kind {
	case AliasComposite:
		return OIDRecord
	case AliasEnum:
		return OIDText
	default:
		return typbasetype
	}
}

func (r *DecoderRegistry) resolve(oid OID) OID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if target, ok := r.aliases[oid]; ok {
		return target
	}
	return oid
}

// Encode maps an application Value to (OID, bytes). NULL values are never
// passed here -- the bind layer encodes NULL itself as a -1 length prefix
// (spec.md §4.2).
func (r *DecoderRegistry) Encode(v Value) (OID, []byte, error) {
	if v.IsNull() {
		return 0, nil, pgerr.New(pgerr.Incorrect, "pgtype.Encode", "cannot encode NULL directly; caller must encode length -1")
	}

	if oid, b, ok, err := encodeScalar(v); ok {
		return oid, b, err
	}

	switch v.Kind {
	case KindNumeric:
		b, err := encodeNumeric(v.Numeric)
		return OIDNumeric, b, err
	case KindArray:
		return r.encodeArray(v.Array)
	case KindRange:
		return 0, nil, pgerr.New(pgerr.Incorrect, "pgtype.Encode", "range values must be encoded with EncodeRange (need target OID)")
	}

	return 0, nil, pgerr.Newf(pgerr.Incorrect, "pgtype.Encode", "unsupported value kind %d", v.Kind)
}

// EncodeRange encodes a range Value for a specific range OID (int4range,
// numrange, tsrange, tstzrange, daterange, int8range); the range OID can't
// be inferred from Kind alone since it depends on the bound type.
func (r *DecoderRegistry) EncodeRange(rangeOID OID, v Value) (OID, []byte, error) {
	if v.Kind != KindRange {
		return 0, nil, pgerr.New(pgerr.Incorrect, "pgtype.EncodeRange", "value is not a range")
	}
	b, err := r.encodeRange(rangeOID, v.Range)
	return rangeOID, b, err
}

// Decode maps (OID, bytes) to an application Value. On an unregistered
// OID it returns *UnknownDataTypeError, which the data-row layer recovers
// from per spec.md §4.2.
func (r *DecoderRegistry) Decode(oid OID, b []byte) (Value, error) {
	resolved := r.resolve(oid)

	if v, ok, err := decodeScalar(resolved, b); ok {
		return v, err
	}

	if resolved == OIDNumeric {
		d, err := decodeNumeric(b)
		return Value{Kind: KindNumeric, Numeric: d}, err
	}

	if elemOID, ok := ElementOIDOf(resolved); ok {
		_ = elemOID
		return r.decodeArray(resolved, b)
	}

	if _, ok := rangeElemOID[resolved]; ok {
		return r.decodeRange(resolved, b)
	}

	if resolved == OIDRecord {
		return r.decodeRecord(b)
	}

	return Value{}, &UnknownDataTypeError{OID: oid}
}

func (r *DecoderRegistry) decodeRecord(b []byte) (Value, error) {
	if len(b) < 4 {
		return Value{}, pgerr.New(pgerr.Fault, "pgtype.decodeRecord", "short record payload")
	}
	n := int(int32(beUint32(b[0:4])))
	off := 4
	fields := make([]Value, 0, n)
	for i := 0; i < n; i++ {
		if len(b) < off+8 {
			return Value{}, pgerr.New(pgerr.Fault, "pgtype.decodeRecord", "truncated record field header")
		}
		fieldOID := OID(beUint32(b[off : off+4]))
		flen := int32(beUint32(b[off+4 : off+8]))
		off += 8
		if flen < 0 {
			fields = append(fields, Null)
			continue
		}
		if len(b) < off+int(flen) {
			return Value{}, pgerr.New(pgerr.Fault, "pgtype.decodeRecord", "truncated record field value")
		}
		v, err := r.Decode(fieldOID, b[off:off+int(flen)])
		if err != nil {
			return Value{}, err
		}
		fields = append(fields, v)
		off += int(flen)
	}
	return Value{Kind: KindRecord, Record: fields}, nil
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
