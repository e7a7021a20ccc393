package pgtype

import (
	"encoding/binary"

	"github.com/ha1tch/pgflow/pgerr"
)

// Range flag bits, per spec.md §4.2.
const (
	rangeFlagEmpty         = 1 << 0
	rangeFlagLowerInc      = 1 << 1
	rangeFlagUpperInc      = 1 << 2
	rangeFlagLowerInf      = 1 << 3
	rangeFlagUpperInf      = 1 << 4
	rangeFlagContainsEmpty = 1 << 7
)

// rangeElemOID maps a range OID to the OID of its bound type.
var rangeElemOID = map[OID]OID{
	OIDInt4Range: OIDInt4,
	OIDNumRange:  OIDNumeric,
	OIDTSRange:   OIDTimestamp,
	OIDTSTZRange: OIDTimestamptz,
	OIDDateRange: OIDDate,
	OIDInt8Range: OIDInt8,
}

func (r *DecoderRegistry) encodeRange(rangeOID OID, rg Range) ([]byte, error) {
	var flags byte
	if rg.Empty {
		flags |= rangeFlagEmpty
	}
	if rg.LowerInclusive {
		flags |= rangeFlagLowerInc
	}
	if rg.UpperInclusive {
		flags |= rangeFlagUpperInc
	}
	if rg.LowerInfinite {
		flags |= rangeFlagLowerInf
	}
	if rg.UpperInfinite {
		flags |= rangeFlagUpperInf
	}

	buf := []byte{flags}
	if rg.Empty {
		return buf, nil
	}
	if !rg.LowerInfinite && rg.Lower != nil {
		_, b, err := r.Encode(*rg.Lower)
		if err != nil {
			return nil, err
		}
		lenBuf := make([]byte, 4)
		binary.BigEndian.PutUint32(lenBuf, uint32(len(b)))
		buf = append(buf, lenBuf...)
		buf = append(buf, b...)
	}
	if !rg.UpperInfinite && rg.Upper != nil {
		_, b, err := r.Encode(*rg.Upper)
		if err != nil {
			return nil, err
		}
		lenBuf := make([]byte, 4)
		binary.BigEndian.PutUint32(lenBuf, uint32(len(b)))
		buf = append(buf, lenBuf...)
		buf = append(buf, b...)
	}
	return buf, nil
}

func (r *DecoderRegistry) decodeRange(rangeOID OID, b []byte) (Value, error) {
	if len(b) < 1 {
		return Value{}, pgerr.New(pgerr.Fault, "pgtype.decodeRange", "empty range payload")
	}
	flags := b[0]
	rg := Range{
		Empty:          flags&rangeFlagEmpty != 0,
		LowerInclusive: flags&rangeFlagLowerInc != 0,
		UpperInclusive: flags&rangeFlagUpperInc != 0,
		LowerInfinite:  flags&rangeFlagLowerInf != 0,
		UpperInfinite:  flags&rangeFlagUpperInf != 0,
	}
	if rg.Empty {
		return Value{Kind: KindRange, Range: rg}, nil
	}

	elemOID, ok := rangeElemOID[rangeOID]
	if !ok {
		return Value{}, pgerr.Newf(pgerr.Unsupported, "pgtype.decodeRange", "unknown range oid %d", rangeOID)
	}

	off := 1
	if !rg.LowerInfinite {
		v, n, err := r.decodeLengthPrefixed(elemOID, b, off)
		if err != nil {
			return Value{}, err
		}
		rg.Lower = &v
		off = n
	}
	if !rg.UpperInfinite {
		v, n, err := r.decodeLengthPrefixed(elemOID, b, off)
		if err != nil {
			return Value{}, err
		}
		rg.Upper = &v
		off = n
	}
	return Value{Kind: KindRange, Range: rg}, nil
}

func (r *DecoderRegistry) decodeLengthPrefixed(oid OID, b []byte, off int) (Value, int, error) {
	if len(b) < off+4 {
		return Value{}, 0, pgerr.New(pgerr.Fault, "pgtype.decodeRange", "truncated bound length")
	}
	n := int32(binary.BigEndian.Uint32(b[off:]))
	off += 4
	if n < 0 {
		return Null, off, nil
	}
	if len(b) < off+int(n) {
		return Value{}, 0, pgerr.New(pgerr.Fault, "pgtype.decodeRange", "truncated bound value")
	}
	v, err := r.Decode(oid, b[off:off+int(n)])
	return v, off + int(n), err
}
