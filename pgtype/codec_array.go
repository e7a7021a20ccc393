package pgtype

import (
	"encoding/binary"

	"github.com/ha1tch/pgflow/pgerr"
)

// encodeArray encodes a one-dimensional array per spec.md §4.2:
// {ndim, has_nulls, element_oid, dim_len, lower_bound} then per-element
// {len, bytes} (len=-1 for a NULL element).
func (r *DecoderRegistry) encodeArray(elems []Value) (OID, []byte, error) {
	var elemOID OID
	for _, e := range elems {
		if e.IsNull() {
			continue
		}
		oid, _, err := r.Encode(e)
		if err != nil {
			return 0, nil, err
		}
		elemOID = oid
		break
	}
	if elemOID == 0 {
		// All-NULL or empty array; fall back to text, matching PostgreSQL's
		// own handling of untyped empty arrays.
		elemOID = OIDText
	}

	arrayOID, ok := ArrayOIDOf(elemOID)
	if !ok {
		return 0, nil, pgerr.Newf(pgerr.Unsupported, "pgtype.encodeArray", "no array oid registered for element oid %d", elemOID)
	}

	hasNulls := int32(0)
	for _, e := range elems {
		if e.IsNull() {
			hasNulls = 1
			break
		}
	}

	buf := make([]byte, 20)
	binary.BigEndian.PutUint32(buf[0:], 1) // ndim
	binary.BigEndian.PutUint32(buf[4:], uint32(hasNulls))
	binary.BigEndian.PutUint32(buf[8:], uint32(elemOID))
	binary.BigEndian.PutUint32(buf[12:], uint32(len(elems)))
	binary.BigEndian.PutUint32(buf[16:], 1) // lower bound

	for _, e := range elems {
		if e.IsNull() {
			lenBuf := make([]byte, 4)
			binary.BigEndian.PutUint32(lenBuf, 0xFFFFFFFF) // -1
			buf = append(buf, lenBuf...)
			continue
		}
		_, eb, err := r.Encode(e)
		if err != nil {
			return 0, nil, err
		}
		lenBuf := make([]byte, 4)
		binary.BigEndian.PutUint32(lenBuf, uint32(len(eb)))
		buf = append(buf, lenBuf...)
		buf = append(buf, eb...)
	}

	return arrayOID, buf, nil
}

// decodeArray decodes a one-dimensional (or flattened multi-dimensional)
// array payload, decoding each element with the given element OID via r.
func (r *DecoderRegistry) decodeArray(arrayOID OID, b []byte) (Value, error) {
	if len(b) < 12 {
		return Value{}, pgerr.New(pgerr.Fault, "pgtype.decodeArray", "short array header")
	}
	ndim := int32(binary.BigEndian.Uint32(b[0:]))
	off := 12 // past ndim, has_nulls, element_oid; elements decode with the header's element_oid
	elemOID := OID(binary.BigEndian.Uint32(b[8:]))

	if ndim == 0 {
		return Value{Kind: KindArray, Array: nil}, nil
	}

	total := 1
	dims := make([]int32, ndim)
	for d := int32(0); d < ndim; d++ {
		if len(b) < off+8 {
			return Value{}, pgerr.New(pgerr.Fault, "pgtype.decodeArray", "truncated array dimension")
		}
		dimLen := int32(binary.BigEndian.Uint32(b[off:]))
		dims[d] = dimLen
		off += 8 // dim_len + lower_bound
		total *= int(dimLen)
	}

	elems := make([]Value, 0, total)
	for i := 0; i < total; i++ {
		if len(b) < off+4 {
			return Value{}, pgerr.New(pgerr.Fault, "pgtype.decodeArray", "truncated array element length")
		}
		n := int32(binary.BigEndian.Uint32(b[off:]))
		off += 4
		if n < 0 {
			elems = append(elems, Null)
			continue
		}
		if len(b) < off+int(n) {
			return Value{}, pgerr.New(pgerr.Fault, "pgtype.decodeArray", "truncated array element")
		}
		v, err := r.Decode(elemOID, b[off:off+int(n)])
		if err != nil {
			return Value{}, err
		}
		elems = append(elems, v)
		off += int(n)
	}

	return Value{Kind: KindArray, Array: elems}, nil
}
