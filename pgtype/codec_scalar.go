package pgtype

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ha1tch/pgflow/pgerr"
)

// encodeScalar encodes the non-numeric, non-array, non-range built-in
// scalar kinds. Returns (oid, bytes, ok) where ok is false when v's Kind
// isn't handled here (caller falls through to numeric/array/range).
func encodeScalar(v Value) (OID, []byte, bool, error) {
	switch v.Kind {
	case KindBool:
		b := byte(0)
		if v.Bool {
			b = 1
		}
		return OIDBool, []byte{b}, true, nil

	case KindInt2:
		buf := make([]byte, 2)
		binary.BigEndian.PutUint16(buf, uint16(int16(v.Int)))
		return OIDInt2, buf, true, nil

	case KindInt4:
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(int32(v.Int)))
		return OIDInt4, buf, true, nil

	case KindInt8:
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(v.Int))
		return OIDInt8, buf, true, nil

	case KindFloat4:
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, math.Float32bits(float32(v.Float)))
		return OIDFloat4, buf, true, nil

	case KindFloat8:
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, math.Float64bits(v.Float))
		return OIDFloat8, buf, true, nil

	case KindText:
		return OIDText, []byte(v.Text), true, nil

	case KindBytes:
		return OIDBytea, v.Bytes, true, nil

	case KindUUID:
		buf := make([]byte, 16)
		copy(buf, v.UUID[:])
		return OIDUUID, buf, true, nil

	case KindMoney:
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(v.Int))
		return OIDMoney, buf, true, nil

	case KindInet:
		return OIDInet, encodeInet(v.Inet), true, nil

	case KindPoint:
		return OIDPoint, encodePoint(v.Point), true, nil

	case KindLseg:
		buf := make([]byte, 0, 32)
		buf = append(buf, encodePoint(v.Lseg.P1)...)
		buf = append(buf, encodePoint(v.Lseg.P2)...)
		return OIDLseg, buf, true, nil

	case KindBox:
		buf := make([]byte, 0, 32)
		buf = append(buf, encodePoint(v.Box.High)...)
		buf = append(buf, encodePoint(v.Box.Low)...)
		return OIDBox, buf, true, nil

	case KindPath:
		buf := make([]byte, 1+4)
		if v.Path.Closed {
			buf[0] = 1
		}
		binary.BigEndian.PutUint32(buf[1:], uint32(len(v.Path.Points)))
		for _, p := range v.Path.Points {
			buf = append(buf, encodePoint(p)...)
		}
		return OIDPath, buf, true, nil

	case KindPolygon:
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(len(v.Polygon.Points)))
		for _, p := range v.Polygon.Points {
			buf = append(buf, encodePoint(p)...)
		}
		return OIDPolygon, buf, true, nil

	case KindLine:
		buf := make([]byte, 24)
		binary.BigEndian.PutUint64(buf[0:], math.Float64bits(v.Line.A))
		binary.BigEndian.PutUint64(buf[8:], math.Float64bits(v.Line.B))
		binary.BigEndian.PutUint64(buf[16:], math.Float64bits(v.Line.C))
		return OIDLine, buf, true, nil

	case KindCircle:
		buf := make([]byte, 24)
		binary.BigEndian.PutUint64(buf[0:], math.Float64bits(v.Circle.Center.X))
		binary.BigEndian.PutUint64(buf[8:], math.Float64bits(v.Circle.Center.Y))
		binary.BigEndian.PutUint64(buf[16:], math.Float64bits(v.Circle.Radius))
		return OIDCircle, buf, true, nil

	case KindJSON:
		return OIDJSON, []byte(v.Text), true, nil

	case KindJSONB:
		buf := make([]byte, 1+len(v.Text))
		buf[0] = 1 // jsonb wire version byte
		copy(buf[1:], v.Text)
		return OIDJSONB, buf, true, nil

	case KindDate:
		days := int32(v.Time.Sub(pgEpoch).Hours() / 24)
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(days))
		return OIDDate, buf, true, nil

	case KindTime:
		micros := timeOfDayMicros(v.Time)
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(micros))
		return OIDTime, buf, true, nil

	case KindTimetz:
		buf := make([]byte, 12)
		binary.BigEndian.PutUint64(buf[0:], uint64(v.Timetz.Micros))
		binary.BigEndian.PutUint32(buf[8:], uint32(-v.Timetz.OffsetSecsE))
		return OIDTimetz, buf, true, nil

	case KindTimestamp, KindTimestamptz:
		micros := encodeTimestampMicros(v.Time)
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(micros))
		if v.Kind == KindTimestamptz {
			return OIDTimestamptz, buf, true, nil
		}
		return OIDTimestamp, buf, true, nil

	case KindInterval:
		buf := make([]byte, 16)
		binary.BigEndian.PutUint64(buf[0:], uint64(v.Interval.Micros))
		binary.BigEndian.PutUint32(buf[8:], uint32(v.Interval.Days))
		binary.BigEndian.PutUint32(buf[12:], uint32(v.Interval.Months))
		return OIDInterval, buf, true, nil

	case KindPgLSN:
		lsn := LSN(v.Int)
		upper, lower := lsn.Split()
		buf := make([]byte, 8)
		binary.BigEndian.PutUint32(buf[0:], upper)
		binary.BigEndian.PutUint32(buf[4:], lower)
		return OIDPgLSN, buf, true, nil

	case KindTSVector:
		return OIDTSVector, encodeTSVector(v.Text), true, nil

	default:
		return 0, nil, false, nil
	}
}

func encodePoint(p Point) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:], math.Float64bits(p.X))
	binary.BigEndian.PutUint64(buf[8:], math.Float64bits(p.Y))
	return buf
}

func decodePoint(b []byte) (Point, error) {
	if len(b) != 16 {
		return Point{}, pgerr.Newf(pgerr.Fault, "pgtype.decodePoint", "want 16 bytes, got %d", len(b))
	}
	return Point{
		X: math.Float64frombits(binary.BigEndian.Uint64(b[0:])),
		Y: math.Float64frombits(binary.BigEndian.Uint64(b[8:])),
	}, nil
}

func encodeInet(in Inet) []byte {
	family := in.Family
	if family == 0 {
		family = 2
		if len(in.Address) == 16 {
			family = 3
		}
	}
	bits := in.Bits
	if bits == 0 {
		bits = uint8(len(in.Address) * 8)
	}
	isCIDR := byte(0)
	if in.IsCIDR {
		isCIDR = 1
	}
	buf := []byte{family, bits, isCIDR, byte(len(in.Address))}
	return append(buf, in.Address...)
}

func decodeInet(b []byte) (Inet, error) {
	if len(b) < 4 {
		return Inet{}, pgerr.Newf(pgerr.Fault, "pgtype.decodeInet", "short inet payload")
	}
	n := int(b[3])
	if len(b) < 4+n {
		return Inet{}, pgerr.Newf(pgerr.Fault, "pgtype.decodeInet", "truncated inet payload")
	}
	addr := make([]byte, n)
	copy(addr, b[4:4+n])
	return Inet{
		Family:  b[0],
		Bits:    b[1],
		IsCIDR:  b[2] != 0,
		Address: addr,
	}, nil
}

// decodeScalar decodes a binary value for a scalar (non-numeric,
// non-array, non-range) OID. Returns ok=false for OIDs it doesn't own.
func decodeScalar(oid OID, b []byte) (Value, bool, error) {
	switch oid {
	case OIDBool:
		return Value{Kind: KindBool, Bool: len(b) > 0 && b[0] != 0}, true, nil

	case OIDChar:
		if len(b) != 1 {
			return Value{}, true, pgerr.New(pgerr.Fault, "pgtype.decodeScalar", "bad char length")
		}
		return Value{Kind: KindText, Text: string(b)}, true, nil

	case OIDInt2:
		if len(b) != 2 {
			return Value{}, true, shortErr(oid, 2, len(b))
		}
		return Value{Kind: KindInt2, Int: int64(int16(binary.BigEndian.Uint16(b)))}, true, nil

	case OIDInt4, OIDOID, OIDXID:
		if len(b) != 4 {
			return Value{}, true, shortErr(oid, 4, len(b))
		}
		v := int64(int32(binary.BigEndian.Uint32(b)))
		if oid != OIDInt4 {
			v = int64(binary.BigEndian.Uint32(b))
		}
		return Value{Kind: KindInt4, Int: v}, true, nil

	case OIDInt8:
		if len(b) != 8 {
			return Value{}, true, shortErr(oid, 8, len(b))
		}
		return Value{Kind: KindInt8, Int: int64(binary.BigEndian.Uint64(b))}, true, nil

	case OIDFloat4:
		if len(b) != 4 {
			return Value{}, true, shortErr(oid, 4, len(b))
		}
		return Value{Kind: KindFloat4, Float: float64(math.Float32frombits(binary.BigEndian.Uint32(b)))}, true, nil

	case OIDFloat8:
		if len(b) != 8 {
			return Value{}, true, shortErr(oid, 8, len(b))
		}
		return Value{Kind: KindFloat8, Float: math.Float64frombits(binary.BigEndian.Uint64(b))}, true, nil

	case OIDText, OIDVarchar, OIDBPChar, OIDName:
		return Value{Kind: KindText, Text: string(b)}, true, nil

	case OIDBytea:
		cp := make([]byte, len(b))
		copy(cp, b)
		return Value{Kind: KindBytes, Bytes: cp}, true, nil

	case OIDUUID:
		if len(b) != 16 {
			return Value{}, true, shortErr(oid, 16, len(b))
		}
		var u [16]byte
		copy(u[:], b)
		return Value{Kind: KindUUID, UUID: u}, true, nil

	case OIDMoney:
		if len(b) != 8 {
			return Value{}, true, shortErr(oid, 8, len(b))
		}
		return Value{Kind: KindMoney, Int: int64(binary.BigEndian.Uint64(b))}, true, nil

	case OIDInet:
		in, err := decodeInet(b)
		return Value{Kind: KindInet, Inet: in}, true, err

	case OIDPoint:
		p, err := decodePoint(b)
		return Value{Kind: KindPoint, Point: p}, true, err

	case OIDLseg:
		if len(b) != 32 {
			return Value{}, true, shortErr(oid, 32, len(b))
		}
		p1, _ := decodePoint(b[0:16])
		p2, _ := decodePoint(b[16:32])
		return Value{Kind: KindLseg, Lseg: Lseg{P1: p1, P2: p2}}, true, nil

	case OIDBox:
		if len(b) != 32 {
			return Value{}, true, shortErr(oid, 32, len(b))
		}
		high, _ := decodePoint(b[0:16])
		low, _ := decodePoint(b[16:32])
		return Value{Kind: KindBox, Box: Box{High: high, Low: low}}, true, nil

	case OIDPath:
		if len(b) < 5 {
			return Value{}, true, pgerr.New(pgerr.Fault, "pgtype.decodeScalar", "short path payload")
		}
		closed := b[0] != 0
		n := int(binary.BigEndian.Uint32(b[1:5]))
		pts := make([]Point, 0, n)
		off := 5
		for i := 0; i < n; i++ {
			p, err := decodePoint(b[off : off+16])
			if err != nil {
				return Value{}, true, err
			}
			pts = append(pts, p)
			off += 16
		}
		return Value{Kind: KindPath, Path: Path{Closed: closed, Points: pts}}, true, nil

	case OIDPolygon:
		if len(b) < 4 {
			return Value{}, true, pgerr.New(pgerr.Fault, "pgtype.decodeScalar", "short polygon payload")
		}
		n := int(binary.BigEndian.Uint32(b[0:4]))
		pts := make([]Point, 0, n)
		off := 4
		for i := 0; i < n; i++ {
			p, err := decodePoint(b[off : off+16])
			if err != nil {
				return Value{}, true, err
			}
			pts = append(pts, p)
			off += 16
		}
		return Value{Kind: KindPolygon, Polygon: Polygon{Points: pts}}, true, nil

	case OIDLine:
		if len(b) != 24 {
			return Value{}, true, shortErr(oid, 24, len(b))
		}
		return Value{Kind: KindLine, Line: Line{
			A: math.Float64frombits(binary.BigEndian.Uint64(b[0:])),
			B: math.Float64frombits(binary.BigEndian.Uint64(b[8:])),
			C: math.Float64frombits(binary.BigEndian.Uint64(b[16:])),
		}}, true, nil

	case OIDCircle:
		if len(b) != 24 {
			return Value{}, true, shortErr(oid, 24, len(b))
		}
		return Value{Kind: KindCircle, Circle: Circle{
			Center: Point{
				X: math.Float64frombits(binary.BigEndian.Uint64(b[0:])),
				Y: math.Float64frombits(binary.BigEndian.Uint64(b[8:])),
			},
			Radius: math.Float64frombits(binary.BigEndian.Uint64(b[16:])),
		}}, true, nil

	case OIDJSON:
		return Value{Kind: KindJSON, Text: string(b)}, true, nil

	case OIDJSONB:
		if len(b) < 1 {
			return Value{}, true, pgerr.New(pgerr.Fault, "pgtype.decodeScalar", "empty jsonb payload")
		}
		return Value{Kind: KindJSONB, Text: string(b[1:])}, true, nil

	case OIDDate:
		if len(b) != 4 {
			return Value{}, true, shortErr(oid, 4, len(b))
		}
		days := int32(binary.BigEndian.Uint32(b))
		return Value{Kind: KindDate, Time: pgEpoch.AddDate(0, 0, int(days))}, true, nil

	case OIDTime:
		if len(b) != 8 {
			return Value{}, true, shortErr(oid, 8, len(b))
		}
		micros := int64(binary.BigEndian.Uint64(b))
		return Value{Kind: KindTime, Time: timeOfDayFromMicros(micros)}, true, nil

	case OIDTimetz:
		if len(b) != 12 {
			return Value{}, true, shortErr(oid, 12, len(b))
		}
		micros := int64(binary.BigEndian.Uint64(b[0:]))
		offset := -int32(binary.BigEndian.Uint32(b[8:]))
		return Value{Kind: KindTimetz, Timetz: Timetz{Micros: micros, OffsetSecsE: offset}}, true, nil

	case OIDTimestamp, OIDTimestamptz:
		if len(b) != 8 {
			return Value{}, true, shortErr(oid, 8, len(b))
		}
		micros := int64(binary.BigEndian.Uint64(b))
		t := decodeTimestampMicros(micros)
		k := KindTimestamp
		if oid == OIDTimestamptz {
			k = KindTimestamptz
		}
		return Value{Kind: k, Time: t}, true, nil

	case OIDInterval:
		if len(b) != 16 {
			return Value{}, true, shortErr(oid, 16, len(b))
		}
		return Value{Kind: KindInterval, Interval: Interval{
			Micros: int64(binary.BigEndian.Uint64(b[0:])),
			Days:   int32(binary.BigEndian.Uint32(b[8:])),
			Months: int32(binary.BigEndian.Uint32(b[12:])),
		}}, true, nil

	case OIDPgLSN:
		if len(b) != 8 {
			return Value{}, true, shortErr(oid, 8, len(b))
		}
		upper := binary.BigEndian.Uint32(b[0:])
		lower := binary.BigEndian.Uint32(b[4:])
		lsn := LSN(uint64(upper)<<32 | uint64(lower))
		return Value{Kind: KindPgLSN, Int: int64(lsn)}, true, nil

	case OIDTSVector:
		text, err := decodeTSVector(b)
		return Value{Kind: KindTSVector, Text: text}, true, err

	default:
		return Value{}, false, nil
	}
}

func shortErr(oid OID, want, got int) error {
	return pgerr.Newf(pgerr.Fault, "pgtype.decodeScalar", "oid %d: want %d bytes, got %d", oid, want, got)
}

// timeOfDay is the reference date used to carry a time-of-day value in a
// time.Time (its own date component is meaningless and ignored).
var timeOfDay = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// timeOfDayMicros returns microseconds since midnight for a time.Time used
// purely as a time-of-day carrier.
func timeOfDayMicros(t time.Time) int64 {
	h, m, s := t.Clock()
	micros := int64(h)*3600*microsPerSecond + int64(m)*60*microsPerSecond + int64(s)*microsPerSecond
	return micros + int64(t.Nanosecond())/1000
}

// timeOfDayFromMicros reconstructs a time-of-day time.Time from
// microseconds since midnight.
func timeOfDayFromMicros(micros int64) time.Time {
	return timeOfDay.Add(time.Duration(micros) * time.Microsecond)
}

// encodeTimestampMicros encodes a timestamp as microseconds since the
// PostgreSQL epoch (2000-01-01), translating the documented +/-infinity
// sentinels to PostgreSQL's INT64_MAX/INT64_MIN.
func encodeTimestampMicros(t time.Time) int64 {
	if t.Equal(PosInfinity) {
		return int64Max
	}
	if t.Equal(NegInfinity) {
		return int64Min
	}
	d := t.Sub(pgEpoch)
	return d.Microseconds()
}

// decodeTimestampMicros is the inverse of encodeTimestampMicros.
func decodeTimestampMicros(micros int64) time.Time {
	switch micros {
	case int64Max:
		return PosInfinity
	case int64Min:
		return NegInfinity
	default:
		return pgEpoch.Add(time.Duration(micros) * time.Microsecond)
	}
}

// encodeTSVector encodes a tsvector from its PostgreSQL text
// representation ("lexeme:1,3 other:2").
func encodeTSVector(text string) []byte {
	fields := strings.Fields(text)
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(len(fields)))
	for _, field := range fields {
		lexeme, posStr, hasPos := strings.Cut(field, ":")
		buf = append(buf, []byte(lexeme)...)
		buf = append(buf, 0)

		var positions []uint16
		if hasPos {
			for _, p := range strings.Split(posStr, ",") {
				n, err := strconv.Atoi(p)
				if err == nil {
					positions = append(positions, uint16(n))
				}
			}
		}
		posBuf := make([]byte, 2)
		binary.BigEndian.PutUint16(posBuf, uint16(len(positions)))
		buf = append(buf, posBuf...)
		for _, p := range positions {
			pb := make([]byte, 2)
			binary.BigEndian.PutUint16(pb, p)
			buf = append(buf, pb...)
		}
	}
	return buf
}

// decodeTSVector is the inverse of encodeTSVector.
func decodeTSVector(b []byte) (string, error) {
	if len(b) < 4 {
		return "", pgerr.New(pgerr.Fault, "pgtype.decodeTSVector", "short tsvector payload")
	}
	n := int(binary.BigEndian.Uint32(b))
	off := 4
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		start := off
		for off < len(b) && b[off] != 0 {
			off++
		}
		if off >= len(b) {
			return "", pgerr.New(pgerr.Fault, "pgtype.decodeTSVector", "unterminated lexeme")
		}
		lexeme := string(b[start:off])
		off++ // skip NUL
		if off+2 > len(b) {
			return "", pgerr.New(pgerr.Fault, "pgtype.decodeTSVector", "truncated position count")
		}
		count := int(binary.BigEndian.Uint16(b[off:]))
		off += 2
		positions := make([]string, 0, count)
		for j := 0; j < count; j++ {
			if off+2 > len(b) {
				return "", pgerr.New(pgerr.Fault, "pgtype.decodeTSVector", "truncated position")
			}
			positions = append(positions, strconv.Itoa(int(binary.BigEndian.Uint16(b[off:]))))
			off += 2
		}
		if count > 0 {
			parts = append(parts, lexeme+":"+strings.Join(positions, ","))
		} else {
			parts = append(parts, lexeme)
		}
	}
	return strings.Join(parts, " "), nil
}
