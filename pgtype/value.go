package pgtype

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind tags the concrete representation held by a Value. Using a closed
// tagged union here (instead of protocol-style dispatch on interface{})
// is the re-architecture §9 of the spec calls for: encode(value) -> (oid,
// bytes) becomes a single switch over Kind rather than a method lookup
// per application type.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt2
	KindInt4
	KindInt8
	KindFloat4
	KindFloat8
	KindText
	KindBytes
	KindUUID
	KindDate
	KindTime
	KindTimetz
	KindTimestamp
	KindTimestamptz
	KindInterval
	KindNumeric
	KindMoney
	KindInet
	KindPoint
	KindLseg
	KindPath
	KindBox
	KindPolygon
	KindLine
	KindCircle
	KindJSON
	KindJSONB
	KindTSVector
	KindPgLSN
	KindRange
	KindArray
	KindRecord

	// KindUnchangedTOAST marks a TOASTed column the server omitted from a
	// pgoutput tuple because it didn't change (spec.md §4.6's 'u' column
	// kind). It is distinct from KindNull: the column has a value, the
	// source just isn't telling us what it is.
	KindUnchangedTOAST
)

// Interval is a PostgreSQL interval: microseconds + days + months, kept
// separate because they don't commute (a month is not a fixed number of
// days).
type Interval struct {
	Micros int64
	Days   int32
	Months int32
}

// Timetz is time-of-day with a UTC offset in seconds (east positive, as
// PostgreSQL reports it, though the wire format sign-inverts it -- see
// codec_time.go).
type Timetz struct {
	Micros       int64
	OffsetSecsE  int32
}

// Inet is an address/netmask pair as sent by PostgreSQL's inet/cidr codec.
type Inet struct {
	IsCIDR  bool
	Family  uint8 // 2 = IPv4, 3 = IPv6 (PostgreSQL's own constants)
	Bits    uint8
	Address []byte // 4 or 16 bytes
}

// Point, Lseg, Path, Box, Polygon, Line, Circle are PostgreSQL's geometric
// types, decoded to plain float64 coordinate structs.
type Point struct{ X, Y float64 }
type Lseg struct{ P1, P2 Point }
type Box struct{ High, Low Point }
type Path struct {
	Closed bool
	Points []Point
}
type Polygon struct{ Points []Point }
type Line struct{ A, B, C float64 }
type Circle struct {
	Center Point
	Radius float64
}

// Range is a generic PostgreSQL range value over any bound Kind
// (int4range, numrange, tsrange, tstzrange, daterange, int8range).
type Range struct {
	Empty          bool
	LowerInclusive bool
	UpperInclusive bool
	LowerInfinite  bool
	UpperInfinite  bool
	Lower          *Value
	Upper          *Value
}

// Value is the tagged union of every application-level value this package
// can encode to, or decode from, PostgreSQL's binary wire format.
type Value struct {
	Kind Kind

	Bool    bool
	Int     int64
	Float   float64
	Text    string
	Bytes   []byte
	UUID    [16]byte
	Time    time.Time
	Timetz  Timetz
	Interval Interval
	Numeric decimal.Decimal
	Inet    Inet
	Point   Point
	Lseg    Lseg
	Path    Path
	Box     Box
	Polygon Polygon
	Line    Line
	Circle  Circle
	Range   Range
	Array   []Value
	Record  []Value
}

// Null is the canonical NULL value.
var Null = Value{Kind: KindNull}

// UnchangedTOAST is the sentinel for a pgoutput 'u' tuple column: a
// TOASTed datum the server didn't send because it's unchanged from the
// previous row version. Distinct from Null so callers can tell "no value
// was supplied" apart from "the value is SQL NULL".
var UnchangedTOAST = Value{Kind: KindUnchangedTOAST}

func Bool(v bool) Value  { return Value{Kind: KindBool, Bool: v} }
func Int2(v int16) Value { return Value{Kind: KindInt2, Int: int64(v)} }
func Int4(v int32) Value { return Value{Kind: KindInt4, Int: int64(v)} }
func Int8(v int64) Value { return Value{Kind: KindInt8, Int: v} }
func Float4(v float32) Value {
	return Value{Kind: KindFloat4, Float: float64(v)}
}
func Float8(v float64) Value { return Value{Kind: KindFloat8, Float: v} }
func Text(v string) Value    { return Value{Kind: KindText, Text: v} }
func Bytes(v []byte) Value   { return Value{Kind: KindBytes, Bytes: v} }

// IsNull reports whether v represents SQL NULL.
func (v Value) IsNull() bool { return v.Kind == KindNull }
