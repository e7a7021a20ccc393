package replication

import (
	"encoding/binary"
	"time"

	"github.com/ha1tch/pgflow/pgerr"
	"github.com/ha1tch/pgflow/pgtype"
)

// pgoutput sub-message tags, per spec.md §4.6.
const (
	tagBegin        = 'B'
	tagCommit       = 'C'
	tagOrigin       = 'O'
	tagRelation     = 'R'
	tagType         = 'Y'
	tagInsert       = 'I'
	tagUpdate       = 'U'
	tagDelete       = 'D'
	tagTruncate     = 'T'
	tagMessage      = 'M'
	tagStreamStart  = 'S'
	tagStreamStop   = 'E'
	tagStreamCommit = 'c'
	tagStreamAbort  = 'A'
)

// ReplicaIdentity encodes the 'R'elation message's replica identity byte.
type ReplicaIdentity byte

const (
	ReplicaIdentityDefault ReplicaIdentity = 'd'
	ReplicaIdentityNothing ReplicaIdentity = 'n'
	ReplicaIdentityFull    ReplicaIdentity = 'f'
	ReplicaIdentityIndex   ReplicaIdentity = 'i'
)

// Begin is the pgoutput 'B' message.
type Begin struct {
	FinalLSN       pgtype.LSN
	CommitTime     time.Time
	XID            uint32
}

// Commit is the pgoutput 'C' message.
type Commit struct {
	Flags      byte
	CommitLSN  pgtype.LSN
	TxEndLSN   pgtype.LSN
	CommitTime time.Time
}

// Origin is the pgoutput 'O' message.
type Origin struct {
	OriginLSN  pgtype.LSN
	OriginName string
}

// Column describes one attribute of a Relation message.
type Column struct {
	IsKey        bool
	Name         string
	TypeOID      pgtype.OID
	TypeModifier int32
}

// Relation is the pgoutput 'R' message.
type Relation struct {
	OID             uint32
	Namespace       string
	Name            string
	ReplicaIdentity ReplicaIdentity
	Columns         []Column
}

// TypeMessage is the pgoutput 'Y' message.
type TypeMessage struct {
	OID       pgtype.OID
	Namespace string
	Name      string
}

// TupleColumn is one column of tuple data (§4.6): NULL, unchanged-TOASTed,
// text, or binary.
type TupleColumn struct {
	Kind  byte // 'n', 'u', 't', 'b'
	Value []byte
}

// Insert is the pgoutput 'I' message.
type Insert struct {
	RelationOID uint32
	New         []TupleColumn
}

// Update is the pgoutput 'U' message.
type Update struct {
	RelationOID     uint32
	OldKind         byte // 0, 'K' (key only), or 'O' (full old row, replica identity full)
	Old             []TupleColumn
	New             []TupleColumn
}

// Delete is the pgoutput 'D' message.
type Delete struct {
	RelationOID uint32
	OldKind     byte // 'K' or 'O'
	Old         []TupleColumn
}

// Truncate is the pgoutput 'T' message.
type Truncate struct {
	RelationOIDs []uint32
	Cascade      bool
	RestartSeqs  bool
}

// Message is the pgoutput 'M' logical decoding message.
type Message struct {
	Transactional bool
	LSN           pgtype.LSN
	Prefix        string
	Content       []byte
}

// StreamStart is the pgoutput 'S' message (protocol v2 streaming).
type StreamStart struct {
	XID          uint32
	FirstSegment bool
}

// StreamStop is the pgoutput 'E' message.
type StreamStop struct{}

// StreamCommit is the pgoutput 'c' message.
type StreamCommit struct {
	XID        uint32
	Flags      byte
	CommitLSN  pgtype.LSN
	TxEndLSN   pgtype.LSN
	CommitTime time.Time
}

// StreamAbort is the pgoutput 'A' message.
type StreamAbort struct {
	XID      uint32
	SubXID   uint32
	AbortLSN pgtype.LSN
	HasLSN   bool
}

func pgTimeFromMicros(micros int64) time.Time {
	return pgtype.Epoch().Add(time.Duration(micros) * time.Microsecond)
}

// DecodeMessage decodes one pgoutput sub-message from a WalData.Data
// section. protocolVersion controls StreamAbort's trailing LSN/timestamp
// (added in protocol version 4); below 4 they are not read and HasLSN
// stays false.
// inStream is true while decoding messages between a StreamStart and its
// matching StreamStop/StreamCommit/StreamAbort (spec.md §4.6/§7): in that
// window, Relation/Type/Insert/Update/Delete/Truncate/Message messages
// carry an extra leading XID (real pgoutput.c's in_streamed_transaction
// gate) that must be skipped before the rest of the payload lines up.
func DecodeMessage(data []byte, protocolVersion int, inStream bool) (any, error) {
	if len(data) < 1 {
		return nil, pgerr.New(pgerr.Fault, "replication.DecodeMessage", "empty pgoutput message")
	}
	tag := data[0]
	b := data[1:]

	if inStream {
		switch tag {
		case tagRelation, tagType, tagInsert, tagUpdate, tagDelete, tagTruncate, tagMessage:
			if len(b) < 4 {
				return nil, shortMsg("streamed XID", 4, len(b))
			}
			b = b[4:]
		}
	}

	switch tag {
	case tagBegin:
		if len(b) < 20 {
			return nil, shortMsg("Begin", 20, len(b))
		}
		return &Begin{
			FinalLSN:   pgtype.LSN(binary.BigEndian.Uint64(b[0:8])),
			CommitTime: pgTimeFromMicros(int64(binary.BigEndian.Uint64(b[8:16]))),
			XID:        binary.BigEndian.Uint32(b[16:20]),
		}, nil

	case tagCommit:
		if len(b) < 25 {
			return nil, shortMsg("Commit", 25, len(b))
		}
		return &Commit{
			Flags:      b[0],
			CommitLSN:  pgtype.LSN(binary.BigEndian.Uint64(b[1:9])),
			TxEndLSN:   pgtype.LSN(binary.BigEndian.Uint64(b[9:17])),
			CommitTime: pgTimeFromMicros(int64(binary.BigEndian.Uint64(b[17:25]))),
		}, nil

	case tagOrigin:
		if len(b) < 8 {
			return nil, shortMsg("Origin", 8, len(b))
		}
		name, _, err := readCString(b[8:])
		if err != nil {
			return nil, err
		}
		return &Origin{OriginLSN: pgtype.LSN(binary.BigEndian.Uint64(b[0:8])), OriginName: name}, nil

	case tagRelation:
		return decodeRelation(b)

	case tagType:
		if len(b) < 4 {
			return nil, shortMsg("Type", 4, len(b))
		}
		oid := pgtype.OID(binary.BigEndian.Uint32(b[0:4]))
		ns, rest, err := readCString(b[4:])
		if err != nil {
			return nil, err
		}
		name, _, err := readCString(rest)
		if err != nil {
			return nil, err
		}
		return &TypeMessage{OID: oid, Namespace: ns, Name: name}, nil

	case tagInsert:
		if len(b) < 5 {
			return nil, shortMsg("Insert", 5, len(b))
		}
		oid := binary.BigEndian.Uint32(b[0:4])
		cols, _, err := decodeTuple(b[5:])
		if err != nil {
			return nil, err
		}
		return &Insert{RelationOID: oid, New: cols}, nil

	case tagUpdate:
		return decodeUpdate(b)

	case tagDelete:
		if len(b) < 5 {
			return nil, shortMsg("Delete", 5, len(b))
		}
		oid := binary.BigEndian.Uint32(b[0:4])
		kind := b[4]
		cols, _, err := decodeTuple(b[5:])
		if err != nil {
			return nil, err
		}
		return &Delete{RelationOID: oid, OldKind: kind, Old: cols}, nil

	case tagTruncate:
		return decodeTruncate(b)

	case tagMessage:
		return decodeLogicalMessage(b)

	case tagStreamStart:
		if len(b) < 5 {
			return nil, shortMsg("StreamStart", 5, len(b))
		}
		return &StreamStart{XID: binary.BigEndian.Uint32(b[0:4]), FirstSegment: b[4] != 0}, nil

	case tagStreamStop:
		return &StreamStop{}, nil

	case tagStreamCommit:
		if len(b) < 29 {
			return nil, shortMsg("StreamCommit", 29, len(b))
		}
		return &StreamCommit{
			XID:        binary.BigEndian.Uint32(b[0:4]),
			Flags:      b[4],
			CommitLSN:  pgtype.LSN(binary.BigEndian.Uint64(b[5:13])),
			TxEndLSN:   pgtype.LSN(binary.BigEndian.Uint64(b[13:21])),
			CommitTime: pgTimeFromMicros(int64(binary.BigEndian.Uint64(b[21:29]))),
		}, nil

	case tagStreamAbort:
		if len(b) < 8 {
			return nil, shortMsg("StreamAbort", 8, len(b))
		}
		sa := &StreamAbort{
			XID:    binary.BigEndian.Uint32(b[0:4]),
			SubXID: binary.BigEndian.Uint32(b[4:8]),
		}
		if protocolVersion >= 4 && len(b) >= 24 {
			sa.AbortLSN = pgtype.LSN(binary.BigEndian.Uint64(b[8:16]))
			sa.HasLSN = true
		}
		return sa, nil

	default:
		return nil, pgerr.Newf(pgerr.Unsupported, "replication.DecodeMessage", "unknown pgoutput tag %q", tag)
	}
}

func decodeRelation(b []byte) (*Relation, error) {
	if len(b) < 5 {
		return nil, shortMsg("Relation", 5, len(b))
	}
	oid := binary.BigEndian.Uint32(b[0:4])
	ns, rest, err := readCString(b[4:])
	if err != nil {
		return nil, err
	}
	name, rest, err := readCString(rest)
	if err != nil {
		return nil, err
	}
	if len(rest) < 3 {
		return nil, shortMsg("Relation", 3, len(rest))
	}
	identity := ReplicaIdentity(rest[0])
	n := int(binary.BigEndian.Uint16(rest[1:3]))
	rest = rest[3:]

	cols := make([]Column, 0, n)
	for i := 0; i < n; i++ {
		if len(rest) < 1 {
			return nil, shortMsg("Relation column", 1, 0)
		}
		flags := rest[0]
		rest = rest[1:]
		colName, r2, err := readCString(rest)
		if err != nil {
			return nil, err
		}
		rest = r2
		if len(rest) < 8 {
			return nil, shortMsg("Relation column type", 8, len(rest))
		}
		typeOID := pgtype.OID(binary.BigEndian.Uint32(rest[0:4]))
		typeMod := int32(binary.BigEndian.Uint32(rest[4:8]))
		rest = rest[8:]
		cols = append(cols, Column{
			IsKey:        flags&1 != 0,
			Name:         colName,
			TypeOID:      typeOID,
			TypeModifier: typeMod,
		})
	}

	return &Relation{OID: oid, Namespace: ns, Name: name, ReplicaIdentity: identity, Columns: cols}, nil
}

func decodeUpdate(b []byte) (*Update, error) {
	if len(b) < 5 {
		return nil, shortMsg("Update", 5, len(b))
	}
	oid := binary.BigEndian.Uint32(b[0:4])
	rest := b[4:]

	u := &Update{RelationOID: oid}
	if len(rest) > 0 && (rest[0] == 'K' || rest[0] == 'O') {
		u.OldKind = rest[0]
		cols, r2, err := decodeTuple(rest[1:])
		if err != nil {
			return nil, err
		}
		u.Old = cols
		rest = r2
	}
	if len(rest) < 1 || rest[0] != 'N' {
		return nil, pgerr.New(pgerr.Fault, "replication.decodeUpdate", "missing 'N' new-tuple tag")
	}
	cols, _, err := decodeTuple(rest[1:])
	if err != nil {
		return nil, err
	}
	u.New = cols
	return u, nil
}

func decodeTruncate(b []byte) (*Truncate, error) {
	if len(b) < 5 {
		return nil, shortMsg("Truncate", 5, len(b))
	}
	n := int(binary.BigEndian.Uint32(b[0:4]))
	opts := b[4]
	oids := make([]uint32, 0, n)
	off := 5
	for i := 0; i < n; i++ {
		if len(b) < off+4 {
			return nil, shortMsg("Truncate oid", 4, len(b)-off)
		}
		oids = append(oids, binary.BigEndian.Uint32(b[off:off+4]))
		off += 4
	}
	return &Truncate{RelationOIDs: oids, Cascade: opts&1 != 0, RestartSeqs: opts&2 != 0}, nil
}

func decodeLogicalMessage(b []byte) (*Message, error) {
	if len(b) < 9 {
		return nil, shortMsg("Message", 9, len(b))
	}
	flags := b[0]
	lsn := pgtype.LSN(binary.BigEndian.Uint64(b[1:9]))
	prefix, rest, err := readCString(b[9:])
	if err != nil {
		return nil, err
	}
	if len(rest) < 4 {
		return nil, shortMsg("Message content length", 4, len(rest))
	}
	n := int(binary.BigEndian.Uint32(rest[0:4]))
	rest = rest[4:]
	if len(rest) < n {
		return nil, shortMsg("Message content", n, len(rest))
	}
	content := make([]byte, n)
	copy(content, rest[:n])
	return &Message{Transactional: flags&1 != 0, LSN: lsn, Prefix: prefix, Content: content}, nil
}

// decodeTuple decodes the "int16 n, then per column" tuple data encoding
// of spec.md §4.6.
func decodeTuple(b []byte) ([]TupleColumn, []byte, error) {
	if len(b) < 2 {
		return nil, nil, pgerr.New(pgerr.Fault, "replication.decodeTuple", "short column count")
	}
	n := int(binary.BigEndian.Uint16(b[0:2]))
	off := 2
	cols := make([]TupleColumn, 0, n)
	for i := 0; i < n; i++ {
		if len(b) < off+1 {
			return nil, nil, pgerr.New(pgerr.Fault, "replication.decodeTuple", "truncated column kind")
		}
		kind := b[off]
		off++
		switch kind {
		case 'n', 'u':
			cols = append(cols, TupleColumn{Kind: kind})
		case 't', 'b':
			if len(b) < off+4 {
				return nil, nil, pgerr.New(pgerr.Fault, "replication.decodeTuple", "truncated column length")
			}
			n := int(binary.BigEndian.Uint32(b[off : off+4]))
			off += 4
			if len(b) < off+n {
				return nil, nil, pgerr.New(pgerr.Fault, "replication.decodeTuple", "truncated column value")
			}
			val := make([]byte, n)
			copy(val, b[off:off+n])
			cols = append(cols, TupleColumn{Kind: kind, Value: val})
			off += n
		default:
			return nil, nil, pgerr.Newf(pgerr.Fault, "replication.decodeTuple", "unknown tuple column kind %q", kind)
		}
	}
	return cols, b[off:], nil
}

func readCString(b []byte) (string, []byte, error) {
	for i, c := range b {
		if c == 0 {
			return string(b[:i]), b[i+1:], nil
		}
	}
	return "", nil, pgerr.New(pgerr.Fault, "replication.readCString", "unterminated string")
}

func shortMsg(what string, want, got int) error {
	return pgerr.Newf(pgerr.Fault, "replication.DecodeMessage", "%s: want at least %d bytes, got %d", what, want, got)
}
