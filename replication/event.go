package replication

import (
	"time"

	"github.com/ha1tch/pgflow/pgtype"
)

// EventType names the kind of change-data-capture event delivered to a
// handler, mirroring the pgoutput tags of spec.md §4.6.
type EventType string

const (
	EventBegin        EventType = "begin"
	EventCommit       EventType = "commit"
	EventRelation     EventType = "relation"
	EventTypeInfo     EventType = "type"
	EventOrigin       EventType = "origin"
	EventInsert       EventType = "insert"
	EventUpdate       EventType = "update"
	EventDelete       EventType = "delete"
	EventTruncate     EventType = "truncate"
	EventMessage      EventType = "message"
	EventStreamStart  EventType = "stream_start"
	EventStreamStop   EventType = "stream_stop"
	EventStreamCommit EventType = "stream_commit"
	EventStreamAbort  EventType = "stream_abort"
)

// TruncateTarget is one relation named by a Truncate event.
type TruncateTarget struct {
	Schema string
	Table  string
}

// Event is the single structured type delivered to a handler for every
// pgoutput sub-message, enriched per the table in spec.md §4.6 (a
// Relation lookup attaches schema/table/keys; Insert/Update/Delete attach
// decoded rows).
type Event struct {
	Type EventType

	LSN             pgtype.LSN
	CommitTimestamp time.Time
	XID             uint32

	Schema          string
	Table           string
	Keys            []string
	ReplicaIdentity ReplicaIdentity
	OldRow          map[string]pgtype.Value
	NewRow          map[string]pgtype.Value

	Prefix        string
	Content       []byte
	Transactional bool

	Targets     []TruncateTarget
	Cascade     bool
	RestartSeqs bool

	FirstSegment bool

	// TxEndLSN carries the LSN an Ack should flush, for
	// Commit/StreamCommit/StreamAbort-with-lsn events (for StreamAbort it
	// holds the abort LSN); HasAck is false for every other event type.
	TxEndLSN pgtype.LSN
	HasAck   bool
}

// Ack records that the caller has durably processed everything up to and
// including the event's TxEndLSN. Calling it advances the subscriber's
// unflushed LSN watermark (spec.md §4.6); it is a no-op if called more
// than once or with an event that has no ack (HasAck == false).
type Ack func()

// Handler is either func(Event) or func(Event, Ack); anything else passed
// as Options.Handler is rejected by Connect.
type Handler any
