package replication

import (
	"context"
	"time"

	"github.com/ha1tch/pgflow/internal/logging"
	"github.com/ha1tch/pgflow/pgerr"
	"github.com/ha1tch/pgflow/pgtype"
)

// readLoop is the single reader task of spec.md §5: it owns the primary
// connection's read side, decodes CopyData frames, and drives the
// replication state machine.
func (s *Subscriber) readLoop() {
	for s.replicating.Load() {
		msg, err := s.primary.receive()
		if err != nil {
			if s.closed.Load() {
				return
			}
			s.terminate(pgerr.Wrap(err, pgerr.Unavailable, "replication.readLoop", "connection lost while replicating"))
			return
		}

		cd, ok := asCopyData(msg)
		if !ok {
			if se, ok := asServerError(msg); ok {
				s.terminate(se)
				return
			}
			continue
		}

		ka, wal, err := DecodeCopyData(cd)
		if err != nil {
			s.terminate(err)
			return
		}

		if ka != nil {
			s.flushedLSN.Store(uint64(ka.ServerWALEnd))
			if ka.ReplyASAP {
				if err := s.replyStandbyStatus(); err != nil {
					s.terminate(err)
					return
				}
			}
			continue
		}

		if err := s.handleWalData(wal); err != nil {
			s.terminate(err)
			return
		}
	}
}

func (s *Subscriber) handleWalData(wal *WalData) error {
	msg, err := DecodeMessage(wal.Data, s.protocolVersion, s.inStreamedTx)
	if err != nil {
		return err
	}

	switch m := msg.(type) {
	case *Begin:
		s.deliver(Event{Type: EventBegin, LSN: m.FinalLSN, CommitTimestamp: m.CommitTime, XID: m.XID})

	case *TypeMessage:
		if err := s.installAlias(m.OID); err != nil && s.log != nil {
			s.log.For(logging.CategoryReplication).Warnw("failed to install type alias", "oid", m.OID, "error", err)
		}
		s.deliver(Event{Type: EventTypeInfo})

	case *Relation:
		entry := s.relations.upsert(m)
		s.deliver(Event{Type: EventRelation, Schema: entry.schema, Table: entry.table, Keys: entry.keys, ReplicaIdentity: m.ReplicaIdentity})

	case *Insert:
		entry, ok := s.relations.get(m.RelationOID)
		if !ok {
			return pgerr.Newf(pgerr.Fault, "replication.handleWalData", "insert for unknown relation oid %d", m.RelationOID)
		}
		row, err := s.decodeRowWithRetry(entry, m.New)
		if err != nil {
			return err
		}
		s.deliver(Event{Type: EventInsert, Schema: entry.schema, Table: entry.table, Keys: entry.keys, NewRow: row})

	case *Update:
		entry, ok := s.relations.get(m.RelationOID)
		if !ok {
			return pgerr.Newf(pgerr.Fault, "replication.handleWalData", "update for unknown relation oid %d", m.RelationOID)
		}
		newRow, err := s.decodeRowWithRetry(entry, m.New)
		if err != nil {
			return err
		}
		var oldRow map[string]pgtype.Value
		if m.Old != nil {
			oldRow, err = s.decodeRowWithRetry(entry, m.Old)
			if err != nil {
				return err
			}
		}
		identity := ReplicaIdentityDefault
		if m.OldKind == 'O' {
			identity = ReplicaIdentityFull
		}
		s.deliver(Event{Type: EventUpdate, Schema: entry.schema, Table: entry.table, Keys: entry.keys, OldRow: oldRow, NewRow: newRow, ReplicaIdentity: identity})

	case *Delete:
		entry, ok := s.relations.get(m.RelationOID)
		if !ok {
			return pgerr.Newf(pgerr.Fault, "replication.handleWalData", "delete for unknown relation oid %d", m.RelationOID)
		}
		oldRow, err := s.decodeRowWithRetry(entry, m.Old)
		if err != nil {
			return err
		}
		identity := ReplicaIdentityDefault
		if m.OldKind == 'O' {
			identity = ReplicaIdentityFull
		}
		s.deliver(Event{Type: EventDelete, Schema: entry.schema, Table: entry.table, Keys: entry.keys, OldRow: oldRow, ReplicaIdentity: identity})

	case *Truncate:
		targets := make([]TruncateTarget, 0, len(m.RelationOIDs))
		for _, oid := range m.RelationOIDs {
			if entry, ok := s.relations.get(oid); ok {
				targets = append(targets, TruncateTarget{Schema: entry.schema, Table: entry.table})
			}
		}
		s.deliver(Event{Type: EventTruncate, Targets: targets, Cascade: m.Cascade, RestartSeqs: m.RestartSeqs})

	case *Message:
		s.deliver(Event{Type: EventMessage, LSN: m.LSN, Prefix: m.Prefix, Content: m.Content, Transactional: m.Transactional})

	case *StreamStart:
		s.inStreamedTx = true
		s.deliver(Event{Type: EventStreamStart, XID: m.XID, FirstSegment: m.FirstSegment})

	case *StreamStop:
		s.inStreamedTx = false
		s.deliver(Event{Type: EventStreamStop})

	case *StreamCommit:
		s.inStreamedTx = false
		s.deliverWithAck(Event{Type: EventStreamCommit, XID: m.XID, CommitTimestamp: m.CommitTime, LSN: m.CommitLSN, TxEndLSN: m.TxEndLSN, HasAck: true}, m.TxEndLSN)

	case *StreamAbort:
		s.inStreamedTx = false
		ev := Event{Type: EventStreamAbort, XID: m.XID}
		if m.HasLSN {
			ev.TxEndLSN = m.AbortLSN
			ev.HasAck = true
			s.deliverWithAck(ev, m.AbortLSN)
		} else {
			s.deliver(ev)
		}

	case *Commit:
		s.deliverWithAck(Event{Type: EventCommit, CommitTimestamp: m.CommitTime, LSN: m.CommitLSN, TxEndLSN: m.TxEndLSN, HasAck: true}, m.TxEndLSN)

	case *Origin:
		s.deliver(Event{Type: EventOrigin})
	}

	return nil
}

// decodeRowWithRetry decodes tuple columns, installing a type alias and
// retrying exactly once on UnknownDataTypeError (spec.md §4.2).
func (s *Subscriber) decodeRowWithRetry(entry *relationEntry, cols []TupleColumn) (map[string]pgtype.Value, error) {
	row, err := entry.decodeRow(s.registry, cols)
	if err == nil {
		return row, nil
	}
	unk, ok := err.(*pgtype.UnknownDataTypeError)
	if !ok {
		return nil, err
	}
	if installErr := s.installAlias(unk.OID); installErr != nil {
		return nil, installErr
	}
	return entry.decodeRow(s.registry, cols)
}

// installAlias queries pg_type for the given OID's typtype/typbasetype
// and installs the corresponding decoder alias (spec.md §4.2/§4.6).
func (s *Subscriber) installAlias(oid pgtype.OID) error {
	ctx := context.Background()
	results, err := s.aux.Eq(ctx, queryTypeInfo(oid))
	if err != nil {
		return err
	}
	if len(results) == 0 || len(results[0].Rows) == 0 {
		return pgerr.Newf(pgerr.Fault, "replication.installAlias", "no pg_type row for oid %d", oid)
	}
	row := results[0].Rows[0]
	typtypeVal, _ := row.Get("typtype")
	typbaseVal, _ := row.Get("typbasetype")

	var kind pgtype.AliasKind
	if len(typtypeVal.Text) > 0 {
		kind = pgtype.AliasKind(typtypeVal.Text[0])
	}
	target := pgtype.AliasTarget(kind, pgtype.OID(typbaseVal.Int))
	s.registry.InstallAlias(oid, target)
	return nil
}

func (s *Subscriber) deliver(ev Event) {
	s.submit(ev, nil)
}

func (s *Subscriber) deliverWithAck(ev Event, ackLSN pgtype.LSN) {
	ack := func() { s.ack(ackLSN) }
	s.submit(ev, ack)
}

func (s *Subscriber) submit(ev Event, ack Ack) {
	ctx := context.Background()
	err := s.exec.Submit(ctx, func() {
		switch {
		case s.handler1 != nil:
			s.handler1(ev)
		case ack != nil:
			s.handler2(ev, ack)
		default:
			s.handler2(ev, noopAck)
		}
	})
	if err != nil {
		s.terminate(err)
	}
}

func noopAck() {}

// ack sets unflushed-lsn := max(unflushed-lsn, lsn) (spec.md §4.6).
func (s *Subscriber) ack(lsn pgtype.LSN) {
	for {
		cur := pgtype.LSN(s.unflushedLSN.Load())
		next := pgtype.Max(cur, lsn)
		if s.unflushedLSN.CompareAndSwap(uint64(cur), uint64(next)) {
			s.unflushedSet.Store(true)
			return
		}
	}
}

func (s *Subscriber) replyStandbyStatus() error {
	flushed := pgtype.LSN(s.flushedLSN.Load())
	payload := EncodeStandbyStatusUpdate(flushed, flushed, flushed, NowPGEpochMicros(time.Now().UnixMicro()), false)
	return s.primary.sendCopyData(payload)
}

// flushLoop is the periodic LSN flusher of spec.md §4.6/§5.
func (s *Subscriber) flushLoop() {
	defer close(s.flusherDone)
	ticker := time.NewTicker(s.ackInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.flusherStop:
			return
		case <-ticker.C:
			s.flushNow()
		}
	}
}

func (s *Subscriber) flushNow() {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	var lsn pgtype.LSN
	if s.unflushedSet.Load() {
		lsn = pgtype.LSN(s.unflushedLSN.Load())
	} else {
		lsn = pgtype.LSN(s.flushedLSN.Load())
	}

	payload := EncodeStandbyStatusUpdate(lsn, lsn, lsn, NowPGEpochMicros(time.Now().UnixMicro()), false)
	if err := s.primary.sendCopyData(payload); err != nil {
		s.terminate(err)
		return
	}
	s.flushedLSN.Store(uint64(lsn))
	s.unflushedSet.Store(false)
}
