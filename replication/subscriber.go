package replication

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/ha1tch/pgflow/executor"
	"github.com/ha1tch/pgflow/internal/logging"
	"github.com/ha1tch/pgflow/pgauth"
	"github.com/ha1tch/pgflow/pgconn"
	"github.com/ha1tch/pgflow/pgerr"
	"github.com/ha1tch/pgflow/pgtype"
	"github.com/ha1tch/pgflow/sqlclient"
)

// DefaultAckInterval is the LSN flusher's default period (spec.md §6.4).
const DefaultAckInterval = 10 * time.Second

// Options configures Connect.
type Options struct {
	Publications    []string
	Handler         Handler
	Executor        *executor.Executor
	ExecutorCloseFn func()
	StartLSN        pgtype.LSN
	ProtocolVersion int
	Log             *logging.Logger
	// Logr, if its sink is non-nil, backs the subscriber's logger with an
	// externally supplied logr.Logger instead of Log, so a caller already
	// standardized on logr doesn't need to adopt zap directly. Log takes
	// precedence if both are set.
	Logr        logr.Logger
	AckInterval time.Duration
	KeyFn           KeyFunc
	Messages        bool
	Streaming       Streaming
}

// Subscriber is a live logical-replication session: a primary connection
// streaming WAL in pgoutput format, an auxiliary connection for type
// catalog lookups, a handler executor, and an LSN flusher.
type Subscriber struct {
	primary *primaryConn
	aux     *sqlclient.Client

	registry  *pgtype.DecoderRegistry
	relations *relationCache

	handler1 func(Event)
	handler2 func(Event, Ack)

	exec        *executor.Executor
	ownsExec    bool
	execCloseFn func()

	log             *logging.Logger
	ackInterval     time.Duration
	protocolVersion int

	// inStreamedTx is the tx-state of spec.md §4.6/§7: true from a
	// StreamStart until its matching StreamStop/StreamCommit/StreamAbort.
	// Only readLoop's goroutine touches it, so it needs no synchronization.
	inStreamedTx bool

	replicating atomic.Bool
	closed      atomic.Bool
	closeOnce   sync.Once

	flushMu      sync.Mutex
	unflushedSet atomic.Bool
	unflushedLSN atomic.Uint64
	flushedLSN   atomic.Uint64

	done    chan struct{}
	errOnce sync.Once
	err     error
	errMu   sync.Mutex

	flusherStop chan struct{}
	flusherDone chan struct{}
}

// Connect performs the connect sequence of spec.md §4.6: opens the
// primary (replication-mode) and auxiliary (normal-mode) connections,
// resolves a start LSN via IDENTIFY_SYSTEM when unset, issues
// START_REPLICATION, and spawns the reader and flusher.
func Connect(ctx context.Context, host string, port int, slot string, params pgauth.Params, verifier pgconn.TLSVerifier, opts Options) (*Subscriber, error) {
	h1, h2, err := resolveHandler(opts.Handler)
	if err != nil {
		return nil, err
	}

	log := opts.Log
	if log == nil && opts.Logr.GetSink() != nil {
		log = logging.FromLogr(opts.Logr)
	}
	if log == nil {
		log = logging.Noop()
	}
	ackInterval := opts.AckInterval
	if ackInterval <= 0 {
		ackInterval = DefaultAckInterval
	}
	protocolVersion := opts.ProtocolVersion
	if protocolVersion == 0 {
		protocolVersion = 2
	}

	primary, err := dialPrimary(ctx, host, port, verifier, params, log)
	if err != nil {
		return nil, err
	}

	aux, err := sqlclient.Connect(ctx, host, port, params, verifier, sqlclient.Options{Log: log})
	if err != nil {
		primary.close()
		return nil, err
	}

	startLSN := opts.StartLSN
	if startLSN == 0 {
		sys, err := primary.identifySystem()
		if err != nil {
			primary.close()
			aux.Close()
			return nil, err
		}
		startLSN = sys.xlogpos
	}

	stmt := buildStartReplication(slot, startLSN, protocolVersion, opts.Publications, opts.Streaming, opts.Messages)
	if err := primary.startReplication(stmt); err != nil {
		primary.close()
		aux.Close()
		return nil, err
	}

	exec := opts.Executor
	ownsExec := false
	if exec == nil {
		exec = executor.New(executor.Options{})
		ownsExec = true
	}

	s := &Subscriber{
		primary:         primary,
		aux:             aux,
		registry:        aux.Registry(),
		relations:       newRelationCache(opts.KeyFn),
		handler1:        h1,
		handler2:        h2,
		exec:            exec,
		ownsExec:        ownsExec,
		execCloseFn:     opts.ExecutorCloseFn,
		log:             log,
		ackInterval:     ackInterval,
		protocolVersion: protocolVersion,
		done:            make(chan struct{}),
		flusherStop:     make(chan struct{}),
		flusherDone:     make(chan struct{}),
	}
	s.flushedLSN.Store(uint64(startLSN))
	s.replicating.Store(true)

	go s.readLoop()
	go s.flushLoop()

	return s, nil
}

func resolveHandler(h Handler) (func(Event), func(Event, Ack), error) {
	switch fn := h.(type) {
	case func(Event):
		return fn, nil, nil
	case func(Event, Ack):
		return nil, fn, nil
	case nil:
		return func(Event) {}, nil, nil
	default:
		return nil, nil, pgerr.New(pgerr.Incorrect, "replication.Connect", "handler must be func(Event) or func(Event, Ack)")
	}
}

// ConnID returns the primary connection's correlation ID, for callers
// that want to tie their own log lines to this session.
func (s *Subscriber) ConnID() uuid.UUID { return s.primary.conn.ID() }

// Await blocks until the subscriber terminates (error, handler failure,
// or Close), then returns the stored outcome.
func (s *Subscriber) Await(ctx context.Context) error {
	select {
	case <-s.done:
		s.errMu.Lock()
		defer s.errMu.Unlock()
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsDone reports whether the subscriber has already terminated.
func (s *Subscriber) IsDone() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Subscriber) terminate(err error) {
	s.errOnce.Do(func() {
		s.errMu.Lock()
		s.err = err
		s.errMu.Unlock()
		s.replicating.Store(false)
		close(s.done)
	})
}

// Close idempotently tears the subscriber down: stops the reader,
// drains the handler executor (so no ack() is lost), forces a final
// flush, then closes both connections.
func (s *Subscriber) Close(ctx context.Context) error {
	var closeErr error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.replicating.Store(false)

		close(s.flusherStop)
		<-s.flusherDone

		if err := s.exec.Drain(ctx); err != nil && s.log != nil {
			s.log.For(logging.CategoryReplication).Warnw("executor drain timed out on close", "error", err)
		}
		s.flushNow()

		if s.ownsExec {
			s.exec.Close()
		} else if s.execCloseFn != nil {
			s.execCloseFn()
		}

		_ = s.primary.close()
		_ = s.aux.Close()

		s.errMu.Lock()
		if s.err == nil {
			closeErr = nil
		}
		s.errMu.Unlock()

		select {
		case <-s.done:
		default:
			s.terminate(nil)
		}
	})
	return closeErr
}
