package pgtype

import "time"

// pgEpoch is the reference instant PostgreSQL measures date/timestamp wire
// values from (2000-01-01 UTC).
var pgEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Epoch returns the PostgreSQL reference instant (2000-01-01 UTC), for
// packages outside pgtype that need to convert micros-since-epoch values
// themselves (e.g. replication's pgoutput timestamps).
func Epoch() time.Time { return pgEpoch }

const (
	microsPerSecond = 1_000_000
	secondsPerDay   = 86400
)

// Sentinel wire values PostgreSQL uses for +/-infinity timestamps.
const (
	int64Min = int64(-1) << 63
	int64Max = int64(1)<<63 - 1
)

// PosInfinity / NegInfinity are the decoded Go representations of
// PostgreSQL's timestamp infinities (time.Time has no native infinity, so
// these use the documented extreme instants).
var (
	PosInfinity = time.Date(294276, 12, 31, 23, 59, 59, 999999000, time.UTC)
	NegInfinity = time.Date(-4713, 11, 24, 0, 0, 0, 0, time.UTC)
)
