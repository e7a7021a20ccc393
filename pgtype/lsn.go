package pgtype

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ha1tch/pgflow/pgerr"
)

// LSN is a PostgreSQL log sequence number: a 64-bit WAL position with a
// canonical 32/32 segment/offset split and a canonical "X/X" hex textual
// form (uppercase, no leading zeros within a half).
type LSN uint64

// Split returns the upper and lower 32 bits of the LSN.
func (l LSN) Split() (upper, lower uint32) {
	return uint32(l >> 32), uint32(l)
}

// String renders the canonical "X/X" textual form.
func (l LSN) String() string {
	upper, lower := l.Split()
	return fmt.Sprintf("%X/%X", upper, lower)
}

// ParseLSN parses the canonical "X/X" hex textual form into an LSN.
func ParseLSN(s string) (LSN, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, pgerr.Newf(pgerr.Incorrect, "pgtype.ParseLSN", "malformed LSN %q", s)
	}
	upper, err := strconv.ParseUint(parts[0], 16, 32)
	if err != nil {
		return 0, pgerr.Wrapf(err, pgerr.Incorrect, "pgtype.ParseLSN", "malformed LSN upper half %q", s)
	}
	lower, err := strconv.ParseUint(parts[1], 16, 32)
	if err != nil {
		return 0, pgerr.Wrapf(err, pgerr.Incorrect, "pgtype.ParseLSN", "malformed LSN lower half %q", s)
	}
	return LSN(upper<<32 | lower), nil
}

// Max returns the greater of two LSNs.
func Max(a, b LSN) LSN {
	if a > b {
		return a
	}
	return b
}
