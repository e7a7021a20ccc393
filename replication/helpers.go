package replication

import (
	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/ha1tch/pgflow/pgtype"
	"github.com/ha1tch/pgflow/sqlclient"
)

func asCopyData(msg pgproto3.BackendMessage) ([]byte, bool) {
	cd, ok := msg.(*pgproto3.CopyData)
	if !ok {
		return nil, false
	}
	return cd.Data, true
}

func asServerError(msg pgproto3.BackendMessage) (error, bool) {
	er, ok := msg.(*pgproto3.ErrorResponse)
	if !ok {
		return nil, false
	}
	return serverErrorFrom(er), true
}

// queryTypeInfo builds the pg_type lookup of spec.md §4.6's type-metadata
// installation step.
func queryTypeInfo(oid pgtype.OID) sqlclient.Query {
	return sqlclient.Q("SELECT typtype, typbasetype FROM pg_type WHERE oid = $1 LIMIT 1", pgtype.Int4(int32(oid)))
}
