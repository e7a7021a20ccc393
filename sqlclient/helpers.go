package sqlclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/ha1tch/pgflow/pgerr"
	"github.com/ha1tch/pgflow/pgtype"
)

// SlotInfo is the single result row of CREATE_REPLICATION_SLOT.
type SlotInfo struct {
	SlotName       string
	ConsistentPoint string
	SnapshotName   string
	OutputPlugin   string
}

// CreateSlot issues CREATE_REPLICATION_SLOT for a pgoutput logical slot,
// via the simple query protocol (spec.md SUPPLEMENTED FEATURES: the
// distilled spec names create_slot/drop_slot without the wire text).
func (c *Client) CreateSlot(ctx context.Context, name string, temporary bool) (SlotInfo, error) {
	stmt := fmt.Sprintf("CREATE_REPLICATION_SLOT %s", quoteIdent(name))
	if temporary {
		stmt += " TEMPORARY"
	}
	stmt += " LOGICAL pgoutput"

	results, err := c.Sq(ctx, stmt)
	if err != nil {
		return SlotInfo{}, err
	}
	if len(results) == 0 || len(results[0].Rows) == 0 {
		return SlotInfo{}, pgerr.New(pgerr.Fault, "sqlclient.CreateSlot", "server returned no row")
	}
	row := results[0].Rows[0]
	get := func(col string) string {
		v, _ := row.Get(col)
		return v.Text
	}
	return SlotInfo{
		SlotName:        get("slot_name"),
		ConsistentPoint: get("consistent_point"),
		SnapshotName:    get("snapshot_name"),
		OutputPlugin:    get("output_plugin"),
	}, nil
}

// DropSlot issues DROP_REPLICATION_SLOT.
func (c *Client) DropSlot(ctx context.Context, name string) error {
	_, err := c.Sq(ctx, fmt.Sprintf("DROP_REPLICATION_SLOT %s", quoteIdent(name)))
	return err
}

// EmitMessageOptions configures EmitMessage.
type EmitMessageOptions struct {
	Transactional bool
	Flush         bool
}

// EmitMessage calls pg_logical_emit_message(transactional, prefix,
// content), landing a Logical Decoding Message in the WAL stream that a
// subscribed replication.Subscriber observes as a Message event
// (spec.md §4.6, scenario S3).
func (c *Client) EmitMessage(ctx context.Context, prefix string, content []byte, opts EmitMessageOptions) error {
	_, err := c.Eq(ctx, Q(
		"SELECT pg_logical_emit_message($1, $2, $3, $4)",
		pgtype.Bool(opts.Transactional),
		pgtype.Text(prefix),
		pgtype.Bytes(content),
		pgtype.Bool(opts.Flush),
	))
	return err
}

// IgnoringDupes runs body and swallows a server error with SQLSTATE 42710
// (duplicate_object) -- the idiom for idempotent CREATE PUBLICATION /
// CREATE_REPLICATION_SLOT calls (spec.md §6).
func IgnoringDupes(body func() error) error {
	err := body()
	if err == nil {
		return nil
	}
	if pgerr.IsDuplicateObject(err) {
		return nil
	}
	return err
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
