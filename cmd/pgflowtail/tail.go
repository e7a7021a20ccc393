package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/ha1tch/pgflow/internal/logging"
	"github.com/ha1tch/pgflow/pgauth"
	"github.com/ha1tch/pgflow/pgconn"
	"github.com/ha1tch/pgflow/pgflowcfg"
	"github.com/ha1tch/pgflow/replication"
)

type tailFlags struct {
	configFile      string
	host            string
	port            int
	database        string
	user            string
	password        string
	slot            string
	publications    []string
	temporary       bool
	protocolVersion int
	streaming       string
	messages        bool
	ackIntervalStr  string
	tlsEnabled      bool
	tlsServerName   string
	tlsSkipVerify   bool
	logLevel        string
	logJSON         bool
}

func newTailCmd() *cobra.Command {
	var f tailFlags

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Stream logical replication events as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTail(cmd.Context(), &f)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&f.configFile, "config", "c", "", "YAML config file path")
	fs.StringVar(&f.host, "host", "localhost", "server host")
	fs.IntVar(&f.port, "port", 5432, "server port")
	fs.StringVarP(&f.database, "database", "d", "", "database name")
	fs.StringVarP(&f.user, "user", "u", "", "replication user")
	fs.StringVar(&f.password, "password", "", "replication password")
	fs.StringVar(&f.slot, "slot", "", "replication slot name")
	fs.StringArrayVar(&f.publications, "publication", nil, "publication name (repeatable)")
	fs.BoolVar(&f.temporary, "temporary-slot", false, "set temporary_slot in the loaded config; tail itself never creates a slot (use create-slot)")
	fs.IntVar(&f.protocolVersion, "protocol-version", 2, "pgoutput protocol version (1, 2, 3, or 4)")
	fs.StringVar(&f.streaming, "streaming", "off", "streaming mode: off, on, parallel")
	fs.BoolVar(&f.messages, "messages", false, "include logical decoding messages (pg_logical_emit_message)")
	fs.StringVar(&f.ackIntervalStr, "ack-interval", "10s", "LSN flush interval")
	fs.BoolVar(&f.tlsEnabled, "tls", false, "request TLS (continues unencrypted if the server declines)")
	fs.StringVar(&f.tlsServerName, "tls-server-name", "", "TLS server name for verification")
	fs.BoolVar(&f.tlsSkipVerify, "tls-skip-verify", false, "skip TLS certificate verification (insecure)")
	fs.StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	fs.BoolVar(&f.logJSON, "log-json", false, "emit logs as JSON")

	return cmd
}

func runTail(ctx context.Context, f *tailFlags) error {
	cfg, err := pgflowcfg.Load(f.configFile)
	if err != nil {
		return err
	}
	applyFlagOverrides(cfg, f)

	log := buildLogger(cfg)
	defer log.Sync()

	verifier := buildVerifier(cfg)

	params := pgauth.Params{
		Database: cfg.Database,
		User:     cfg.User,
		Password: cfg.Password,
	}

	streaming := replication.StreamingOff
	switch cfg.Streaming {
	case "on":
		streaming = replication.StreamingOn
	case "parallel":
		streaming = replication.StreamingParallel
	}

	enc := json.NewEncoder(os.Stdout)

	sub, err := replication.Connect(ctx, cfg.Host, cfg.Port, cfg.Slot, params, verifier, replication.Options{
		Publications:    cfg.Publications,
		Handler:         func(ev replication.Event) { enc.Encode(ev) },
		ProtocolVersion: cfg.ProtocolVersion,
		Log:             log,
		AckInterval:     cfg.AckInterval,
		Messages:        cfg.Messages,
		Streaming:       streaming,
	})
	if err != nil {
		return fmt.Errorf("pgflowtail: connect: %w", err)
	}
	log.System().Infow("tailing replication slot", "slot", cfg.Slot, "conn_id", sub.ConnID())

	err = sub.Await(ctx)
	closeErr := sub.Close(context.Background())
	if err != nil {
		return err
	}
	return closeErr
}

func applyFlagOverrides(cfg *pgflowcfg.Config, f *tailFlags) {
	if f.host != "" {
		cfg.Host = f.host
	}
	if f.port != 0 {
		cfg.Port = f.port
	}
	if f.database != "" {
		cfg.Database = f.database
	}
	if f.user != "" {
		cfg.User = f.user
	}
	if f.password != "" {
		cfg.Password = f.password
	}
	if f.slot != "" {
		cfg.Slot = f.slot
	}
	if len(f.publications) > 0 {
		cfg.Publications = f.publications
	}
	if f.temporary {
		cfg.Temporary = true
	}
	if f.protocolVersion != 0 {
		cfg.ProtocolVersion = f.protocolVersion
	}
	if f.streaming != "" {
		cfg.Streaming = f.streaming
	}
	if f.messages {
		cfg.Messages = true
	}
	if f.tlsEnabled {
		cfg.TLSEnabled = true
	}
	if f.tlsServerName != "" {
		cfg.TLSServerName = f.tlsServerName
	}
	if f.tlsSkipVerify {
		cfg.TLSSkipVerify = true
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.logJSON {
		cfg.LogJSON = true
	}
}

func buildLogger(cfg *pgflowcfg.Config) *logging.Logger {
	lvl := zapcore.InfoLevel
	_ = lvl.UnmarshalText([]byte(cfg.LogLevel))
	return logging.New(logging.Config{Level: lvl, JSON: cfg.LogJSON, Output: os.Stderr})
}

func buildVerifier(cfg *pgflowcfg.Config) pgconn.TLSVerifier {
	if !cfg.TLSEnabled {
		return nil
	}
	return pgconn.TLSVerifierFunc(func(serverName string) *tls.Config {
		name := cfg.TLSServerName
		if name == "" {
			name = serverName
		}
		return &tls.Config{ServerName: name, InsecureSkipVerify: cfg.TLSSkipVerify}
	})
}
