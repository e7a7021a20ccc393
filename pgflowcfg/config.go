// Package pgflowcfg loads pgflowtail's configuration from a YAML file and
// the environment, and provides a Watcher that reloads the file when it
// changes. The tail command loads its configuration once at start-up and
// does not use the Watcher.
package pgflowcfg

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config is the CLI's full configuration surface. Fields map 1:1 onto
// pgauth.Params / replication.Options so cmd/pgflowtail can build those
// directly from a loaded Config.
type Config struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`

	Slot            string   `mapstructure:"slot"`
	Publications    []string `mapstructure:"publications"`
	Temporary       bool     `mapstructure:"temporary_slot"`
	ProtocolVersion int      `mapstructure:"protocol_version"`
	Streaming       string   `mapstructure:"streaming"`
	Messages        bool     `mapstructure:"messages"`

	AckInterval time.Duration `mapstructure:"ack_interval"`

	TLSEnabled    bool   `mapstructure:"tls_enabled"`
	TLSServerName string `mapstructure:"tls_server_name"`
	TLSSkipVerify bool   `mapstructure:"tls_skip_verify"`

	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`
}

// configKeys lists every mapstructure tag in Config. AutomaticEnv only
// resolves PGFLOW_* for keys viper already knows about (from a default,
// a flag, or an explicit bind), so fields with no natural default --
// database, user, password, slot, publications, tls_*, streaming,
// messages -- still need an explicit BindEnv or their environment
// variable is silently ignored.
var configKeys = []string{
	"host", "port", "database", "user", "password",
	"slot", "publications", "temporary_slot", "protocol_version", "streaming", "messages",
	"ack_interval",
	"tls_enabled", "tls_server_name", "tls_skip_verify",
	"log_level", "log_json",
}

func defaults(v *viper.Viper) {
	v.SetDefault("host", "localhost")
	v.SetDefault("port", 5432)
	v.SetDefault("protocol_version", 2)
	v.SetDefault("ack_interval", "10s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

func bindEnv(v *viper.Viper) error {
	for _, key := range configKeys {
		if err := v.BindEnv(key); err != nil {
			return err
		}
	}
	return nil
}

// Load reads configuration from the given YAML file (if path is non-empty
// and the file exists), then overlays environment variables prefixed
// PGFLOW_ (e.g. PGFLOW_HOST, PGFLOW_SLOT). It never fails because a file
// is absent; it fails only on a malformed file or an un-decodable result.
func Load(path string) (*Config, error) {
	v := viper.New()
	defaults(v)
	v.SetEnvPrefix("pgflow")
	v.AutomaticEnv()
	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("pgflowcfg: binding environment: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			// An explicit SetConfigFile path that does not exist surfaces as
			// a plain fs "not exist" error, not ConfigFileNotFoundError.
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("pgflowcfg: reading %s: %w", path, err)
			}
		}
	}

	var cfg Config
	// Environment variables always arrive as strings (PGFLOW_PORT=5432,
	// PGFLOW_TLS_ENABLED=true); WeaklyTypedInput lets mapstructure coerce
	// those into Config's int/bool/duration fields instead of erroring.
	decodeOpt := viper.DecoderConfigOption(func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	})
	if err := v.Unmarshal(&cfg, decodeOpt); err != nil {
		return nil, fmt.Errorf("pgflowcfg: decoding config: %w", err)
	}
	return &cfg, nil
}
