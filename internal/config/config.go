// Package config parses the coordinator's TOML configuration file (spec
// §6): a [common] block plus a list of [[auth]] blocks describing the
// authoritative zone data the in-process stack is seeded with. The
// shape is restated from original_source/dnsauth/src/config.rs's
// Config/CommonConfig/AuthConfig/Record, which this spec's config block
// was distilled from; parsed here with github.com/BurntSushi/toml since
// no repo in the retrieved pack already depends on a TOML library (see
// DESIGN.md).
package config

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// LogLevel mirrors the Rust source's four-value enum (config.rs).
type LogLevel string

const (
	LogLevelWarn  LogLevel = "warn"
	LogLevelInfo  LogLevel = "info"
	LogLevelDebug LogLevel = "debug"
	LogLevelTrace LogLevel = "trace"
)

// Logrus maps LogLevel onto the matching logrus.Level: Trace maps to
// logrus.TraceLevel, and any unrecognized value falls back to InfoLevel.
func (l LogLevel) Logrus() logrus.Level {
	switch l {
	case LogLevelWarn:
		return logrus.WarnLevel
	case LogLevelDebug:
		return logrus.DebugLevel
	case LogLevelTrace:
		return logrus.TraceLevel
	default:
		return logrus.InfoLevel
	}
}

// CommonConfig is the [common] TOML block.
type CommonConfig struct {
	LogLevel        LogLevel `toml:"log-level"`
	FuzzingMessages int      `toml:"fuzzing-messages"`
}

// RecordType is the Record enum's discriminant (config.rs: "A", "SOA", "NS").
type RecordType string

const (
	RecordTypeA   RecordType = "A"
	RecordTypeSOA RecordType = "SOA"
	RecordTypeNS  RecordType = "NS"
)

// Record is one authoritative resource record (config.rs's ResouceRecord
// flattened: Record::A{rdata}/SOA{rdata}/NS{rdata} become Rdata here,
// format depending on Type).
type Record struct {
	Name  string     `toml:"name"`
	Type  RecordType `toml:"type"`
	Rdata string     `toml:"rdata"`
}

// AuthConfig is one [[auth]] block: the zone data and listen addresses
// for one authoritative role (spec §6).
type AuthConfig struct {
	ServerID        string   `toml:"server-id"`
	ListenAddresses []string `toml:"listen-addresses"`
	Zone            string   `toml:"zone"`
	TTL             uint32   `toml:"ttl"`
	Data            []Record `toml:"data"`
}

// Config is the top-level parsed document.
type Config struct {
	Common CommonConfig `toml:"common"`
	Auth   []AuthConfig `toml:"auth"`
}

// ErrNoAuthBlocks is returned by Validate when a config has an empty
// auth list, since the coordinator has no authoritative data to seed the
// stack with in that case.
var ErrNoAuthBlocks = errors.New("config: at least one [[auth]] block is required")

// Load reads and parses path, applying defaults and validating the
// result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	var cfg Config
	if _, err := toml.Decode(string(raw), &cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Common.LogLevel == "" {
		c.Common.LogLevel = LogLevelInfo
	}
	if c.Common.FuzzingMessages == 0 {
		c.Common.FuzzingMessages = 50
	}
}

// Validate reports a configuration error (spec §7: SchemaMismatch/exit 2
// territory, though this one is a plain validation failure rather than a
// codec schema mismatch).
func (c *Config) Validate() error {
	if len(c.Auth) == 0 {
		return ErrNoAuthBlocks
	}
	for i, a := range c.Auth {
		if a.Zone == "" {
			return errors.Errorf("config: auth[%d] missing zone", i)
		}
		if len(a.ListenAddresses) == 0 {
			return errors.Errorf("config: auth[%d] %s has no listen-addresses", i, a.Zone)
		}
		for _, rec := range a.Data {
			switch rec.Type {
			case RecordTypeA, RecordTypeSOA, RecordTypeNS:
			default:
				return errors.Errorf("config: auth[%d] record %s has unknown type %q", i, rec.Name, rec.Type)
			}
		}
	}
	return nil
}
