// Package config binds the core's runtime configuration to cobra
// persistent flags via viper, so every setting can come from a flag, an
// environment variable (CONARY_ prefix), or a config file, in that
// order of precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the fully resolved runtime configuration for one invocation
// of the core.
type Config struct {
	DBPath      string
	CASRoot     string
	InstallRoot string
	LockPath    string

	SandboxMode  string
	HashAlgorithm string

	CASHighWaterBytes      int64
	CASLowWaterBytes       int64
	BloomFalsePositiveRate float64

	LogLevel string
	LogJSON  bool
}

// BindFlags registers the core's configuration flags on cmd's persistent
// flag set and binds them into v, so Load can later resolve the final
// value from flag > env > config file > default.
func BindFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := cmd.PersistentFlags()
	flags.String("db-path", "/var/lib/conary/conary.db", "path to the metadata store")
	flags.String("cas-root", "/var/lib/conary/cas", "root directory of the content-addressable store")
	flags.String("install-root", "/", "target root filesystem for installs")
	flags.String("lock-path", "/var/lib/conary/daemon.lock", "process-wide exclusive lock file")
	flags.String("sandbox-mode", "auto", "legacy scriptlet sandboxing: never, auto, always")
	flags.String("hash-algorithm", "sha256", "content hash algorithm: sha256 or xxh128")
	flags.Int64("cas-high-water-bytes", 10<<30, "CAS size that triggers eviction")
	flags.Int64("cas-low-water-bytes", 8<<30, "CAS size eviction runs down to")
	flags.Float64("bloom-false-positive-rate", 0.01, "target Bloom filter false-positive rate")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.Bool("log-json", false, "emit structured JSON logs")

	if err := v.BindPFlags(flags); err != nil {
		return fmt.Errorf("config: bind flags: %w", err)
	}
	return nil
}

// Load resolves the final configuration from v, which must already have
// flags bound via BindFlags. Viper's own precedence (explicit Set,
// flag, env, config file, default) governs which source wins.
func Load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("conary")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if v.ConfigFileUsed() == "" {
		v.SetConfigName("conary")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/conary")
		v.AddConfigPath("$HOME/.config/conary")
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("config: read config file: %w", err)
			}
		}
	}

	cfg := &Config{
		DBPath:                 v.GetString("db-path"),
		CASRoot:                v.GetString("cas-root"),
		InstallRoot:            v.GetString("install-root"),
		LockPath:               v.GetString("lock-path"),
		SandboxMode:            v.GetString("sandbox-mode"),
		HashAlgorithm:          v.GetString("hash-algorithm"),
		CASHighWaterBytes:      v.GetInt64("cas-high-water-bytes"),
		CASLowWaterBytes:       v.GetInt64("cas-low-water-bytes"),
		BloomFalsePositiveRate: v.GetFloat64("bloom-false-positive-rate"),
		LogLevel:               v.GetString("log-level"),
		LogJSON:                v.GetBool("log-json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.SandboxMode {
	case "never", "auto", "always":
	default:
		return fmt.Errorf("config: invalid sandbox-mode %q", c.SandboxMode)
	}
	switch c.HashAlgorithm {
	case "sha256", "xxh128":
	default:
		return fmt.Errorf("config: invalid hash-algorithm %q", c.HashAlgorithm)
	}
	if c.CASLowWaterBytes > c.CASHighWaterBytes {
		return fmt.Errorf("config: cas-low-water-bytes must not exceed cas-high-water-bytes")
	}
	return nil
}
