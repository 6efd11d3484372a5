// Package config defines the structures the sync engine and daemon loop
// consume from the (out-of-scope) configuration collaborator, plus a
// read-only loader built on viper for the daemon's own startup and
// 60-second reload tick. Designing the on-disk config UX is explicitly a
// collaborator's job; reading it back is not.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/panyam/goutils/utils"
	"github.com/spf13/viper"
)

// BackendKind tags which storage.Backend a StorageConfig selects.
type BackendKind string

const (
	BackendS3          BackendKind = "s3"
	BackendLocal       BackendKind = "local"
	BackendGoogleDrive BackendKind = "googledrive" // reserved, unimplemented
	BackendWebDAV      BackendKind = "webdav"       // reserved, unimplemented
)

// AutoPinStrategy names one of the five auto-pin policies a new version
// is checked against.
type AutoPinStrategy string

const (
	AutoPinNone           AutoPinStrategy = "none"
	AutoPinDaily          AutoPinStrategy = "daily"
	AutoPinWeekly         AutoPinStrategy = "weekly"
	AutoPinMonthly        AutoPinStrategy = "monthly"
	AutoPinOnMajorChanges AutoPinStrategy = "on_major_changes"
)

// S3Config carries the object-store-specific connection fields.
type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// LocalConfig carries the local-filesystem-backend-specific fields.
type LocalConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// StorageConfig is the "StorageConfig" of spec.md §6.
type StorageConfig struct {
	Backend                  BackendKind `mapstructure:"backend"`
	S3                       S3Config    `mapstructure:"s3"`
	Local                    LocalConfig `mapstructure:"local"`
	ConnectionTimeoutSeconds int         `mapstructure:"connection_timeout_seconds"`
	RetryAttempts            int         `mapstructure:"retry_attempts"` // reserved; engine does not retry
	EnableCompression        bool        `mapstructure:"enable_compression"`
	EncryptionEnabled        bool        `mapstructure:"encryption_enabled"`
}

// ConnectionTimeout returns the configured timeout, defaulting to 30s.
func (s StorageConfig) ConnectionTimeout() time.Duration {
	if s.ConnectionTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.ConnectionTimeoutSeconds) * time.Second
}

// VersionConfig is the "VersionConfig" of spec.md §4.2/§6.
type VersionConfig struct {
	MaxVersionsPerFile int             `mapstructure:"max_versions_per_file"`
	MaxVersionAgeDays  int             `mapstructure:"max_version_age_days"`
	KeepPinnedVersions bool            `mapstructure:"keep_pinned_versions"`
	AutoPinStrategy    AutoPinStrategy `mapstructure:"auto_pin_strategy"`
}

// DefaultVersionConfig returns the defaults named in spec.md §4.2.
func DefaultVersionConfig() VersionConfig {
	return VersionConfig{
		MaxVersionsPerFile: 10,
		MaxVersionAgeDays:  30,
		KeepPinnedVersions: true,
		AutoPinStrategy:    AutoPinWeekly,
	}
}

// GameConfig describes one game's sync settings, per spec.md §6.
type GameConfig struct {
	Name        string   `mapstructure:"name"`
	SavePaths   []string `mapstructure:"save_paths"`
	SyncEnabled bool     `mapstructure:"sync_enabled"`
}

// ExpandedSavePaths returns SavePaths with '~' expanded against the
// current user's home directory.
func (g GameConfig) ExpandedSavePaths() []string {
	out := make([]string, len(g.SavePaths))
	for i, p := range g.SavePaths {
		out[i] = utils.ExpandUserPath(p)
	}
	return out
}

// Config is the top-level sync configuration consumed from the
// collaborator, per spec.md §6.
type Config struct {
	Games   map[string]GameConfig `mapstructure:"games"`
	Storage StorageConfig         `mapstructure:"storage"`
	Version VersionConfig         `mapstructure:"version"`
}

// Load reads configuration from path (if non-empty), $HOME/.savevault.yaml
// otherwise, layered with SAVEVAULT_-prefixed environment variables,
// mirroring the teacher's own viper layering convention
// (cmd/cli/cmd/root.go's initConfig).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		v.AddConfigPath(home)
		v.SetConfigName(".savevault")
	}

	v.SetEnvPrefix("SAVEVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.Version.MaxVersionsPerFile == 0 {
		cfg.Version = mergeVersionDefaults(cfg.Version)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultVersionConfig()
	v.SetDefault("version.max_versions_per_file", d.MaxVersionsPerFile)
	v.SetDefault("version.max_version_age_days", d.MaxVersionAgeDays)
	v.SetDefault("version.keep_pinned_versions", d.KeepPinnedVersions)
	v.SetDefault("version.auto_pin_strategy", string(d.AutoPinStrategy))
	v.SetDefault("storage.connection_timeout_seconds", 30)
	v.SetDefault("storage.retry_attempts", 3)
}

func mergeVersionDefaults(v VersionConfig) VersionConfig {
	d := DefaultVersionConfig()
	if v.MaxVersionsPerFile == 0 {
		v.MaxVersionsPerFile = d.MaxVersionsPerFile
	}
	if v.MaxVersionAgeDays == 0 {
		v.MaxVersionAgeDays = d.MaxVersionAgeDays
	}
	if v.AutoPinStrategy == "" {
		v.AutoPinStrategy = d.AutoPinStrategy
	}
	return v
}
