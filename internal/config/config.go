// Package config loads the settings of the rofat command from a YAML file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/aligator/rofat"
)

// EnvPath names the environment variable which points to the config file
// if --config is not given.
const EnvPath = "ROFAT_CONFIG"

// Config is the content of the config file. Zero values are replaced by ApplyDefaults.
type Config struct {
	// UID and GID override the owner of all files. Default is the user running rofat.
	UID *uint32 `yaml:"uid"`
	GID *uint32 `yaml:"gid"`

	LogLevel string `yaml:"log_level"` // panic, fatal, error, warn, info, debug, trace

	FATCacheSize  int  `yaml:"fat_cache_size"`  // cached FAT sectors, -1 disables the cache
	PathCacheSize int  `yaml:"path_cache_size"` // resolved paths cached by the FUSE host
	SkipChecks    bool `yaml:"skip_checks"`

	// Timezone the timestamps on the volume are stored in, e.g. "Europe/Berlin" or "Local".
	Timezone string `yaml:"timezone"`

	Device DeviceConfig `yaml:"device"`
	Fuse   FuseConfig   `yaml:"fuse"`
	NFS    NFSConfig    `yaml:"nfs"`
}

type DeviceConfig struct {
	// NoLock disables the shared lock on the image.
	NoLock        bool          `yaml:"no_lock"`
	RetryAttempts uint          `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

type FuseConfig struct {
	// Options are passed to the FUSE library as -o options.
	Options    []string `yaml:"options"`
	AllowOther bool     `yaml:"allow_other"`
}

type NFSConfig struct {
	Listen          string `yaml:"listen"`
	HandleCacheSize int    `yaml:"handle_cache_size"`
}

// Default returns the configuration used without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-value fields with their defaults.
func (cfg *Config) ApplyDefaults() {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.FATCacheSize == 0 {
		cfg.FATCacheSize = rofat.DefaultFATCacheSize
	}
	if cfg.PathCacheSize == 0 {
		cfg.PathCacheSize = 4096
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	if cfg.Device.RetryAttempts == 0 {
		cfg.Device.RetryAttempts = 3
	}
	if cfg.Device.RetryDelay == 0 {
		cfg.Device.RetryDelay = 10 * time.Millisecond
	}
	if cfg.NFS.Listen == "" {
		cfg.NFS.Listen = "127.0.0.1:2049"
	}
	if cfg.NFS.HandleCacheSize == 0 {
		cfg.NFS.HandleCacheSize = 1024
	}
}

// Load reads the config file at path from fs.
// An empty path falls back to $ROFAT_CONFIG and then to Default.
func Load(fs afero.Fs, path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path == "" {
		return Default(), nil
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the values which cannot be checked by the YAML decoder.
func (cfg *Config) Validate() error {
	if _, err := cfg.Level(); err != nil {
		return err
	}
	if _, err := cfg.Location(); err != nil {
		return err
	}
	if cfg.PathCacheSize < 0 {
		return fmt.Errorf("path_cache_size must not be negative")
	}
	if cfg.NFS.HandleCacheSize < 0 {
		return fmt.Errorf("nfs.handle_cache_size must not be negative")
	}
	return nil
}

func (cfg *Config) Level() (logrus.Level, error) {
	return logrus.ParseLevel(strings.ToLower(cfg.LogLevel))
}

func (cfg *Config) Location() (*time.Location, error) {
	return time.LoadLocation(cfg.Timezone)
}

// VolumeOptions translates the config into the options for opening a volume.
func (cfg *Config) VolumeOptions(logger logrus.FieldLogger) ([]rofat.Option, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	cacheSize := cfg.FATCacheSize
	if cacheSize < 0 {
		cacheSize = 0
	}

	opts := []rofat.Option{
		rofat.WithLogger(logger),
		rofat.WithLocation(loc),
		rofat.WithFATCacheSize(cacheSize),
	}

	if cfg.UID != nil || cfg.GID != nil {
		uid, gid := uint32(os.Getuid()), uint32(os.Getgid())
		if cfg.UID != nil {
			uid = *cfg.UID
		}
		if cfg.GID != nil {
			gid = *cfg.GID
		}
		opts = append(opts, rofat.WithOwner(uid, gid))
	}

	return opts, nil
}
