// Package config loads the engine's on-disk TOML configuration, the same
// format and library (naoina/toml) go-ethereum's cmd/geth uses for its own
// config.toml.
package config

import (
	"fmt"
	"os"

	"github.com/naoina/toml"
)

// Config holds every tunable named across the component design: cache sizes,
// cluster identity, split/GC thresholds, and the data directory root.
type Config struct {
	// ClusterID identifies this process's writer cluster for revision
	// minting (§4.1).
	ClusterID uint32 `toml:"cluster_id"`

	// DataDir is the root directory for on-disk stores (segment FileStore,
	// LevelDB/Pebble document stores, journal).
	DataDir string `toml:"data_dir"`

	// SegmentCacheBytes bounds the SegmentCache (§4.4). Default 256 MiB.
	SegmentCacheBytes int64 `toml:"segment_cache_bytes"`

	// StringCacheBytes is decoded from the config file but no component
	// reads it; each segment's string cache (§4.3) uses a fixed 64 KiB
	// budget.
	StringCacheBytes int `toml:"string_cache_bytes"`

	// RevisionsSplitOffSize is the commit-marker-count split threshold
	// (§4.8), default 100.
	RevisionsSplitOffSize int `toml:"revisions_split_off_size"`

	// ForceSplitThresholdBytes is the estimated-memory split threshold
	// (§4.8), default 16 KiB.
	ForceSplitThresholdBytes int64 `toml:"force_split_threshold_bytes"`

	// GCIntervalSeconds is the cadence of the background segment GC /
	// document split workers.
	GCIntervalSeconds int `toml:"gc_interval_seconds"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `toml:"log_level"`
}

// Default returns a Config with the spec's stated defaults.
func Default() *Config {
	return &Config{
		ClusterID:                1,
		DataDir:                  "./data",
		SegmentCacheBytes:        256 << 20,
		StringCacheBytes:         32 << 20,
		RevisionsSplitOffSize:    100,
		ForceSplitThresholdBytes: 16 << 10,
		GCIntervalSeconds:        300,
		LogLevel:                 "info",
	}
}

// Load reads and decodes a TOML config file, overlaying it onto Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}
