package config

import (
	"os"
	"strconv"
	"time"
)

// FromEnv overlays TDIAG_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("TDIAG_INTERFACE"); v != "" {
		cfg.Interface = v
	}
	if v := os.Getenv("TDIAG_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("TDIAG_ARRANGEMENTS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ArrangementsPort = n
		}
	}
	if v := os.Getenv("TDIAG_SOURCE_PEERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SourcePeers = n
		}
	}
	if v := os.Getenv("TDIAG_SNAPSHOT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SnapshotInterval = Duration(d)
		}
	}
	if v := os.Getenv("TDIAG_MAX_FRAME_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxFrameBytes = n
		}
	}
	if v := os.Getenv("TDIAG_SERIES_PATH"); v != "" {
		cfg.SeriesPath = v
	}
	if v := os.Getenv("TDIAG_FILTER"); v != "" {
		cfg.Filter = v
	}
	if v := os.Getenv("TDIAG_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("TDIAG_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}
