package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Interface != "127.0.0.1" {
		t.Fatalf("default interface = %q", cfg.Interface)
	}
	if cfg.Port != 51317 {
		t.Fatalf("default port = %d", cfg.Port)
	}
	if cfg.SourcePeers != 1 {
		t.Fatalf("default source peers = %d", cfg.SourcePeers)
	}
	if cfg.SnapshotInterval.Std() != time.Second {
		t.Fatalf("default snapshot interval = %v", cfg.SnapshotInterval.Std())
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestListenAddrs(t *testing.T) {
	cfg := Default()
	if got := cfg.ListenAddr(); got != "127.0.0.1:51317" {
		t.Fatalf("listen addr = %q", got)
	}
	if got := cfg.ArrangementsAddr(); got != "" {
		t.Fatalf("arrangements addr without port = %q", got)
	}
	cfg.ArrangementsPort = 51318
	if got := cfg.ArrangementsAddr(); got != "127.0.0.1:51318" {
		t.Fatalf("arrangements addr = %q", got)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "tdiag.json")
	data := []byte(`{"interface":"0.0.0.0","port":9000,"sourcePeers":4,"snapshotInterval":"250ms","log":{"level":"debug"}}`)
	if err := os.WriteFile(file, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Interface != "0.0.0.0" || cfg.Port != 9000 || cfg.SourcePeers != 4 {
		t.Fatalf("loaded %+v", cfg)
	}
	if cfg.SnapshotInterval.Std() != 250*time.Millisecond {
		t.Fatalf("snapshot interval = %v", cfg.SnapshotInterval.Std())
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("log level = %q", cfg.Log.Level)
	}
	// untouched fields keep their defaults
	if cfg.Log.Format != "text" {
		t.Fatalf("log format = %q", cfg.Log.Format)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "tdiag.yaml")
	data := []byte("interface: 10.0.0.1\nport: 7000\nsourcePeers: 2\nsnapshotInterval: 2s\nfilter: \"count > 10\"\n")
	if err := os.WriteFile(file, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Interface != "10.0.0.1" || cfg.Port != 7000 || cfg.SourcePeers != 2 {
		t.Fatalf("loaded %+v", cfg)
	}
	if cfg.SnapshotInterval.Std() != 2*time.Second {
		t.Fatalf("snapshot interval = %v", cfg.SnapshotInterval.Std())
	}
	if cfg.Filter != "count > 10" {
		t.Fatalf("filter = %q", cfg.Filter)
	}
}

func TestLoadBadDuration(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "tdiag.yaml")
	if err := os.WriteFile(file, []byte("snapshotInterval: soon\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(file); err == nil {
		t.Fatalf("expected a duration parse error")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.SourcePeers = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("zero source peers must not validate")
	}
	cfg = Default()
	cfg.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("out-of-range port must not validate")
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	t.Setenv("TDIAG_INTERFACE", "0.0.0.0")
	t.Setenv("TDIAG_SOURCE_PEERS", "8")
	t.Setenv("TDIAG_SNAPSHOT_INTERVAL", "5s")
	t.Setenv("TDIAG_LOG_LEVEL", "warn")
	FromEnv(&cfg)
	if cfg.Interface != "0.0.0.0" {
		t.Fatalf("env interface = %q", cfg.Interface)
	}
	if cfg.SourcePeers != 8 {
		t.Fatalf("env source peers = %d", cfg.SourcePeers)
	}
	if cfg.SnapshotInterval.Std() != 5*time.Second {
		t.Fatalf("env snapshot interval = %v", cfg.SnapshotInterval.Std())
	}
	if cfg.Log.Level != "warn" {
		t.Fatalf("env log level = %q", cfg.Log.Level)
	}
}
