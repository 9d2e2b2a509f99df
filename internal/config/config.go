package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/TimelyDataflow/diagnostics/pkg/log"
)

// Config is the top-level configuration loaded from file/env and finished by
// command-line flags.
type Config struct {
	// Interface is the local address the engine listens on for source peers.
	Interface string `json:"interface" yaml:"interface"`
	// Port is the listen port for dataflow lifecycle events.
	Port int `json:"port" yaml:"port"`
	// ArrangementsPort, when non-zero, accepts arrangement deltas on a
	// dedicated second listener.
	ArrangementsPort int `json:"arrangementsPort" yaml:"arrangementsPort"`
	// SourcePeers is the number of workers in the analyzed computation.
	SourcePeers int `json:"sourcePeers" yaml:"sourcePeers"`
	// SnapshotInterval is the arrangement size sampling cadence, accepted in
	// Go duration syntax ("1s", "500ms").
	SnapshotInterval Duration `json:"snapshotInterval" yaml:"snapshotInterval"`
	// MaxFrameBytes bounds a single event frame body.
	MaxFrameBytes int `json:"maxFrameBytes" yaml:"maxFrameBytes"`
	// SeriesPath persists arrangement size series on disk when set.
	SeriesPath string `json:"seriesPath" yaml:"seriesPath"`
	// Filter is a CEL expression selecting which arrangement rows to emit.
	Filter string `json:"filter" yaml:"filter"`
	Log    log.Config `json:"log" yaml:"log"`
}

// Duration is a time.Duration that marshals as Go duration syntax instead of
// integer nanoseconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// integer nanoseconds still accepted
		var n int64
		if err2 := json.Unmarshal(b, &n); err2 != nil {
			return err
		}
		*d = Duration(n)
		return nil
	}
	return d.parse(s)
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: bad duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Default returns built-in defaults matching the conventional timely
// diagnostics endpoint.
func Default() Config {
	return Config{
		Interface:        "127.0.0.1",
		Port:             51317,
		SourcePeers:      1,
		SnapshotInterval: Duration(time.Second),
		Log:              log.Config{Level: "info", Format: "text"},
	}
}

// ListenAddr is the primary listen address in host:port form.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Interface, strconv.Itoa(c.Port))
}

// ArrangementsAddr is the delta listen address, or empty when no dedicated
// listener is configured.
func (c Config) ArrangementsAddr() string {
	if c.ArrangementsPort == 0 {
		return ""
	}
	return net.JoinHostPort(c.Interface, strconv.Itoa(c.ArrangementsPort))
}

// Validate rejects configurations no session could run with.
func (c Config) Validate() error {
	if c.SourcePeers <= 0 {
		return fmt.Errorf("config: source peers must be positive, got %d", c.SourcePeers)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.ArrangementsPort < 0 || c.ArrangementsPort > 65535 {
		return fmt.Errorf("config: arrangements port %d out of range", c.ArrangementsPort)
	}
	if c.SnapshotInterval < 0 {
		return fmt.Errorf("config: snapshot interval must not be negative")
	}
	return nil
}

// Load reads configuration from a JSON or YAML file (by extension). If path
// is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, nil
}
