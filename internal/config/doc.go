// Package config provides loading and environment overlay for the tdiag
// engine configuration. It exposes a Default() baseline, file loading from
// JSON or YAML, and a TDIAG_* environment overlay.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/tdiag.yaml"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
package config
