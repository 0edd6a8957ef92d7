// Package config loads parcad settings from a TOML file.
//
// Every key is optional; keys that are absent keep their default.
//
//	replica      = "laptop"          # replica id; empty picks a random one
//	database     = "parcad.db"       # SQLite update log
//	units        = "mm"              # units of newly created documents
//	rebuild_mode = "gated"           # gated | full
//	log_level    = "info"            # debug | info | warn | error
//
//	[tolerance]
//	distance   = 0.5
//	normal_dot = 0.99
//	size_ratio = 0.1
package config

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"github.com/roach88/parcad/internal/crdt"
	"github.com/roach88/parcad/internal/document"
	"github.com/roach88/parcad/internal/naming"
	"github.com/roach88/parcad/internal/rebuild"
)

// Config is the resolved configuration.
type Config struct {
	Replica     crdt.ReplicaID
	Database    string
	Units       string
	RebuildMode rebuild.Mode
	LogLevel    slog.Level
	Tolerance   naming.Tolerance
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Database:    "parcad.db",
		Units:       "mm",
		RebuildMode: rebuild.ModeGated,
		LogLevel:    slog.LevelInfo,
		Tolerance:   naming.DefaultTolerance(),
	}
}

type fileTolerance struct {
	Distance  float64 `toml:"distance"`
	NormalDot float64 `toml:"normal_dot"`
	SizeRatio float64 `toml:"size_ratio"`
}

type fileConfig struct {
	Replica     string        `toml:"replica"`
	Database    string        `toml:"database"`
	Units       string        `toml:"units"`
	RebuildMode string        `toml:"rebuild_mode"`
	LogLevel    string        `toml:"log_level"`
	Tolerance   fileTolerance `toml:"tolerance"`
}

// Load reads path over the defaults. An empty path returns Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("replica") {
		cfg.Replica = crdt.ReplicaID(strings.TrimSpace(raw.Replica))
		if cfg.Replica != "" {
			if err := cfg.Replica.Validate(); err != nil {
				return Config{}, fmt.Errorf("parse replica: %w", err)
			}
		}
	}

	if meta.IsDefined("database") {
		cfg.Database = strings.TrimSpace(raw.Database)
	}

	if meta.IsDefined("units") {
		units := strings.TrimSpace(raw.Units)
		if !slices.Contains(document.Units, units) {
			return Config{}, fmt.Errorf("parse units: %q is not one of %v", units, document.Units)
		}
		cfg.Units = units
	}

	if meta.IsDefined("rebuild_mode") {
		mode, ok := rebuild.ParseMode(strings.TrimSpace(raw.RebuildMode))
		if !ok {
			return Config{}, fmt.Errorf("parse rebuild_mode: %q is not gated or full", raw.RebuildMode)
		}
		cfg.RebuildMode = mode
	}

	if meta.IsDefined("log_level") {
		if err := cfg.LogLevel.UnmarshalText([]byte(strings.TrimSpace(raw.LogLevel))); err != nil {
			return Config{}, fmt.Errorf("parse log_level: %w", err)
		}
	}

	if meta.IsDefined("tolerance", "distance") {
		cfg.Tolerance.Distance = raw.Tolerance.Distance
	}
	if meta.IsDefined("tolerance", "normal_dot") {
		cfg.Tolerance.NormalDot = raw.Tolerance.NormalDot
	}
	if meta.IsDefined("tolerance", "size_ratio") {
		cfg.Tolerance.SizeRatio = raw.Tolerance.SizeRatio
	}
	if err := validateTolerance(cfg.Tolerance); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateTolerance(t naming.Tolerance) error {
	fields := []struct {
		name string
		v    float64
	}{{"distance", t.Distance}, {"normal_dot", t.NormalDot}, {"size_ratio", t.SizeRatio}}
	for _, f := range fields {
		name, v := f.name, f.v
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("parse tolerance.%s: must be a finite non-negative number", name)
		}
	}
	if t.NormalDot > 1 {
		return fmt.Errorf("parse tolerance.normal_dot: must be at most 1")
	}
	return nil
}

// ReplicaID returns the configured replica, or a fresh random one.
func (c Config) ReplicaID() crdt.ReplicaID {
	if c.Replica != "" {
		return c.Replica
	}
	return crdt.ReplicaID(uuid.NewString())
}
