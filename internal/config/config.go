package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server     ServerConfig     `toml:"server"`
	Database   DatabaseConfig   `toml:"database"`
	Scripts    ScriptsConfig    `toml:"scripts"`
	Simulation SimulationConfig `toml:"simulation"`
	Snapshot   SnapshotConfig   `toml:"snapshot"`
	Logging    LoggingConfig    `toml:"logging"`
}

type ServerConfig struct {
	Name      string `toml:"name"`
	StartTime int64  // set at boot, not from config
}

// DatabaseConfig selects the snapshot backend. An empty DSN switches the
// host to the file store.
type DatabaseConfig struct {
	DSN             string        `toml:"dsn"`
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
}

type ScriptsConfig struct {
	Dir          string `toml:"dir"`           // root directory script paths resolve against
	GlobalList   string `toml:"global_list"`   // yaml list of global scripts
	ContentFiles string `toml:"content_files"` // yaml list of content files, load order
}

type SimulationConfig struct {
	TickRate         time.Duration `toml:"tick_rate"`
	TimeScale        float64       `toml:"time_scale"` // game seconds per real second
	AutosaveInterval time.Duration `toml:"autosave_interval"`
}

type SnapshotConfig struct {
	Path string `toml:"path"` // file store directory
	Slot string `toml:"slot"`
	Keep int    `toml:"keep"` // db snapshots retained per slot
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Server.StartTime = time.Now().Unix()
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Name: "luahost",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Scripts: ScriptsConfig{
			Dir:          "scripts",
			GlobalList:   "scripts/global.yaml",
			ContentFiles: "scripts/content.yaml",
		},
		Simulation: SimulationConfig{
			TickRate:         50 * time.Millisecond,
			TimeScale:        30,
			AutosaveInterval: 5 * time.Minute,
		},
		Snapshot: SnapshotConfig{
			Path: "snapshots",
			Slot: "main",
			Keep: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
