// Package config loads the game server's configuration from a YAML file with
// GAME_-prefixed environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable the game server reads at startup.
type Config struct {
	RPCUrl             string `yaml:"rpcUrl"`
	RPCWsUrl           string `yaml:"rpcWsUrl"`
	ContractAddress    string `yaml:"contractAddress"`
	OperatorPrivateKey string `yaml:"operatorPrivateKey"`
	ChainID            int64  `yaml:"chainId"`

	DBPath string `yaml:"dbPath"`

	KillProximityMeters     float64 `yaml:"killProximityMeters"`
	ZoneGraceSeconds        int     `yaml:"zoneGraceSeconds"`
	GpsPingIntervalSeconds  int     `yaml:"gpsPingIntervalSeconds"`
	BleRequired             bool    `yaml:"bleRequired"`

	HeartbeatIntervalSeconds int     `yaml:"heartbeatIntervalSeconds"`
	HeartbeatProximityMeters float64 `yaml:"heartbeatProximityMeters"`
	HeartbeatDisableThreshold int    `yaml:"heartbeatDisableThreshold"`

	CheckinDurationSeconds  int `yaml:"checkinDurationSeconds"`
	PregameDurationSeconds  int `yaml:"pregameDurationSeconds"`

	StartGameID uint64 `yaml:"startGameId"`
	RebuildDB   bool   `yaml:"rebuildDb"`

	WsHeartbeatCheckIntervalMs int `yaml:"wsHeartbeatCheckIntervalMs"`
	WsHeartbeatStaleMs         int `yaml:"wsHeartbeatStaleMs"`
	WsRestartCooldownMs        int `yaml:"wsRestartCooldownMs"`

	LogLevel string `yaml:"logLevel"`
}

// Default returns a Config populated with default values; callers load a
// file and/or env overrides on top of it.
func Default() Config {
	return Config{
		KillProximityMeters:        100,
		ZoneGraceSeconds:           60,
		GpsPingIntervalSeconds:     5,
		BleRequired:                true,
		HeartbeatIntervalSeconds:   600,
		HeartbeatProximityMeters:   100,
		HeartbeatDisableThreshold:  4,
		CheckinDurationSeconds:     300,
		PregameDurationSeconds:     180,
		StartGameID:                1,
		RebuildDB:                  false,
		WsHeartbeatCheckIntervalMs: 30_000,
		WsHeartbeatStaleMs:         120_000,
		WsRestartCooldownMs:        30_000,
		LogLevel:                   "info",
	}
}

// Load reads path (if non-empty) over the defaults, then applies any
// GAME_-prefixed environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverrides maps GAME_<KEY> environment variables onto Config fields.
// Only scalar fields are supported; it mirrors the pattern used by most
// of the pack's config loaders (YAML base + env override, no reflection
// magic).
func applyEnvOverrides(cfg *Config) {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv("GAME_" + key); ok {
			*dst = v
		}
	}
	i := func(key string, dst *int) {
		if v, ok := os.LookupEnv("GAME_" + key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	u64 := func(key string, dst *uint64) {
		if v, ok := os.LookupEnv("GAME_" + key); ok {
			if n, err := strconv.ParseUint(v, 10, 64); err == nil {
				*dst = n
			}
		}
	}
	i64 := func(key string, dst *int64) {
		if v, ok := os.LookupEnv("GAME_" + key); ok {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				*dst = n
			}
		}
	}
	f := func(key string, dst *float64) {
		if v, ok := os.LookupEnv("GAME_" + key); ok {
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = n
			}
		}
	}
	b := func(key string, dst *bool) {
		if v, ok := os.LookupEnv("GAME_" + key); ok {
			*dst = strings.EqualFold(v, "true") || v == "1"
		}
	}

	str("RPC_URL", &cfg.RPCUrl)
	str("RPC_WS_URL", &cfg.RPCWsUrl)
	str("CONTRACT_ADDRESS", &cfg.ContractAddress)
	str("OPERATOR_PRIVATE_KEY", &cfg.OperatorPrivateKey)
	i64("CHAIN_ID", &cfg.ChainID)
	str("DB_PATH", &cfg.DBPath)
	f("KILL_PROXIMITY_METERS", &cfg.KillProximityMeters)
	i("ZONE_GRACE_SECONDS", &cfg.ZoneGraceSeconds)
	i("GPS_PING_INTERVAL_SECONDS", &cfg.GpsPingIntervalSeconds)
	b("BLE_REQUIRED", &cfg.BleRequired)
	i("HEARTBEAT_INTERVAL_SECONDS", &cfg.HeartbeatIntervalSeconds)
	f("HEARTBEAT_PROXIMITY_METERS", &cfg.HeartbeatProximityMeters)
	i("HEARTBEAT_DISABLE_THRESHOLD", &cfg.HeartbeatDisableThreshold)
	i("CHECKIN_DURATION_SECONDS", &cfg.CheckinDurationSeconds)
	i("PREGAME_DURATION_SECONDS", &cfg.PregameDurationSeconds)
	u64("START_GAME_ID", &cfg.StartGameID)
	b("REBUILD_DB", &cfg.RebuildDB)
	i("WS_HEARTBEAT_CHECK_INTERVAL_MS", &cfg.WsHeartbeatCheckIntervalMs)
	i("WS_HEARTBEAT_STALE_MS", &cfg.WsHeartbeatStaleMs)
	i("WS_RESTART_COOLDOWN_MS", &cfg.WsRestartCooldownMs)
	str("LOG_LEVEL", &cfg.LogLevel)
}

// Validate fails fast on missing required fields.
func (c Config) Validate() error {
	var missing []string
	if c.RPCUrl == "" {
		missing = append(missing, "rpcUrl")
	}
	if c.ContractAddress == "" {
		missing = append(missing, "contractAddress")
	}
	if c.OperatorPrivateKey == "" {
		missing = append(missing, "operatorPrivateKey")
	}
	if c.DBPath == "" {
		missing = append(missing, "dbPath")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c Config) KillProximity() float64        { return c.KillProximityMeters }
func (c Config) ZoneGrace() time.Duration       { return time.Duration(c.ZoneGraceSeconds) * time.Second }
func (c Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSeconds) * time.Second
}
func (c Config) CheckinDuration() time.Duration {
	return time.Duration(c.CheckinDurationSeconds) * time.Second
}
func (c Config) PregameDuration() time.Duration {
	return time.Duration(c.PregameDurationSeconds) * time.Second
}
func (c Config) WsHeartbeatStale() time.Duration {
	return time.Duration(c.WsHeartbeatStaleMs) * time.Millisecond
}
func (c Config) WsRestartCooldown() time.Duration {
	return time.Duration(c.WsRestartCooldownMs) * time.Millisecond
}
