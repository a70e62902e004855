// Package config loads the gateway's JSON configuration file, falling
// back to documented defaults whenever the file is missing or a field is
// omitted.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is the root configuration object.
type Config struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	Danmaku        DanmakuConfig `json:"danmaku"`
	MaxConnections int           `json:"max_connections"` // 0 = unlimited
	PerIPLimit     int           `json:"per_ip_limit"`    // 0 = unlimited
}

// DanmakuConfig configures the filter, upstream sources, and file paths
// the core reads on startup and on hot reload.
type DanmakuConfig struct {
	Upstream *UpstreamConfig `json:"upstream"`
	Satori   *SatoriConfig   `json:"satori"`
	Bilibili *BilibiliConfig `json:"bilibili"`

	// DedupWindow is seconds, defaulting to 5 when the key is absent from
	// the file entirely. This is a pointer rather than a plain int so an
	// explicit `"dedup_window": 0` (which disables tier-1 duplicate
	// suppression entirely) is distinguishable from an omitted key.
	DedupWindow        *int   `json:"dedup_window"`
	BlacklistWindow    int    `json:"blacklist_window"` // seconds, default 20
	BlacklistFile      string `json:"blacklist_file"`
	ForbiddenUsersFile string `json:"forbidden_users_file"`

	// SatoriColorSuffixAuthoritative is parsed from the file but no
	// component reads it: the Satori bridge always parses with the
	// parser's TrailingColorAuthoritative option set, and the Bilibili
	// bridge never does, whatever this field says.
	SatoriColorSuffixAuthoritative bool `json:"satori_color_suffix_authoritative"`
}

// UpstreamConfig configures the trusted control socket.
type UpstreamConfig struct {
	Token string `json:"token"`
}

// SatoriConfig configures the Satori-style chat bus bridge.
type SatoriConfig struct {
	Host     string            `json:"host"`
	Port     int               `json:"port"`
	Path     string            `json:"path"`
	Token    string            `json:"token"`
	GroupMap map[string]string `json:"group_map"`
}

// BilibiliConfig configures the Bilibili live-room bridge.
type BilibiliConfig struct {
	RoomIDs  map[string]string `json:"room_ids"`
	SessData string            `json:"sess_data"`
}

const (
	defaultHost            = "0.0.0.0"
	defaultPort            = 8080
	defaultDedupWindow     = 5
	defaultBlacklistWindow = 20
)

// Default returns a Config with every field at its documented default and
// no upstream sources configured.
func Default() Config {
	dw := defaultDedupWindow
	return Config{
		Host: defaultHost,
		Port: defaultPort,
		Danmaku: DanmakuConfig{
			DedupWindow:     &dw,
			BlacklistWindow: defaultBlacklistWindow,
		},
	}
}

// DedupWindowSeconds returns the effective dedup window, applying the
// default only when the config key was absent from the file.
func (d DanmakuConfig) DedupWindowSeconds() int {
	if d.DedupWindow == nil {
		return defaultDedupWindow
	}
	return *d.DedupWindow
}

// Load reads and parses the JSON configuration file at path. A missing
// file is not an error — Load returns Default() — but a present-and-
// unparsable file is, since that signals a typo the operator should fix
// rather than silently ignore. An empty host, a zero port and a zero
// blacklist_window in the parsed file fall back to their defaults; an
// explicit dedup_window of 0 is kept.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Host == "" {
		cfg.Host = defaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.Danmaku.BlacklistWindow == 0 {
		cfg.Danmaku.BlacklistWindow = defaultBlacklistWindow
	}

	return cfg, nil
}
