package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Host != defaultHost || cfg.Port != defaultPort {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Danmaku.DedupWindowSeconds() != defaultDedupWindow {
		t.Fatalf("want default dedup window, got %d", cfg.Danmaku.DedupWindowSeconds())
	}
	if cfg.Danmaku.BlacklistWindow != defaultBlacklistWindow {
		t.Fatalf("want default blacklist window, got %d", cfg.Danmaku.BlacklistWindow)
	}
}

func TestLoadInvalidJSONReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("want error on malformed config file")
	}
}

func TestLoadExplicitZeroDedupWindowDisablesTier1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"danmaku": {"dedup_window": 0}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Danmaku.DedupWindowSeconds() != 0 {
		t.Fatalf("want explicit 0 preserved (disables tier-1), got %d", cfg.Danmaku.DedupWindowSeconds())
	}
}

func TestLoadPartialConfigFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"port": 9090, "danmaku": {"blacklist_file": "bl.txt"}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 9090 {
		t.Fatalf("want explicit port honored, got %d", cfg.Port)
	}
	if cfg.Host != defaultHost {
		t.Fatalf("want default host, got %q", cfg.Host)
	}
	if cfg.Danmaku.BlacklistFile != "bl.txt" {
		t.Fatalf("want explicit blacklist file honored, got %q", cfg.Danmaku.BlacklistFile)
	}
	if cfg.Danmaku.DedupWindowSeconds() != defaultDedupWindow {
		t.Fatalf("want default dedup window when key absent, got %d", cfg.Danmaku.DedupWindowSeconds())
	}
}

func TestLoadFullConfigWithUpstreamAndSatori(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"host": "127.0.0.1",
		"port": 9999,
		"danmaku": {
			"upstream": {"token": "secret"},
			"satori": {"host": "sat.local", "port": 1234, "path": "/ws", "token": "t", "group_map": {"src": "dst"}},
			"bilibili": {"room_ids": {"123": "chan"}, "sess_data": "cookie"},
			"dedup_window": 7,
			"blacklist_window": 30,
			"blacklist_file": "patterns.txt",
			"forbidden_users_file": "forbidden.txt",
			"satori_color_suffix_authoritative": true
		}
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Danmaku.Upstream == nil || cfg.Danmaku.Upstream.Token != "secret" {
		t.Fatalf("unexpected upstream config: %+v", cfg.Danmaku.Upstream)
	}
	if cfg.Danmaku.Satori == nil || cfg.Danmaku.Satori.GroupMap["src"] != "dst" {
		t.Fatalf("unexpected satori config: %+v", cfg.Danmaku.Satori)
	}
	if cfg.Danmaku.Bilibili == nil || cfg.Danmaku.Bilibili.RoomIDs["123"] != "chan" {
		t.Fatalf("unexpected bilibili config: %+v", cfg.Danmaku.Bilibili)
	}
	if cfg.Danmaku.DedupWindowSeconds() != 7 || cfg.Danmaku.BlacklistWindow != 30 {
		t.Fatalf("unexpected windows: %+v", cfg.Danmaku)
	}
	if !cfg.Danmaku.SatoriColorSuffixAuthoritative {
		t.Fatal("want satori_color_suffix_authoritative honored")
	}
}
