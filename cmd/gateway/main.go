// Command gateway starts the danmaku gateway: it loads configuration,
// wires the blacklist, dedup/pipeline, registry, audit log, and emoji
// cache together, starts any configured upstream bridges, and serves the
// HTTP/WebSocket API until an interrupt signal requests a graceful
// shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"danmaku-gateway/internal/audit"
	"danmaku-gateway/internal/blacklist"
	"danmaku-gateway/internal/bridge"
	"danmaku-gateway/internal/config"
	"danmaku-gateway/internal/emoji"
	"danmaku-gateway/internal/httpapi"
	"danmaku-gateway/internal/limits"
	"danmaku-gateway/internal/pipeline"
	"danmaku-gateway/internal/registry"
)

const metricsInterval = 30 * time.Second

func main() {
	configPath := flag.String("config", "config.json", "path to the gateway's JSON configuration file")
	addr := flag.String("addr", "", "listen address, overriding the config file's host:port")
	auditDBPath := flag.String("audit-db", "audit.db", "path to the moderation audit log's SQLite database")
	version := flag.Bool("version", false, "print the gateway version and exit")
	flag.Parse()

	if *version {
		fmt.Println(httpapi.Version)
		return
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "path", *configPath, "err", err)
		os.Exit(1)
	}

	listenAddr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	if *addr != "" {
		listenAddr = *addr
	}

	bl := blacklist.New(cfg.Danmaku.BlacklistFile, cfg.Danmaku.ForbiddenUsersFile)
	watcher, err := blacklist.StartWatcher(bl)
	if err != nil {
		slog.Error("start blacklist watcher", "err", err)
		os.Exit(1)
	}

	auditLog, err := audit.Open(*auditDBPath)
	if err != nil {
		slog.Error("open audit log", "path", *auditDBPath, "err", err)
		os.Exit(1)
	}
	defer auditLog.Close()

	watcher.OnReload(func(path string, reloadErr error) {
		detail := path
		if reloadErr != nil {
			detail = fmt.Sprintf("%s: %v", path, reloadErr)
		}
		if err := auditLog.Record("reload", "", detail); err != nil {
			slog.Error("record reload audit entry", "err", err)
		}
	})

	reg := registry.New(watcher.Stop)

	dedupWindow := time.Duration(cfg.Danmaku.DedupWindowSeconds()) * time.Second
	blacklistWindow := time.Duration(cfg.Danmaku.BlacklistWindow) * time.Second
	pl := pipeline.New(reg, bl, dedupWindow, blacklistWindow)
	pl.SetAudit(auditLog)

	emojiCache := emoji.NewCache(emoji.TTL, emoji.MaxEntries)
	emojiLimiter := emoji.NewLimiter(emoji.GlobalConcurrency, emoji.PerUserConcurrency)
	emojiSvc := emoji.NewService(emojiCache, emojiLimiter, &http.Client{Timeout: 30 * time.Second})

	connLimits := limits.New(cfg.MaxConnections, cfg.PerIPLimit)

	upstreamToken := ""
	if cfg.Danmaku.Upstream != nil {
		upstreamToken = cfg.Danmaku.Upstream.Token
	}

	server := httpapi.New(reg, pl, bl, emojiSvc, emojiCache, auditLog, connLimits, upstreamToken)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go emojiSvc.StartMaintenance(emoji.MaintenanceInterval, ctx.Done())
	go runMetrics(ctx, reg, pl, metricsInterval)

	if cfg.Danmaku.Satori != nil {
		go bridge.NewSatoriBridge(cfg.Danmaku.Satori, pl, emojiSvc).Run(ctx)
	}
	if cfg.Danmaku.Bilibili != nil {
		go bridge.NewBilibiliBridge(cfg.Danmaku.Bilibili, pl).Run(ctx)
	}

	slog.Info("gateway starting", "addr", listenAddr, "version", httpapi.Version)
	if err := server.Run(ctx, listenAddr); err != nil {
		slog.Error("http server failed", "err", err)
		reg.DisconnectAll()
		os.Exit(1)
	}

	reg.DisconnectAll()
	slog.Info("gateway stopped")
}

// runMetrics logs a summary line every interval until ctx is cancelled,
// skipping intervals with nothing to report.
func runMetrics(ctx context.Context, reg *registry.Registry, pl *pipeline.Pipeline, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			broadcast, blocked := pl.Stats()
			viewers := 0
			for _, n := range reg.ViewerCounts() {
				viewers += n
			}
			upstreams := reg.UpstreamCount()
			if viewers > 0 || upstreams > 0 || broadcast > 0 || blocked > 0 {
				slog.Info("metrics",
					"viewers", viewers,
					"upstreams", upstreams,
					"broadcast", broadcast,
					"blocked", blocked)
			}
		}
	}
}
