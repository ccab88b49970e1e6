package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"cabinet/api"
	"cabinet/api/notifyhub"
	"cabinet/listing"
	"cabinet/tool"
	"cabinet/treeop"
	"cabinet/upload"
)

func main() {
	cfg := tool.SetFlags()
	appCfg, err := tool.LoadConfig(cfg.UseConfigPath)
	if err != nil {
		tool.DefaultLogger.Fatalf("%v", err)
	}
	if cfg.UseDataDir != "" {
		appCfg.DataDir = cfg.UseDataDir
	}
	if cfg.UsePort > 0 {
		appCfg.Port = cfg.UsePort
	}

	tool.InitLogger()
	switch strings.ToLower(cfg.Log) {
	case "", "dev":
		tool.DefaultLogger.SetLevel(log.DebugLevel)
	case "prod":
		tool.DefaultLogger.SetLevel(log.InfoLevel)
	case "none":
		tool.DefaultLogger.SetLevel(log.FatalLevel)
	default:
		tool.DefaultLogger.Warnf("Unknown log mode %q, using debug level", cfg.Log)
		tool.DefaultLogger.SetLevel(log.DebugLevel)
	}

	if err := os.MkdirAll(appCfg.DataDir, 0o755); err != nil {
		tool.DefaultLogger.Fatalf("Failed to create data directory %s: %v", appCfg.DataDir, err)
	}
	rootFor := func(owner string) string {
		return filepath.Join(appCfg.DataDir, owner)
	}

	hub := notifyhub.New()
	cache := listing.New(time.Duration(appCfg.ListingTTLSeconds) * time.Second)

	store := upload.NewSessionStore(upload.StoreOptions{
		SessionTTL:     time.Duration(appCfg.SessionTTLSeconds) * time.Second,
		SweepInterval:  time.Duration(appCfg.SweepIntervalSec) * time.Second,
		Grace:          time.Duration(appCfg.SessionGraceSeconds) * time.Second,
		MaxPerOwner:    appCfg.MaxSessionsPerOwner,
		MaxFilesPerSes: appCfg.MaxFilesPerSession,
	})
	store.Start()
	defer store.Stop()

	coordinator := upload.NewCoordinator(store, appCfg.MaxChunkStreams, rootFor, hub, cache)

	engine := treeop.New(treeop.Clamps{
		MaxDepth:      appCfg.MaxTreeDepth,
		MaxFiles:      appCfg.MaxTreeFiles,
		MaxDuration:   time.Duration(appCfg.MaxTreeMillis) * time.Millisecond,
		MaxZipEntries: appCfg.MaxZipEntries,
	}, rootFor, hub, cache)

	server := api.NewServer(appCfg, coordinator, engine, cache, hub, rootFor)
	go func() {
		if err := server.Start(); err != nil {
			tool.DefaultLogger.Fatalf("API server startup failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	tool.DefaultLogger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		tool.DefaultLogger.Errorf("Shutdown error: %v", err)
	}
}
