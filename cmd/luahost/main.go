package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/l1jgo/luahost/internal/config"
	"github.com/l1jgo/luahost/internal/data"
	"github.com/l1jgo/luahost/internal/host"
	"github.com/l1jgo/luahost/internal/persist"
	"github.com/l1jgo/luahost/internal/scripting"
	"github.com/l1jgo/luahost/internal/world"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// logSink prints script-queued UI messages through the logger; a real
// frontend would replace this.
type logSink struct{ log *zap.Logger }

func (s logSink) ShowMessage(text string) {
	s.log.Info("ui message", zap.String("text", text))
}

func run() error {
	// 1. Load config
	cfgPath := "config/luahost.toml"
	if p := os.Getenv("LUAHOST_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	// 3. Snapshot store: Postgres when a DSN is configured, files otherwise
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	var store persist.Store
	if cfg.Database.DSN != "" {
		db, err := persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			cancel()
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		if err := persist.RunMigrations(ctx, db.Pool); err != nil {
			cancel()
			return fmt.Errorf("migrations: %w", err)
		}
		store = persist.NewSnapshotRepo(db)
		log.Info("snapshot store ready", zap.String("backend", "postgres"))
	} else {
		fs, err := persist.NewFileStore(cfg.Snapshot.Path)
		if err != nil {
			cancel()
			return fmt.Errorf("snapshot store: %w", err)
		}
		store = fs
		log.Info("snapshot store ready",
			zap.String("backend", "file"), zap.String("path", cfg.Snapshot.Path))
	}
	cancel()

	// 4. Script configuration
	scriptList, err := data.LoadScriptList(cfg.Scripts.GlobalList)
	if err != nil {
		return fmt.Errorf("script list: %w", err)
	}
	contentFiles, err := data.LoadContentFiles(cfg.Scripts.ContentFiles)
	if err != nil {
		return fmt.Errorf("content files: %w", err)
	}
	log.Info("script configuration loaded",
		zap.Int("scripts", scriptList.Count()),
		zap.Int("contentFiles", len(contentFiles)))

	// 5. Scripting host
	env := scripting.NewEnvironment(cfg.Scripts.Dir, log)
	defer env.Close()
	view := world.NewView(world.NewRegistry(), cfg.Simulation.TimeScale)
	mgr := host.NewManager(env, view, scriptList, contentFiles, log)
	mgr.SetMessageSink(logSink{log})
	if err := mgr.Init(); err != nil {
		return fmt.Errorf("init scripting host: %w", err)
	}

	// 6. Resume from the latest snapshot, if any
	if err := loadSnapshot(store, cfg.Snapshot.Slot, mgr); err != nil {
		return err
	}

	// 7. Game loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Simulation.TickRate)
	defer ticker.Stop()

	log.Info("game loop started",
		zap.Duration("tick", cfg.Simulation.TickRate),
		zap.Duration("autosave", cfg.Simulation.AutosaveInterval))

	saveCounter := 0
	saveInterval := int(cfg.Simulation.AutosaveInterval / cfg.Simulation.TickRate)
	if saveInterval < 1 {
		saveInterval = 1
	}
	dt := cfg.Simulation.TickRate.Seconds()

	for {
		select {
		case <-ticker.C:
			if err := mgr.Update(false, dt); err != nil {
				return fmt.Errorf("update: %w", err)
			}
			mgr.ApplyQueuedChanges()

			saveCounter++
			if saveCounter >= saveInterval {
				saveCounter = 0
				if err := saveSnapshot(store, cfg.Snapshot.Slot, mgr); err != nil {
					log.Error("autosave failed", zap.Error(err))
				} else {
					log.Debug("autosave complete", zap.String("slot", cfg.Snapshot.Slot))
				}
			}
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			if err := saveSnapshot(store, cfg.Snapshot.Slot, mgr); err != nil {
				log.Error("final save failed", zap.Error(err))
			}
			log.Info("stopped")
			return nil
		}
	}
}

func loadSnapshot(store persist.Store, slot string, mgr *host.Manager) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	blob, err := store.Load(ctx, slot)
	if errors.Is(err, persist.ErrNoSnapshot) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if err := mgr.ReadRecord(bytes.NewReader(blob)); err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	return nil
}

func saveSnapshot(store persist.Store, slot string, mgr *host.Manager) error {
	var buf bytes.Buffer
	if err := mgr.WriteRecord(&buf); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return store.Save(ctx, slot, buf.Bytes())
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
