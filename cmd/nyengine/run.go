package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nyengine/nyengine/internal/config"
	"github.com/nyengine/nyengine/internal/core/ecs"
	"github.com/nyengine/nyengine/internal/core/event"
	coresys "github.com/nyengine/nyengine/internal/core/system"
	"github.com/nyengine/nyengine/internal/persist"
	"github.com/nyengine/nyengine/internal/scripting"
	"github.com/nyengine/nyengine/internal/system"
	"github.com/nyengine/nyengine/internal/vars"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [level]",
		Short: "Load a level and run the frame loop until interrupted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			level := cfg.Script.StartLevel
			if len(args) == 1 {
				level = args[0]
			}
			return run(cfg, log, level)
		},
	}
}

func run(cfg *config.Config, log *zap.Logger, level string) error {
	// 1. Vars
	printSection("vars")
	reg := vars.NewRegistry(0)
	n, err := vars.LoadDefaults(cfg.Vars.DefaultsFile, reg)
	if err != nil {
		return err
	}
	printStat("defaults", n)

	// 2. Saved vars
	var (
		repo     *persist.VarRepo
		restored []persist.VarRow
	)
	if cfg.Database.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		db, err := persist.Open(ctx, cfg.Database, log.Named("store"))
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		version, err := db.Migrate(ctx)
		if err != nil {
			return err
		}
		printOK(fmt.Sprintf("database ready (schema %d)", version))

		repo = persist.NewVarRepo(db)
		if restored, err = repo.LoadAll(ctx); err != nil {
			return fmt.Errorf("load vars: %w", err)
		}
		n, err := persist.RestoreVars(reg, restored, log)
		if err != nil {
			return err
		}
		printStat("restored", n)
	}
	fmt.Println()

	// 3. Scripts
	printSection("scripts")
	world := ecs.NewWorld()
	bus := event.NewBus()
	engine, err := scripting.NewEngine(world, reg, bus, log.Named("script"), scripting.EngineOptions{
		Dir:       cfg.Script.Dir,
		PatchDir:  cfg.Script.PatchDir,
		DrawEvent: cfg.Script.DrawEvent,
		Scheduler: scripting.SchedulerOptions{
			MaxThreadID: cfg.Script.MaxThreadID,
		},
	})
	if err != nil {
		return err
	}
	defer engine.Close()

	scripts, err := engine.LoadLevel(level)
	if err != nil {
		return err
	}
	printStat(level, scripts)
	fmt.Println()

	// 4. Systems
	runner := coresys.NewRunner()
	runner.Register(system.NewEventDispatchSystem(bus))
	runner.Register(system.NewScriptSystem(engine, log))
	runner.Register(system.NewDrawSystem(engine, log))
	runner.Register(system.NewCleanupSystem(world, log))

	var saver *system.PersistenceSystem
	if repo != nil && cfg.Vars.SaveInterval > 0 {
		every := int(cfg.Vars.SaveInterval / cfg.Script.TickRate)
		saver = system.NewPersistenceSystem(reg, repo, engine.Level, log, every)
		for _, row := range restored {
			saver.MarkSaved(row.Name, row.Value)
		}
		runner.Register(saver)
	}

	// 5. Frame loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Script.TickRate)
	defer ticker.Stop()

	log.Info("frame loop started", zap.String("level", level), zap.Duration("tick", cfg.Script.TickRate))
	for {
		select {
		case <-ticker.C:
			runner.Tick(cfg.Script.TickRate)
		case sig := <-shutdownCh:
			log.Info("shutdown signal", zap.String("signal", sig.String()))
			if saver != nil {
				saver.SaveAll()
			}
			log.Info("stopped",
				zap.String("level", engine.Level()),
				zap.Int("threads", engine.Scheduler().Len()),
				zap.Int("vars", reg.Purge(true)),
			)
			return nil
		}
	}
}
