package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jinzhu/gorm"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"rosterforge/internal/agents"
	"rosterforge/internal/approval"
	"rosterforge/internal/bus"
	"rosterforge/internal/config"
	"rosterforge/internal/database"
	"rosterforge/internal/monitoring"
)

var (
	configFile = flag.String("config", "configs/config.yaml", "Path to configuration file")
	stores     = flag.String("stores", "", "Comma-separated store IDs to schedule (default: all)")
	debug      = flag.Bool("debug", false, "Enable debug logging")
	serveOnly  = flag.Bool("serve-only", false, "Run the approval server without scheduling")
)

func main() {
	flag.Parse()

	// Secrets come from the environment; .env is a development convenience.
	_ = godotenv.Load()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := buildLogger(*debug)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	db, err := database.Open(cfg.Database.Dialect, cfg.Database.DSN)
	if err != nil {
		sugar.Fatalw("database open failed", "error", err)
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	metrics := monitoring.New(registry)

	b := bus.New(sugar.Named("bus"))
	matcher := agents.NewStaffMatcher(b, sugar, cfg.Scoring)
	validator := agents.NewComplianceValidator(b, sugar)
	resolver := agents.NewConflictResolver(b, sugar, cfg.Scoring, validator)
	coordinator := agents.NewCoordinator(b, sugar, cfg, metrics, matcher, validator, resolver)
	agents.NewDataSource(b, sugar, db)
	agents.NewDemandPlanner(b, sugar)
	agents.NewExplainer(b, sugar, cfg.LLM)
	agents.NewExporter(b, sugar, cfg.Export.Dir)

	server := approval.New(b, sugar, cfg.Server, registry)
	go func() {
		if err := server.Run(); err != nil {
			sugar.Fatalw("approval server failed", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		sugar.Info("shutting down")
		cancel()
	}()

	if *serveOnly {
		<-ctx.Done()
		return
	}

	storeIDs, err := resolveStores(db, *stores)
	if err != nil {
		sugar.Fatalw("store selection failed", "error", err)
	}

	failed := 0
	for _, id := range storeIDs {
		if ctx.Err() != nil {
			break
		}
		run, err := coordinator.Run(ctx, id)
		if err != nil {
			sugar.Errorw("run failed", "store", id, "error", err)
			failed++
			continue
		}
		sugar.Infow("run finished",
			"store", id,
			"score", run.Compliance.Score,
			"iterations", run.Iterations,
			"escalated", run.Escalated,
			"accepted_risk", run.AcceptedRisk)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func buildLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// resolveStores expands the -stores flag, defaulting to every store in the
// database.
func resolveStores(db *gorm.DB, flagValue string) ([]string, error) {
	if flagValue != "" {
		var ids []string
		for _, id := range strings.Split(flagValue, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("no store IDs in %q", flagValue)
		}
		return ids, nil
	}
	all, err := database.LoadStores(db)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("no stores configured")
	}
	ids := make([]string, 0, len(all))
	for _, st := range all {
		ids = append(ids, st.ID)
	}
	return ids, nil
}
