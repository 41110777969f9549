package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/transit-dispatch/internal/config"
	"github.com/example/transit-dispatch/internal/directory"
	"github.com/example/transit-dispatch/internal/dispatch"
	"github.com/example/transit-dispatch/internal/eta"
	"github.com/example/transit-dispatch/internal/fleet"
	httpapi "github.com/example/transit-dispatch/internal/http"
	"github.com/example/transit-dispatch/internal/ingest"
	"github.com/example/transit-dispatch/internal/ledger"
	"github.com/example/transit-dispatch/internal/logging"
	"github.com/example/transit-dispatch/internal/models"
	"github.com/example/transit-dispatch/internal/notify"
	"github.com/example/transit-dispatch/internal/payments"
	"github.com/example/transit-dispatch/internal/positions"
	"github.com/example/transit-dispatch/internal/search"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("config invalid", "error", err)
		os.Exit(1)
	}

	if cfg.PGDSN != "" && cfg.RunMigrations {
		runMigrations(cfg.PGDSN, logger)
	}

	var store positions.Store
	var dir directory.Directory
	var cls fleet.Classifier
	if cfg.RedisAddr != "" {
		store = positions.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey, cfg.Dispatch.PositionWindow)
		dir = directory.NewRedisDirectory(cfg.RedisAddr, cfg.RedisPassword)
		cls = fleet.NewRedisClassifier(cfg.RedisAddr, cfg.RedisPassword)
	} else {
		store = positions.NewMemoryStore(cfg.Dispatch.PositionWindow)
		dir = directory.NewMemoryDirectory()
		cls = fleet.NewStaticClassifier(models.ClassEconomy, models.ClassVan, models.ClassPremium)
	}

	var persister ledger.Persister
	if cfg.PGDSN != "" {
		pg, err := ledger.NewPostgresPersister(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres unavailable, assignments stay in memory only", "error", err)
		} else {
			persister = pg
			defer pg.Close()
		}
	}
	led := ledger.New(persister, logger)

	var producer *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		producer = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
	}

	wsGateway := notify.NewWSGateway()
	var gateway notify.Gateway = wsGateway
	if endpoint := os.Getenv("PUSH_ENDPOINT"); endpoint != "" {
		gateway = notify.NewComposite(wsGateway, notify.NewPushGateway(endpoint, os.Getenv("PUSH_KEY")))
	}

	coord := &dispatch.Coordinator{
		Ledger: led,
		Search: &search.Searcher{
			Positions: store,
			Fleet:     cls,
			Directory: dir,
			Window:    cfg.Dispatch.PositionWindow,
			Limit:     cfg.Dispatch.CandidateLimit,
		},
		Directory:       dir,
		Gateway:         gateway,
		Logger:          logger,
		Config:          cfg.Dispatch,
		ETACache:        eta.NewCache(time.Minute),
		DefaultSpeedMps: cfg.DefaultSpeedMps,
	}
	if endpoint := os.Getenv("OSRM_ENDPOINT"); endpoint != "" {
		coord.ETAClient = eta.NewOSRMClient(endpoint)
	}
	if os.Getenv("STRIPE_API_KEY") != "" {
		coord.Payments = payments.NewStripeClient()
	}

	srv := httpapi.NewServer(coord, store, producer, wsGateway, logger)
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("transit-dispatch listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func runMigrations(dsn string, logger *slog.Logger) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Error("migration db open error", "error", err)
		return
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_assignments.sql"))
	if err != nil {
		logger.Error("migration read error", "error", err)
		return
	}
	if _, err := db.Exec(string(b)); err != nil {
		logger.Error("migration exec error", "error", err)
		return
	}
	logger.Info("migration applied", "file", "001_create_assignments.sql")
}
