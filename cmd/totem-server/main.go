package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/CheRocks42/project-re-governance-protocol/internal/config"
	"github.com/CheRocks42/project-re-governance-protocol/internal/db"
	"github.com/CheRocks42/project-re-governance-protocol/internal/grpcapi"
	"github.com/CheRocks42/project-re-governance-protocol/internal/httpapi"
	"github.com/CheRocks42/project-re-governance-protocol/internal/metrics"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/authority"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/conversation"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/ledger"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/policy"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/service"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/store"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/store/memory"
	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/store/sqlite"
)

func main() {
	logger := log.New(os.Stdout, "totem-server ", log.LstdFlags|log.LUTC)
	if err := run(logger); err != nil {
		logger.Fatalf("fatal: %v", err)
	}
}

func run(logger *log.Logger) error {
	cfg := config.FromEnv()
	if cfg.File != "" {
		fc, err := config.Load(cfg.File)
		if err != nil {
			return err
		}
		if err := cfg.Merge(fc); err != nil {
			return err
		}
		logger.Printf("loaded config file %s", cfg.File)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Policy
	extra, err := policy.CompileRules(cfg.PolicyRules)
	if err != nil {
		return err
	}
	engine := policy.NewEngine(extra...)
	logger.Printf("policy rules: %v", engine.Rules())

	// Authority
	gate := authority.NewGate(
		authority.WithDevice(authority.NewSimulatedDevice(cfg.SignDelay)),
		authority.WithLogger(logger),
	)
	if cfg.StartConnected {
		gate.Connect()
	}

	// Ledger + governor
	l := ledger.New()
	gov := service.NewGovernor(service.Deps{
		Ledger:       l,
		Policy:       engine,
		Gate:         gate,
		Messages:     conversation.NewRepository(),
		Metrics:      m,
		Logger:       logger,
		DefaultModel: cfg.DefaultModel,
	})
	logger.Printf("ledger run %s (model=%s)", l.RunID(), cfg.DefaultModel)

	// Evidence archive
	archive, closeArchive, err := openArchive(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeArchive()

	exporter := service.NewExporter(l, archive, service.ExporterConfig{
		IntervalSeconds: cfg.ExportIntervalSeconds,
	}, logger, m)
	exporter.Start(ctx)
	defer exporter.Stop()

	// Transports
	httpSrv := httpapi.NewServer(httpapi.Dependencies{
		Logger:   logger,
		Addr:     cfg.HTTPAddr,
		Governor: gov,
		Ledger:   l,
		Gate:     gate,
		Archive:  archive,
		Gatherer: reg,
	})
	grpcSrv := grpcapi.NewServer(gate, logger)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Printf("listening on %s", cfg.HTTPAddr)
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		grpcSrv.Shutdown()
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openArchive returns the configured evidence store, or nil when export is
// off. The returned close func is always safe to call.
func openArchive(ctx context.Context, cfg config.Config) (store.EvidenceStore, func(), error) {
	switch cfg.Export {
	case config.ExportOff:
		return nil, func() {}, nil
	case config.ExportSQLite:
		conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
		if err != nil {
			return nil, nil, err
		}
		writer := db.NewWorker(conn)
		return sqlite.NewEvidenceStore(conn, writer), func() {
			writer.Close()
			_ = conn.Close()
		}, nil
	default:
		return memory.NewEvidenceStore(), func() {}, nil
	}
}
