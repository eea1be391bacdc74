package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"elevate.org/internal/config"
	"elevate.org/internal/elevation"
	"elevate.org/internal/httpapi"
	"elevate.org/internal/identity"
	"elevate.org/internal/migrate"
	"elevate.org/internal/obs"
	"elevate.org/internal/schedule"
	"elevate.org/internal/store/pg"
	"elevate.org/internal/stream"
)

var (
	version = "dev"
	commit  = "none"
)

type backend struct {
	grants      elevation.Store
	directory   identity.Directory
	adjustments schedule.Store
	loans       schedule.LoanBook
	probe       httpapi.ReadyProbe
	close       func()
}

func main() {
	log := obs.Logger()

	conf, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	obs.SetLevel(conf.Log.Level)
	if version == "dev" {
		version = conf.App.Version
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(ctx, conf)
	if err != nil {
		log.WithError(err).Fatal("open backend")
	}
	defer be.close()

	events := stream.New()
	svc := elevation.NewService(be.grants, be.directory, elevation.WithPublisher(events))
	resolver := elevation.NewResolver(be.grants, be.directory, nil)

	interval, _ := conf.SweepInterval()
	firstRun, _ := conf.SweepFirstRunDelay()
	sweeper := elevation.NewSweeper(be.grants,
		elevation.SweepWithPublisher(events),
		elevation.SweepSchedule(firstRun, interval),
	)
	ledger := schedule.NewLedger(be.adjustments, be.loans)

	ttl, _ := conf.TokenTTL()
	api := httpapi.New(be.probe, httpapi.Deps{
		Elevations: svc,
		Resolver:   resolver,
		Sweeper:    sweeper,
		Schedule:   ledger,
		Directory:  be.directory,
		Stream:     events,
	}, httpapi.Options{
		Version:        version,
		RateBurst:      conf.RateLimit.Burst,
		RatePerSecond:  conf.RateLimit.PerSecond,
		MaxBodyBytes:   conf.App.MaxBody,
		AllowDevTokens: conf.DevTokensAllowed(),
		TokenTTL:       ttl,
	})

	if conf.SweeperEnabled() {
		go sweeper.Run(ctx)
	}

	health := httpapi.NewGRPCServer(be.probe)
	grpcSrv := grpc.NewServer()
	health.Register(grpcSrv)
	go health.Run(ctx, 10*time.Second)

	lis, err := net.Listen("tcp", conf.App.GRPCAddr)
	if err != nil {
		log.WithError(err).Fatal("grpc listen")
	}
	go func() {
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.WithError(err).Error("grpc serve")
		}
	}()

	srv := &http.Server{
		Addr:              conf.App.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// no WriteTimeout: /elevations/events is a long-lived stream
		IdleTimeout: 60 * time.Second,
	}

	log.WithField("version", version).
		WithField("http_addr", srv.Addr).
		WithField("grpc_addr", conf.App.GRPCAddr).
		Info("starting elevate-api")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("listen")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	grpcSrv.GracefulStop()
	log.Info("stopped")
}

func openBackend(ctx context.Context, conf *config.Configuration) (*backend, error) {
	if conf.Database.DSN == "" {
		obs.Logger().Warn("ELEVATE_PG_DSN not set, using in-memory stores")
		return memoryBackend(), nil
	}

	lifetime, _ := conf.ConnMaxLifetime()
	store, err := pg.Open(conf.Database.DSN, pg.PoolConfig{
		MaxOpenConns:    conf.Database.MaxOpenConns,
		MaxIdleConns:    conf.Database.MaxIdleConns,
		ConnMaxLifetime: lifetime,
	})
	if err != nil {
		return nil, err
	}

	if conf.MigrateOnStart() {
		migrateCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		mgr := migrate.NewManager(store.DB(), conf.Database.MigrationsDir, conf.Database.SeedsDir)
		n, err := mgr.Up(migrateCtx)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		obs.Logger().WithField("applied", n).Info("migrations applied")
	}

	return &backend{
		grants:      store.Grants(),
		directory:   store.Directory(),
		adjustments: store.Adjustments(),
		loans:       store.Loans(),
		probe:       httpapi.ReadyProbe{DB: store.DB()},
		close:       func() { _ = store.Close() },
	}, nil
}
