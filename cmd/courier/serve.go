package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"courier/internal/config"
	httptransport "courier/internal/http"
	"courier/internal/infra"
	"courier/internal/lock"
	"courier/internal/maps"
	"courier/internal/modules/dispatch"
	"courier/internal/modules/progress"
	"courier/internal/modules/wage"
	"courier/internal/notify"
	"courier/internal/stats"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	log := infra.NewLogger("courier", cfg.Log.Level)

	if cfg.Firebase.ProjectID == "" {
		return errors.New("COURIER_FIREBASE_PROJECT_ID is required")
	}
	app, err := infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		return err
	}
	verifier, err := infra.NewFirebaseVerifier(ctx, app)
	if err != nil {
		return err
	}
	fcm, err := infra.NewFirebaseMessaging(ctx, app)
	if err != nil {
		return err
	}

	pool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer redisClient.Close()

	wages := wage.NewService(
		wage.NewCachedProvider(wage.NewStore(pool), redisClient, cfg.Wage.CacheTTL, log),
		wage.DefaultTable(cfg.Wage.Formula),
		log,
	)

	hub := notify.NewHub(log)
	defer hub.Close()
	fanout := notify.NewFanout(
		notify.NewTransport(hub, notify.NewRedisDeduper(redisClient, cfg.Notify.DedupeTTL), log),
		notify.NewFCMPusher(fcm),
		log,
	)

	var recomputer dispatch.StatsRecomputer = stats.LogRecomputer{Log: log}
	if len(cfg.Kafka.Brokers) > 0 {
		k := stats.NewKafkaRecomputer(cfg.Kafka.Brokers, cfg.Kafka.StatsTopic)
		defer k.Close()
		recomputer = k
	}

	var routes dispatch.RouteEstimator = maps.StraightLine{SpeedKmh: 30}
	if cfg.Maps.APIKey != "" {
		rs, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			return err
		}
		routes = rs
	}

	svc := dispatch.NewService(dispatch.Deps{
		Tx:       dispatch.NewPgTransactor(infra.NewTransactor(pool, cfg.Dispatch.TxAttempts, cfg.Dispatch.TxBackoff)),
		Reader:   progress.NewStore(pool),
		Wages:    wages,
		Routes:   routes,
		Notifier: fanout,
		Stats:    recomputer,
		Locks:    lock.NewRegistry(),
		Logger:   log,
	}, dispatch.Config{AcceptTimeout: cfg.Dispatch.AcceptTimeout})

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Dispatch: svc,
		Hub:      hub,
		Verifier: verifier,
		Logger:   log,
	})
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	if err := svc.Drain(shutdownCtx); err != nil {
		log.Warn("post-commit work still pending at exit", "error", err)
	}
	return nil
}
