package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/originjudge/oj/internal/config"
	"github.com/originjudge/oj/internal/httpapi"
	"github.com/originjudge/oj/internal/metrics"
	"github.com/originjudge/oj/internal/service"
	"github.com/originjudge/oj/internal/store"
	"github.com/originjudge/oj/internal/token"
)

var (
	flagConfig    string
	flagFlushData bool
	flagAuth      bool
	flagDSN       string
	flagRedisAddr string
)

func main() {
	root := &cobra.Command{
		Use:          "oj",
		Short:        "Online judge backend",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	root.Flags().StringVar(&flagConfig, "config", "", "path to the JSON configuration file")
	root.Flags().BoolVar(&flagFlushData, "flush-data", false, "wipe the persistent store on startup")
	root.Flags().BoolVar(&flagAuth, "auth", false, "enable cookie-authenticated submission")
	root.Flags().StringVar(&flagDSN, "database-dsn", envOr("OJ_DATABASE_DSN", "postgres://oj:oj@localhost:5432/oj"), "postgres connection string")
	root.Flags().StringVar(&flagRedisAddr, "redis-addr", envOr("OJ_REDIS_ADDR", ""), "redis address for the worker heartbeat (empty disables it)")
	root.MarkFlagRequired("config")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run(ctx context.Context) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	pool, err := store.Connect(ctx, flagDSN)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	st := store.New(pool)
	if err := st.Init(ctx, flagFlushData); err != nil {
		return err
	}
	repo := store.NewRepository(st)

	collector := metrics.NewCollector(prometheus.DefaultRegisterer)
	heartbeat := metrics.NewHeartbeatState(fmt.Sprintf("oj-%d", os.Getpid()))
	if flagRedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: flagRedisAddr})
		defer client.Close()
		go heartbeat.Start(ctx, client)
	}

	svc, err := service.New(ctx, cfg.Catalog(), repo, logger, collector, heartbeat)
	if err != nil {
		return err
	}

	sessionKey := make([]byte, 32)
	if _, err := rand.Read(sessionKey); err != nil {
		return fmt.Errorf("session key: %w", err)
	}
	tokenKey := make([]byte, 32)
	if _, err := rand.Read(tokenKey); err != nil {
		return fmt.Errorf("token key: %w", err)
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Service:     svc,
		Tokens:      token.NewFactory(tokenKey),
		Sessions:    sessions.NewCookieStore(sessionKey),
		Collector:   collector,
		Heartbeat:   heartbeat,
		Logger:      logger,
		RequireAuth: flagAuth,
		StartedAt:   time.Now(),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.BindPort)
	server := &http.Server{Addr: addr, Handler: router}

	go func() {
		// POST /internal/exit closes Done as soon as the queue has been
		// told to stop pulling new jobs (a job still running is not
		// waited for); give in-flight handlers a short grace period.
		<-svc.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("starting server", "addr", addr, "auth", flagAuth)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	logger.Info("server stopped")
	return nil
}
