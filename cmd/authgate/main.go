package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/amiskov/authgate/pkg/authapi"
	"github.com/amiskov/authgate/pkg/common"
	"github.com/amiskov/authgate/pkg/config"
	dashboardApi "github.com/amiskov/authgate/pkg/dashboard/api"
	"github.com/amiskov/authgate/pkg/home"
	"github.com/amiskov/authgate/pkg/logger"
	"github.com/amiskov/authgate/pkg/metrics"
	"github.com/amiskov/authgate/pkg/middleware"
	"github.com/amiskov/authgate/pkg/sessions"
	userApi "github.com/amiskov/authgate/pkg/user/api"
	"github.com/amiskov/authgate/pkg/web"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Parse()
	zapLogger := logger.Run(cfg.LogLevel)
	defer func() { _ = zapLogger.Sync() }()

	sessionRepo, closeRepo, err := openSessionRepo(ctx, cfg)
	if err != nil {
		log.Fatalf("can't open session storage: %v", err)
	}
	defer closeRepo()

	authAPI, err := authapi.New(cfg.AuthAPIAddress, cfg.AuthAPITimeout)
	if err != nil {
		log.Fatalf("can't create auth api client: %v", err)
	}

	sessionManager := sessions.NewSessionManager(common.DeriveKey(cfg.SecretKey, "cookie"), sessionRepo, authAPI, sessions.Options{
		CookieName:     cfg.CookieName,
		CookieSecure:   cfg.CookieSecure,
		TTL:            cfg.SessionTTL,
		RestoreTimeout: cfg.RestoreTimeout,
	})
	go sessionManager.Run(ctx, cfg.SessionSweepInterval)

	renderer, err := web.NewRenderer()
	if err != nil {
		log.Fatalf("can't load templates: %v", err)
	}
	m := metrics.New(nil, sessionManager.Len)
	csrfKey := common.DeriveKey(cfg.SecretKey, "csrf")

	homeHandler := home.NewHomeHandler(renderer)
	userHandler := userApi.NewUserHandler(renderer, sessionManager, csrfKey, m)
	dashboardHandler := dashboardApi.NewDashboardHandler(renderer, csrfKey, m, 2*cfg.RestoreTimeout)

	r := mux.NewRouter()

	r.HandleFunc("/", homeHandler.Index).Methods("GET")

	// Public
	r.HandleFunc("/login", userHandler.LoginForm).Methods("GET")
	r.HandleFunc("/login", userHandler.LogIn).Methods("POST")
	r.HandleFunc("/register", userHandler.RegisterForm).Methods("GET")
	r.HandleFunc("/register", userHandler.Register).Methods("POST")

	// Protected
	r.HandleFunc(dashboardApi.DashboardPath, dashboardHandler.Dashboard).Methods("GET")
	r.HandleFunc(dashboardApi.StatePath, dashboardHandler.State).Methods("GET")
	r.HandleFunc("/logout", dashboardHandler.Logout).Methods("POST")

	// Service
	r.Handle("/metrics", m.Handler()).Methods("GET")
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		common.WriteMsg(w, "ok", http.StatusOK)
	}).Methods("GET")

	logMiddleware := middleware.NewLoggingMiddleware(zapLogger, m)
	sessionMiddleware := middleware.NewSessionMiddleware(sessionManager, "/metrics", "/healthz")
	r.Use(logMiddleware.SetupTracing)
	r.Use(logMiddleware.SetupLogging)
	r.Use(logMiddleware.AccessLog)
	r.Use(sessionMiddleware.Middleware)

	srv := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	zapLogger.Infof("serving at http://%s/ with %s sessions", cfg.RunAddress, cfg.SessionBackend)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
	zapLogger.Info("server stopped")
}

func openSessionRepo(ctx context.Context, cfg *config.Config) (sessions.Repo, func(), error) {
	switch cfg.SessionBackend {
	case config.BackendPostgres:
		db, err := sql.Open("pgx", cfg.DatabaseURI)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres, %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("reach postgres, %w", err)
		}
		if err := sessions.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return sessions.NewSessionRepo(db), func() { db.Close() }, nil
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("reach redis, %w", err)
		}
		return sessions.NewRedisRepo(rdb), func() { rdb.Close() }, nil
	default:
		return sessions.NewMemoryRepo(), func() {}, nil
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
