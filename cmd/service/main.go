package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mghextreme/blu-presenter-sub000/internal/broadcast"
	"github.com/mghextreme/blu-presenter-sub000/internal/config"
	"github.com/mghextreme/blu-presenter-sub000/internal/sessions"
	"github.com/redis/go-redis/v9"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatalf("presenter-relay: %v", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("presenter-relay: db connect: %v", err)
	}
	defer pool.Close()

	if err := sessions.AutoMigrate(ctx, pool); err != nil {
		log.Fatalf("presenter-relay: migrate: %v", err)
	}

	// Redis is optional; without it rooms are local to this instance.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("presenter-relay: invalid REDIS_URL: %v", err)
		}
		rdb = redis.NewClient(opt)
		defer rdb.Close()
	}

	hub := broadcast.NewHub()
	srv := broadcast.NewServer(ctx, hub, sessions.NewPostgresStore(pool), broadcast.Options{
		SocketPath:     cfg.SocketPath,
		AllowedOrigins: cfg.AllowedOrigins,
		JWTSecret:      cfg.JWTSecret,
		ReadLimit:      cfg.ReadLimit,
		SendBuffer:     cfg.SendBuffer,
		Redis:          rdb,
		RedisRetryMax:  cfg.RedisRetryMax,
	})

	go hub.Run(ctx)
	if rdb != nil {
		go func() {
			if err := srv.RunRedisSubscriber(ctx); err != nil {
				log.Printf("presenter-relay: redis subscriber: %v", err)
			}
		}()
	}

	r := srv.Router(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	)

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Printf("presenter-relay listening on :%s (socket %s)", cfg.Port, cfg.SocketPath)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("presenter-relay: %v", err)
	}
}
