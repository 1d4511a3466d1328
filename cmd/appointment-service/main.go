package main

import (
	"context"
	"expvar"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iwtkmsss/queue-sub000/internal/clock"
	"github.com/iwtkmsss/queue-sub000/internal/config"
	"github.com/iwtkmsss/queue-sub000/internal/events"
	"github.com/iwtkmsss/queue-sub000/internal/httpapi"
	"github.com/iwtkmsss/queue-sub000/internal/queue"
	"github.com/iwtkmsss/queue-sub000/internal/realtime"
	"github.com/iwtkmsss/queue-sub000/internal/schedule"
	"github.com/iwtkmsss/queue-sub000/internal/settings"
	"github.com/iwtkmsss/queue-sub000/internal/slots"
	"github.com/iwtkmsss/queue-sub000/internal/staff"
	"github.com/iwtkmsss/queue-sub000/internal/store"
	"github.com/iwtkmsss/queue-sub000/internal/store/memory"
	"github.com/iwtkmsss/queue-sub000/internal/store/postgres"
	"github.com/iwtkmsss/queue-sub000/internal/sweep"
	"github.com/iwtkmsss/queue-sub000/internal/telemetry"
	"github.com/iwtkmsss/queue-sub000/migrations"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	envFile := pflag.String("env-file", ".env", "file with KEY=VALUE pairs loaded before reading the environment")
	migrate := pflag.Bool("migrate", false, "apply database migrations on startup")
	seedPath := pflag.String("settings-seed", "", "YAML file with default settings written when missing")
	inMemory := pflag.Bool("in-memory", false, "keep all data in process memory instead of PostgreSQL")
	pflag.Parse()

	if err := config.LoadEnvFile(*envFile, pflag.CommandLine.Changed("env-file")); err != nil {
		log.Fatalf("env file: %v", err)
	}
	cfg := config.Load()

	ctx := context.Background()
	shutdownTracing := telemetry.Setup(ctx, telemetry.OptionsFromEnv(cfg.ServiceName))

	var backend store.Store
	if *inMemory {
		backend = memory.NewStore()
		log.Printf("using in-memory store")
	} else {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
		defer pool.Close()
		if *migrate {
			if err := migrations.Apply(ctx, pool); err != nil {
				log.Fatalf("migrate: %v", err)
			}
		}
		backend = postgres.NewStore(pool)
	}

	cfgStore := settings.New(backend)
	if *seedPath != "" {
		values, err := settings.LoadSeed(*seedPath)
		if err != nil {
			log.Fatalf("settings seed: %v", err)
		}
		written, err := cfgStore.ApplySeed(ctx, values)
		if err != nil {
			log.Fatalf("settings seed: %v", err)
		}
		log.Printf("settings seeded written=%d path=%s", written, *seedPath)
	}

	bus := events.NewMemoryBus()
	if cfg.RedisURL != "" {
		client, err := events.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer client.Close()
		detach := events.NewRedisRelay(client, cfg.RedisChannel).Attach(bus)
		defer detach()
		log.Printf("relaying events to redis channel=%s", cfg.RedisChannel)
	}

	clk := clock.Real()
	resolver := schedule.NewResolver(backend, backend, clk)
	queueSvc := queue.NewService(backend, backend, bus, cfgStore, clk)
	handler := httpapi.NewHandler(httpapi.Deps{
		Queue:     queueSvc,
		Slots:     slots.NewEngine(backend, backend, resolver, cfgStore),
		Schedules: resolver,
		Settings:  cfgStore,
		Staff:     staff.NewService(backend, backend),
		APIToken:  cfg.APIToken,
	})

	hub := realtime.NewHub()
	detachHub := hub.Attach(bus)
	defer detachHub()

	scheduler := sweep.NewScheduler(clk, cfg.SweepInterval)
	scheduler.Add("alarm", queueSvc.AlarmSweep)
	scheduler.Add("expiry", queueSvc.ExpirySweep)
	scheduler.Start(ctx)

	mux := handler.Routes()
	mux.Handle("/metrics", expvar.Handler())
	mux.Handle("/realtime/", realtime.NewHandler("/realtime", hub, cfg.APIToken))

	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:     cfg.RateLimitPerMinute,
		IPBurst:         cfg.RateLimitBurst,
		WindowPerMinute: cfg.WindowRateLimit,
		WindowBurst:     cfg.WindowRateBurst,
	})
	root := httpapi.LoggingMiddleware(limiter.Middleware(httpapi.AuthMiddleware(cfg.APIToken, mux)))

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     otelhttp.NewHandler(root, cfg.ServiceName),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("%s listening on %s", cfg.ServiceName, server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	scheduler.Stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("tracing shutdown error: %v", err)
	}
}
