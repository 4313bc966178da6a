package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"campusq/internal/admission"
	"campusq/internal/clock"
	"campusq/internal/config"
	"campusq/internal/display"
	"campusq/internal/engine"
	"campusq/internal/guard"
	"campusq/internal/httpapi"
	"campusq/internal/hub"
	"campusq/internal/store/postgres"
	"campusq/internal/telemetry"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type eventEnvelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	shutdownTelemetry := telemetry.Setup("campusq")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	st := postgres.NewStore(pool, postgres.Options{
		MaxHoldAttempts: cfg.MaxHoldAttempts,
		UpNextCount:     cfg.UpNextCount,
	})
	clk := clock.New(cfg.FacilityTZ)

	var g httpapi.Guard
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis url: %v", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		g = guard.New(rdb, guard.Options{Intervals: map[string]time.Duration{
			guard.ActionJoin:     cfg.JoinCooldown,
			guard.ActionLookup:   cfg.LookupCooldown,
			guard.ActionCallNext: cfg.StaffCooldown,
			guard.ActionServed:   cfg.StaffCooldown,
			guard.ActionHold:     cfg.StaffCooldown,
		}})
	}

	controller := admission.NewController(st, clk)
	eng := engine.New(st, clk)
	boards := display.NewAggregator(st, clk)

	handler := httpapi.NewHandler(controller, eng, boards, st, st, st, httpapi.Options{Guard: g})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:         cfg.RateLimitPerMinute,
		IPBurst:             cfg.RateLimitBurst,
		DepartmentPerMinute: cfg.DepartmentRateLimitPerMinute,
		DepartmentBurst:     cfg.DepartmentRateLimitBurst,
	})

	h := hub.New()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler.Routes())
	sockjsHandler := sockjs.NewHandler("/boards", sockjs.DefaultOptions, func(session sockjs.Session) {
		client := &hub.Client{ID: uuid.NewString(), Send: make(chan []byte, 16)}
		h.Register(client)
		defer h.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			parsed, ok := hub.ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			if parsed.Action == "unsubscribe" {
				h.UpdateSubscription(client, "")
			} else {
				h.UpdateSubscription(client, parsed.DepartmentID)
			}
		}
	})
	mux.Handle("/boards/", sockjsHandler)

	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(mux)), "campusq")
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("campusq listening on %s facility_tz=%s", server.Addr, cfg.FacilityTZ)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	pollerDone := make(chan struct{})
	go pollOutbox(st, h, cfg, pollerDone)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	close(pollerDone)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// pollOutbox tails outbox_events and fans each event out to subscribed boards.
// The watermark is held in memory; on restart boards re-fetch the display
// projection, so replaying from "now" is enough.
func pollOutbox(st *postgres.Store, h *hub.Hub, cfg config.Config, done <-chan struct{}) {
	interval := cfg.OutboxPollInterval
	if interval <= 0 {
		interval = time.Second
	}
	afterTime := time.Now().UTC()
	afterID := "00000000-0000-0000-0000-000000000000"
	var running int32

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}
		if !atomic.CompareAndSwapInt32(&running, 0, 1) {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		events, err := st.ListOutboxEvents(ctx, afterTime, afterID, cfg.OutboxBatchSize)
		cancel()
		if err != nil {
			log.Printf("outbox poll error: %v", err)
			atomic.StoreInt32(&running, 0)
			continue
		}
		for _, event := range events {
			afterTime = event.CreatedAt
			afterID = event.EventID
			env := eventEnvelope{Type: event.Type, Payload: event.Payload, CreatedAt: event.CreatedAt}
			payload, _ := json.Marshal(env)
			h.Broadcast(payload, event.DepartmentID)
		}
		atomic.StoreInt32(&running, 0)
	}
}
