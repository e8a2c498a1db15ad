package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"inquiryflow/config"
	"inquiryflow/db"
	"inquiryflow/expiry"
	"inquiryflow/inquiry"
	"inquiryflow/metrics"
	"inquiryflow/store"
)

const (
	expiryConcurrency = 4
	shutdownTimeout   = 10 * time.Second
)

func main() {
	logger := log.New(os.Stdout, "[worker] ", log.LstdFlags|log.Lmicroseconds|log.LUTC)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := store.Open(ctx, cfg, log.New(os.Stdout, "[store] ", log.LstdFlags|log.Lmicroseconds|log.LUTC))
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer backend.Close()

	svcLogger := log.New(os.Stdout, "[inquiry] ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
	svc := inquiry.NewService(backend.Store, svcLogger).WithMaxRetries(cfg.ApplyMaxRetries)

	var wg sync.WaitGroup

	if cfg.ExpiryEnabled {
		rdb, err := db.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Fatalf("connect redis: %v", err)
		}
		defer rdb.Close()

		expiryLogger := log.New(os.Stdout, "[expiry] ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
		client := expiry.NewClient(rdb)
		defer client.Close()
		svc.WithScheduler(expiry.NewScheduler(client, expiryLogger))

		srv := expiry.NewServer(rdb, expiryConcurrency, expiryLogger)
		if err := srv.Start(expiry.NewProcessor(svc, expiryLogger).Mux()); err != nil {
			logger.Fatalf("start expiry server: %v", err)
		}
		defer srv.Shutdown()
		logger.Printf("expiry task server consuming queue %q", expiry.QueueName)
	}

	if cfg.SweepInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.RunSweeper(ctx, cfg.SweepInterval)
		}()
		logger.Printf("sweeping expired requests every %s", cfg.SweepInterval)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Printf("metrics listening on %s", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("metrics server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("metrics shutdown: %v", err)
	}
	wg.Wait()
}
