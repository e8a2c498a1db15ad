package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/google/uuid"

	"inquiryflow/auth"
	"inquiryflow/config"
	"inquiryflow/db"
	"inquiryflow/expiry"
	"inquiryflow/inquiry"
	"inquiryflow/store"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	// one request id per invocation ties the log lines of a run together
	requestID := uuid.NewString()[:8]
	flags := log.LstdFlags | log.Lmicroseconds | log.LUTC
	logger := log.New(os.Stderr, "[inquiryctl "+requestID+"] ", flags)

	cfg, err := config.Load()
	if err != nil {
		logger.Printf("load config: %v", err)
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, closeApp, err := newApp(ctx, cfg, requestID, logger)
	if err != nil {
		logger.Printf("%v", err)
		return exitInternal
	}
	defer closeApp()

	a.in, a.out, a.errOut = os.Stdin, os.Stdout, os.Stderr
	return a.run(ctx, os.Args[1:])
}

// newApp connects everything cfg names. The returned func releases those
// connections; the caller sets the app's streams.
func newApp(ctx context.Context, cfg *config.Config, requestID string, logger *log.Logger) (*app, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	backend, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	closers = append(closers, backend.Close)

	// employees live in postgres regardless of the inquiry store driver
	pool := backend.Pool
	if pool == nil && cfg.DatabaseURL != "" {
		pool, err = db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("connect employee directory: %w", err)
		}
		closers = append(closers, pool.Close)
	}
	var repo auth.Repository
	if pool != nil {
		repo = auth.NewRepository(pool)
	}
	authSvc := auth.NewService(repo, cfg.JWTSecret).WithTokenTTL(cfg.JWTTTL)

	svc := inquiry.NewService(backend.Store, log.New(logger.Writer(), "[inquiry "+requestID+"] ", logger.Flags())).
		WithMaxRetries(cfg.ApplyMaxRetries).
		WithResolver(authSvc)

	if cfg.ExpiryEnabled {
		rdb, err := db.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			// lazy expiry still applies; the sweep picks up what we fail to push
			logger.Printf("expiry scheduling disabled: %v", err)
		} else {
			client := expiry.NewClient(rdb)
			closers = append(closers, func() { _ = rdb.Close() }, func() { _ = client.Close() })
			svc.WithScheduler(expiry.NewScheduler(client, logger))
		}
	}

	a := &app{
		svc:       svc,
		auth:      authSvc,
		employees: repo != nil,
		timeline:  backend.Timeline,
		logger:    logger,
	}
	return a, closeAll, nil
}
