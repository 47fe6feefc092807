package main // Entry point of the registration API server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/stripe/stripe-go/v81/client"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/circle-registration/internal/catalog"
	"github.com/iliyamo/circle-registration/internal/checkout"
	"github.com/iliyamo/circle-registration/internal/config"
	"github.com/iliyamo/circle-registration/internal/database"
	"github.com/iliyamo/circle-registration/internal/handler"
	"github.com/iliyamo/circle-registration/internal/middleware"
	"github.com/iliyamo/circle-registration/internal/notify"
	"github.com/iliyamo/circle-registration/internal/publicid"
	"github.com/iliyamo/circle-registration/internal/queue"
	"github.com/iliyamo/circle-registration/internal/registration"
	"github.com/iliyamo/circle-registration/internal/repository"
	"github.com/iliyamo/circle-registration/internal/router"
	"github.com/iliyamo/circle-registration/internal/webhook"
)

func main() {
	_ = godotenv.Load() // a missing .env is fine; the environment may be set already

	cfg := config.Load()
	log := newLogger(cfg)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(cfg config.Config) *zap.Logger {
	zc := zap.NewProductionConfig()
	if cfg.Env == "dev" {
		zc = zap.NewDevelopmentConfig()
	}
	if lvl, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	log, err := zc.Build()
	if err != nil {
		panic(err)
	}
	return log.With(zap.String("env", cfg.Env))
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unavailable; rate limiting, event log and catalog cache disabled")
	} else {
		defer func() { _ = rdb.Close() }()
	}

	stripeCfg := config.LoadStripeConfig()
	sc := &client.API{}
	sc.Init(stripeCfg.SecretKey, nil)

	events := repository.NewEventRepo(db)
	stores := repository.NewStoreRepo(db)
	payments := repository.NewPaymentRepo(db)
	users := repository.NewUserRepo(db)
	tickets := repository.NewTicketRepo(db)
	applications := repository.NewApplicationRepo(db)

	dispatcher := notify.NewDispatcher(log.Named("notify"), &notify.AMQPSink{URL: cfg.AMQPURL})
	gateway := checkout.NewGateway(log.Named("checkout"), stripeCfg, sc.CheckoutSessions, payments)

	svc := registration.New(log.Named("registration"), registration.Deps{
		Events:       events,
		Stores:       stores,
		Applications: applications,
		Tickets:      tickets,
		PublicIDs:    repository.NewPublicIDRepo(db),
		Payments:     payments,
		Vouchers:     repository.NewVoucherRepo(db),
		Users:        users,
		Checkout:     gateway,
		Notifier:     dispatcher,
		IDs:          publicid.New(cfg.PublicIDSalt),
	}, cfg.Location, cfg.RetryLimit)

	reconciler := webhook.NewReconciler(log.Named("webhook"), cfg.Env, webhook.Deps{
		Payments:     payments,
		Users:        users,
		Tickets:      tickets,
		Applications: applications,
		Catalog:      catalog.New(log.Named("catalog"), config.LoadCatalogCacheConfig(), rdb, events, stores),
		LineItems:    webhook.StripeLineItems{Sessions: sc.CheckoutSessions},
		Events:       webhook.NewEventLog(log.Named("eventlog"), rdb, config.LoadEventLogConfig()),
		Diagnostics:  dispatcher,
	})

	e := router.New(log.Named("http"))
	router.RegisterRoutes(e, db)
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log.Named("ratelimit"))
	router.RegisterRegistration(e, handler.NewRegistrationHandler(svc, log.Named("http")), cfg.JWTSecret, limiter)
	router.RegisterWebhooks(e, &handler.StripeWebhookHandler{
		Events:  reconciler,
		Secret:  stripeCfg.WebhookSecret,
		MaxBody: stripeCfg.MaxBodyBytes,
		Log:     log.Named("webhook"),
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		log.Info("listening", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		consumer := &queue.Consumer{URL: cfg.AMQPURL, Log: log.Named("consumer")}
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
