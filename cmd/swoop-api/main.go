// README: Entry point; loads config, wires services, starts the HTTP server
// and the outbox worker.
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

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"swoop/internal/config"
	httptransport "swoop/internal/http"
	"swoop/internal/infra"
	"swoop/internal/kafka"
	"swoop/internal/logging"
	"swoop/internal/maps"
	"swoop/internal/modules/matching"
	"swoop/internal/modules/offer"
	"swoop/internal/modules/rider"
	"swoop/internal/modules/tracking"
	"swoop/internal/outbox"
	"swoop/internal/payments"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(os.Getenv("SWOOP_LOG_LEVEL"))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	verifier, err := infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		logger.Fatal("firebase init", zap.Error(err))
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal("postgres init", zap.Error(err))
	}
	defer dbPool.Close()

	redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr)
	if err != nil {
		logger.Fatal("redis init", zap.Error(err))
	}

	var routes offer.RouteEstimator
	if cfg.Maps.APIKey != "" {
		routeSvc, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			logger.Fatal("maps init", zap.Error(err))
		}
		routes = routeSvc
	}

	trackingStore := tracking.NewStore(dbPool)
	outboxRepo := outbox.NewRepo(dbPool)
	riderStore := rider.NewStore(redisClient)
	offerGeo := matching.NewGeoStore(redisClient)

	offerStore := offer.NewStore(dbPool, trackingStore, outboxRepo)
	offerSvc := offer.NewService(offerStore, riderStore, offerGeo, routes)
	matchingSvc := matching.NewService(offerStore, offerGeo, riderStore)

	var producer kafka.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer = kafka.NewProducer(cfg.Kafka.Brokers)
	} else {
		producer = kafka.NewConsoleProducer(logger)
	}
	defer func() { _ = producer.Close() }()

	var settler payments.Settler
	if cfg.Stripe.APIKey != "" {
		settler = payments.NewStripeClient(cfg.Stripe.APIKey, logger)
	} else {
		settler = payments.NewLogSettler(logger)
	}

	worker := outbox.NewWorker(outboxRepo, map[string]outbox.Handler{
		outbox.TopicNotifications: kafka.NotificationHandler(producer, outbox.TopicNotifications),
		outbox.TopicSettlements:   payments.SettlementHandler(settler),
	}, outbox.WorkerConfig{
		PollInterval: cfg.Outbox.PollInterval,
		BatchSize:    cfg.Outbox.BatchSize,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
	}, logger)

	handler := httptransport.NewRouter(httptransport.RouterDeps{
		Offers:   offerSvc,
		Matcher:  matchingSvc,
		Riders:   riderStore,
		Verifier: verifier,
		Log:      logger,
	})
	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := worker.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("shutdown", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
