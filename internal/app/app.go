// Пакет app собирает кассовый терминал: хранилища, машину корзины,
// финализатор, HTTP API, метрики и необязательную интеграцию с Kafka.
package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/pos/internal/health"
	"github.com/vladislavdragonenkov/pos/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/pos/internal/metrics"
	"github.com/vladislavdragonenkov/pos/internal/service/cart"
	"github.com/vladislavdragonenkov/pos/internal/service/checkout"
	"github.com/vladislavdragonenkov/pos/internal/service/outbox"
	"github.com/vladislavdragonenkov/pos/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/pos/internal/version"
)

// Run запускает терминал и блокируется до отмены ctx или фатальной ошибки.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := newDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	checkoutMetrics := metrics.NewCheckoutMetrics()

	machine := cart.NewMachine(cfg.TaxRateBP, log.WithField("component", "cart"))
	finalizer := checkout.NewFinalizer(
		deps.Products,
		deps.Customers,
		deps.Sales,
		deps.Outbox,
		deps.Journal,
		log.WithField("component", "checkout"),
	)

	// Kafka опционален: без брокеров терминал работает автономно,
	// события копятся в outbox и могут быть опубликованы позже.
	producer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)

	var stockConsumer *kafka.Consumer
	if producer != nil {
		worker := outbox.NewWorker(
			deps.Outbox,
			kafka.NewOutboxPublisher(producer, kafka.TopicSaleEvents),
			outbox.WithLogger(log.WithField("component", "outbox-worker")),
			outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
		go worker.Run(ctx)

		brokers := strings.Split(cfg.KafkaBrokers, ",")
		stockHandler := kafka.NewStockUpdateHandler(deps.Stock, log.WithField("component", "stock-updates"))
		consumer, err := kafka.NewConsumerWithDLQ(
			brokers,
			cfg.KafkaGroupID,
			[]string{kafka.TopicStockEvents},
			stockHandler,
			producer,
			3,
		)
		if err != nil {
			logger.WithError(err).Warn("failed to create stock consumer, continuing without external stock updates")
		} else {
			stockConsumer = consumer
			if err := stockConsumer.Start(ctx); err != nil {
				logger.WithError(err).Warn("failed to start stock consumer")
				stockConsumer = nil
			}
		}
	}

	apiHandler := httpapi.NewHandler(httpapi.HandlerConfig{
		Machine:   machine,
		Finalizer: finalizer,
		Products:  deps.Products,
		Customers: deps.Customers,
		Sales:     deps.Sales,
		Journal:   deps.Journal,
		Logger:    log.WithField("component", "http"),
		Metrics:   checkoutMetrics,
	})

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	apiHandler.RegisterRoutes(router)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.Store != nil {
		store := deps.Store
		healthHandler.RegisterChecker("postgres", healthcheck.NewSimpleChecker("postgres", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return store.Ping(pingCtx)
		}))
	} else {
		healthHandler.RegisterChecker("storage", healthcheck.NewSimpleChecker("storage", func() error {
			return nil
		}))
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API кассы слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	stopKafka := func() {
		if stockConsumer != nil {
			if err := stockConsumer.Stop(); err != nil {
				logger.WithError(err).Warn("failed to stop stock consumer")
			}
		}
		closeKafka(producer, logger)
	}

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP сервер")
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		stopKafka()
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		stopKafka()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startMetricsServer запускает HTTP-обработчики /metrics и health probes.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
