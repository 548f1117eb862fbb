package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/commercekit/fulfillment/internal/coupons"
	"github.com/commercekit/fulfillment/internal/domain"
	"github.com/commercekit/fulfillment/internal/fulfillment"
	"github.com/commercekit/fulfillment/internal/gateway"
	"github.com/commercekit/fulfillment/internal/httpapi"
	"github.com/commercekit/fulfillment/internal/ledger"
	"github.com/commercekit/fulfillment/internal/likes"
	"github.com/commercekit/fulfillment/internal/messaging"
	"github.com/commercekit/fulfillment/internal/orders"
	"github.com/commercekit/fulfillment/internal/payments"
	"github.com/commercekit/fulfillment/internal/telemetry"
	"github.com/commercekit/fulfillment/internal/tx"
	"github.com/commercekit/fulfillment/internal/users"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "fulfillment", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("fulfillment", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	gatewayURL := os.Getenv("PAYMENT_GATEWAY_URL")
	if gatewayURL == "" {
		logger.Error("PAYMENT_GATEWAY_URL environment variable is required")
		os.Exit(1)
	}

	callbackURL := os.Getenv("PAYMENT_CALLBACK_URL")
	if callbackURL == "" {
		logger.Error("PAYMENT_CALLBACK_URL environment variable is required")
		os.Exit(1)
	}

	db, err := telemetry.OpenDB("postgres", postgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	var producer *messaging.Producer
	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers != "" {
		brokers := strings.Split(kafkaBrokers, ",")
		producer = messaging.NewProducer(brokers, "fulfillment.events")
		defer func() { _ = producer.Close() }()
	}

	bus := tx.NewBus()
	manager := tx.NewManager(db, bus, logger)

	orderStore := orders.NewStore(db)
	userStore := users.NewStore(db)
	stockStore := ledger.NewStockStore(db)
	pointStore := ledger.NewPointStore(db)
	likeStore := ledger.NewLikeStore(db)
	couponStore := coupons.NewStore(db)
	paymentStore := payments.NewStore(db)

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	gatewayClient := gateway.NewClient(gatewayURL, httpClient)
	resilientGateway := gateway.NewResilient(gatewayClient, gateway.DefaultConfig(), logger)

	registry := payments.NewRegistry()
	registry.Register(domain.PaymentTypePoint, payments.NewPointProcessor(pointStore))
	registry.Register(domain.PaymentTypeCard, payments.NewCardProcessor(resilientGateway, callbackURL))

	var sink fulfillment.AnalyticsSink
	if producer != nil {
		sink = producer
	} else {
		sink = noopSink{}
	}
	fulfillment.RegisterHandlers(bus, stockStore, couponStore, paymentStore, sink, logger)

	service := fulfillment.NewService(
		manager, orderStore, userStore, stockStore, couponStore,
		paymentStore, registry, resilientGateway, pointStore, logger,
	)

	var likePublisher likes.Publisher
	if producer != nil {
		likePublisher = producer
	}
	likeService := likes.NewService(likeStore, likePublisher, logger)

	handler := httpapi.NewHandler(service, likeService, logger)
	mux := http.NewServeMux()
	handler.Routes(mux)
	mux.Handle("GET /metrics", metricsHandler)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(mux, "fulfillment",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting fulfillment service", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	// Let in-flight post-commit handlers drain before the process exits.
	manager.Wait()
}

type noopSink struct{}

func (noopSink) Publish(context.Context, string, any) error { return nil }
