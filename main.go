package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"gopkg.in/natefinch/lumberjack.v2"

	"payments-service/config"
	"payments-service/gateway"
	"payments-service/handlers"
	"payments-service/repository"
	"payments-service/routes"
	"payments-service/scheduler"
	"payments-service/services"
)

var (
	server      *gin.Engine
	ctx         context.Context
	mongoclient *mongo.Client
	cfg         *config.Config

	reservationRepository   *repository.ReservationRepository
	cancellationRepository  *repository.CancellationRepository
	accommodationRepository *repository.AccommodationRepository

	orderService        services.OrderService
	paymentService      services.PaymentService
	cancellationService services.CancellationService
	refundStatusService services.RefundStatusService
	notificationService services.NotificationService

	PaymentHandler      handlers.PaymentHandler
	CancellationHandler handlers.CancellationHandler
	WebhookHandler      handlers.WebhookHandler
	PaymentRouteHandler routes.PaymentRouteHandler

	reconciler *scheduler.Reconciler
)

func init() {
	ctx = context.TODO()
	cfg = config.LoadConfig()

	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	lumberjackLog := &lumberjack.Logger{
		Filename:  "/payments-service/logs/logfile.log",
		MaxSize:   1,
		LocalTime: true,
	}
	logger.SetOutput(lumberjackLog)

	mongoconn := options.Client().ApplyURI(cfg.MongoURI)
	var err error
	mongoclient, err = mongo.Connect(ctx, mongoconn)
	if err != nil {
		panic(err)
	}
	if err := mongoclient.Ping(ctx, readpref.Primary()); err != nil {
		panic(err)
	}
	fmt.Println("MongoDB successfully connected...")

	tracerProvider, err := NewTracerProvider(cfg.ServiceName, cfg.JaegerAddress)
	if err != nil {
		log.Fatal("JaegerTraceProvider failed to Initialize", err)
	}
	tracer := tracerProvider.Tracer(cfg.ServiceName)

	// Collections
	reservationCollection := mongoclient.Database("Gobnb").Collection("reservations")
	cancellationCollection := mongoclient.Database("Gobnb").Collection("cancellations")
	accommodationCollection := mongoclient.Database("Gobnb").Collection("accommodation")

	storeLogger := log.New(os.Stdout, "[payments-store] ", log.LstdFlags)
	reservationRepository = repository.NewReservationRepository(reservationCollection, storeLogger)
	cancellationRepository = repository.NewCancellationRepository(cancellationCollection, storeLogger)
	accommodationRepository = repository.NewAccommodationRepository(accommodationCollection, storeLogger)
	reservationRepository.EnsureIndexes(ctx)
	cancellationRepository.EnsureIndexes(ctx)

	gatewayClient := gateway.NewRazorpayClient(cfg.GatewayBaseURL, cfg.RazorpayKeyID, cfg.RazorpayKeySecret, logger)
	authClient := handlers.NewAuthClient(cfg.AuthServiceURL, tracer)

	notificationService = services.NewNotificationServiceImpl(cfg, logger)
	orderService = services.NewOrderServiceImpl(reservationRepository, accommodationRepository, gatewayClient, tracer)
	paymentService = services.NewPaymentServiceImpl(reservationRepository, cfg.RazorpayKeySecret, tracer)
	refundStatusService = services.NewRefundStatusServiceImpl(reservationRepository, cancellationRepository, notificationService, logger, tracer)
	cancellationService = services.NewCancellationServiceImpl(reservationRepository, cancellationRepository,
		accommodationRepository, gatewayClient, notificationService, logger, tracer)

	PaymentHandler = handlers.NewPaymentHandler(orderService, paymentService, reservationRepository, cancellationRepository, authClient, tracer)
	CancellationHandler = handlers.NewCancellationHandler(cancellationService, authClient, tracer)
	WebhookHandler = handlers.NewWebhookHandler(refundStatusService, cfg.RazorpayWebhookSecret, logger, tracer)
	PaymentRouteHandler = routes.NewPaymentRouteHandler(PaymentHandler, CancellationHandler, WebhookHandler)

	reconciler = scheduler.NewReconciler(reservationRepository, cancellationRepository, refundStatusService,
		gatewayClient, notificationService, logger, tracer,
		time.Duration(cfg.ReconcileIntervalMinutes)*time.Minute,
		time.Duration(cfg.ReconcileThrottleMillis)*time.Millisecond)

	server = gin.Default()
}

func main() {
	defer mongoclient.Disconnect(ctx)

	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	reconciler.Start(schedulerCtx)

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"https://localhost:4200"}
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")

	server.Use(cors.New(corsConfig))

	router := server.Group("/api")
	router.GET("/healthchecker", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "success", "message": "Message"})
	})

	PaymentRouteHandler.PaymentRoute(router)

	err := server.RunTLS(":8090", "/app/payments-service.crt", "/app/payments_decrypted_key.pem")
	if err != nil {
		fmt.Println(err)
		return
	}
}

func NewTracerProvider(serviceName, collectorEndpoint string) (*sdktrace.TracerProvider, error) {
	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(collectorEndpoint)))
	if err != nil {
		return nil, fmt.Errorf("unable to initialize exporter due: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
			semconv.DeploymentEnvironmentKey.String("development"),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp, nil
}
