package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"barter-service/internal/config"
	"barter-service/internal/db"
	"barter-service/internal/events"
	"barter-service/internal/handlers"
	"barter-service/internal/middleware"
	"barter-service/internal/observability"
	"barter-service/internal/rabbitmq"
	"barter-service/internal/reconcile"
	"barter-service/internal/repositories"
	"barter-service/internal/telemetry"
	"barter-service/internal/ws"
)

const auditRoutingKey = "audit.barter"

func serve(ctx context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.ServiceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("tracer shutdown failed: %v", err)
		}
	}()

	database, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("failed to connect to db: %w", err)
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	log.Printf("event publisher mode=%s reason=%q", rabbitmq.PublisherMode(publisher), rabbitmq.PublisherNoopReason(publisher))

	messageRepo := repositories.NewMessageRepo(database)
	recordRepo := repositories.NewRecordRepo(database)
	donationRepo := repositories.NewDonationRepo(database)
	productRepo := repositories.NewProductRepo(database)

	hub := ws.NewHub(publisher)
	bus := events.NewBus()
	bus.Subscribe(hub.Notify)
	bus.Subscribe(rabbitmq.Forward(publisher))

	auditEmitter := telemetry.NewAuditEmitter(publisher, auditRoutingKey, cfg.ServiceName, cfg.Environment)
	coordinator := reconcile.NewCoordinator(messageRepo, recordRepo, productRepo, bus, reconcile.WithAuditor(auditEmitter))

	threadHandler := handlers.NewThreadHandler(messageRepo, coordinator, bus)
	historyHandler := handlers.NewHistoryHandler(coordinator, donationRepo)
	donationHandler := handlers.NewDonationHandler(donationRepo, bus)
	wsHandler := ws.NewHandler(hub)

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), observability.RequestIDMiddleware())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/", middleware.Identity())
	api.GET("/threads", threadHandler.ListThreads)
	api.GET("/threads/:thread_id", threadHandler.GetThread)
	api.POST("/threads/:thread_id/confirm", threadHandler.ConfirmThread)
	api.POST("/threads/:thread_id/read", threadHandler.MarkThreadRead)

	api.POST("/messages", threadHandler.PostMessage)
	api.PATCH("/messages/:message_id", threadHandler.EditMessage)
	api.DELETE("/messages/:message_id", threadHandler.DeleteMessage)

	api.DELETE("/transactions/:tx_key", threadHandler.DeleteTransaction)
	api.GET("/history", historyHandler.GetHistory)

	api.PATCH("/donations/:donation_id/status", donationHandler.UpdateStatus)
	api.DELETE("/donations/:donation_id", donationHandler.Delete)

	api.GET("/ws", wsHandler.Handle)

	handlers.RegisterDebugRoutes(router, auditEmitter, coordinator, cfg.DebugRoutes)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "X-User-ID", "X-Request-ID"},
		AllowCredentials: true,
	})
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           corsHandler.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.UnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(cfg.ServiceName, healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen on grpc port: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		log.Printf("grpc health server listening port=%s", cfg.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		log.Printf("http server listening port=%s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Printf("shutdown requested")
	case serveErr = <-errCh:
		log.Printf("server failed: %v", serveErr)
	}

	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown failed: %v", err)
	}
	grpcServer.GracefulStop()
	return serveErr
}
