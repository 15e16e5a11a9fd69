package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-sync/internal/auth"
	"chat-sync/internal/config"
	"chat-sync/internal/db"
	"chat-sync/internal/gateway"
	grpchealth "chat-sync/internal/grpc"
	"chat-sync/internal/handlers"
	"chat-sync/internal/logging"
	"chat-sync/internal/media"
	"chat-sync/internal/middleware"
	"chat-sync/internal/observability"
	"chat-sync/internal/rabbitmq"
	"chat-sync/internal/store"
	"chat-sync/internal/telemetry"
	"chat-sync/internal/ws"
)

const auditRoutingKey = "audit.chat"

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.New(cfg.ServiceName, cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		level.Error(logger).Log("msg", "service stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	shutdownTracer, err := observability.InitTracer(ctx, cfg.ServiceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(shutdownCtx)
	}()

	backend, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	observed := store.NewObserved(backend, logger)
	defer observed.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	level.Info(logger).Log("msg", "event publisher ready", "mode", rabbitmq.PublisherMode(publisher))

	gw := gateway.New(observed,
		gateway.WithLogger(logger),
		gateway.WithPublisher(publisher),
	)
	audit := telemetry.NewAuditEmitter(publisher, auditRoutingKey, cfg.ServiceName, cfg.Environment, logger)
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTDuration, cfg.ServiceName)

	uploader, err := openMedia(ctx, cfg, logger)
	if err != nil {
		return err
	}

	limiter := middleware.NewLimiterStore(cfg.RateLimitRPM, cfg.RateLimitRPM/4+1, time.Minute)
	defer limiter.Stop()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.RequestIDMiddleware())
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if opener, ok := uploader.(handlers.Opener); ok {
		router.GET("/media/files/*path", handlers.Files(opener))
	}

	authed := router.Group("/", middleware.AuthMiddleware(jwtManager), middleware.RateLimitMiddleware(limiter))

	userHandler := handlers.NewUserHandler(gw, audit)
	authed.GET("/users/exists", userHandler.Exists)
	authed.POST("/users", userHandler.Register)
	authed.GET("/users", userHandler.List)
	authed.GET("/users/search", userHandler.Search)

	chatHandler := handlers.NewChatHandler(gw, audit)
	authed.GET("/conversations", chatHandler.ListConversations)
	authed.POST("/conversations", chatHandler.StartConversation)
	authed.GET("/conversations/exists", chatHandler.ConversationExists)
	authed.DELETE("/conversations/:conversation_id", chatHandler.DeleteConversation)
	authed.GET("/conversations/:conversation_id/messages", chatHandler.GetMessages)
	authed.POST("/conversations/:conversation_id/messages", chatHandler.PostMessage)

	mediaHandler := handlers.NewMediaHandler(uploader)
	authed.POST("/media/:kind", mediaHandler.Upload)
	authed.GET("/media/url", mediaHandler.URL)

	live := ws.NewLiveHandler(ws.NewHub(logger), gw, jwtManager, logger)
	router.GET("/ws/conversations", live.Conversations)
	router.GET("/ws/conversations/:conversation_id/messages", live.Messages)

	handlers.RegisterDebugRoutes(router, audit, jwtManager, cfg.DebugRoutes)

	health := grpchealth.NewHealthServer(observed, cfg.ServiceName, logger)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	go health.Watch(ctx, 15*time.Second)
	go func() {
		if err := health.Serve(lis); err != nil {
			level.Error(logger).Log("msg", "grpc server error", "err", err)
		}
	}()
	defer health.GracefulStop()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		level.Info(logger).Log("msg", "http server listening", "addr", srv.Addr, "grpc_port", cfg.GRPCPort, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	level.Info(logger).Log("msg", "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.Config, logger log.Logger) (store.Store, error) {
	switch cfg.StoreDriver {
	case "memory":
		return store.NewMemory(), nil
	case db.DriverSQLite:
		conn, err := db.Connect(ctx, db.DriverSQLite, cfg.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("connect sqlite: %w", err)
		}
		return store.NewSQL(conn), nil
	case db.DriverPostgres:
		conn, err := db.Connect(ctx, db.DriverPostgres, cfg.DBDSN, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return store.NewSQL(conn), nil
	case "mongo":
		m, err := store.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

func openMedia(ctx context.Context, cfg config.Config, logger log.Logger) (media.Uploader, error) {
	switch cfg.MediaBackend {
	case "memory":
		return media.NewMemory(cfg.MediaBaseURL), nil
	case "s3":
		s3, err := media.NewS3(ctx, media.S3Config{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
			Key:      cfg.S3Key,
			Secret:   cfg.S3Secret,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init s3: %w", err)
		}
		return s3, nil
	default:
		return nil, fmt.Errorf("unknown MEDIA_BACKEND %q", cfg.MediaBackend)
	}
}
