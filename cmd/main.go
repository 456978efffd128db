package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"vetchat/auth"
	"vetchat/contract"
	"vetchat/infrastructure/api"
	grpcserver "vetchat/infrastructure/grpc/server"
	"vetchat/infrastructure/queue"
	"vetchat/infrastructure/realtime"
	"vetchat/internal"
	"vetchat/repositories"
	"vetchat/runtime"
	"vetchat/runtime/workers"
	"vetchat/services"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component, serves until a signal arrives and returns only
// once all deferred cleanups can run.
func run() error {
	// 1. Configuration & Logger
	// A missing .env is fine, the environment may already be set.
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()
	if config.InspectPort > 0 {
		endpoint := "/inspect"
		log.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d%s", config.InspectPort, endpoint))
		database.StartDebugServer(db, config.InspectPort, endpoint, inspectMapper)
	}

	conversations := repositories.NewConversationRepository(db, log)
	messages := repositories.NewMessageRepository(db, log)
	profiles := repositories.NewProfileRepository(db)
	var notifier contract.Notifier = repositories.NewNotificationRepository(db, log)
	if config.RedisURL != "" {
		client, err := queue.NewClient(config.RedisURL)
		if err != nil {
			return fmt.Errorf("notification queue: %w", err)
		}
		defer func() { _ = client.Close() }()
		notifier = queue.NewNotifier(log, notifier, client, config.NotificationQueue)
		log.Info("Notifications are enqueued", "queue", config.NotificationQueue)
	}

	// 3. Supervision & Orchestration
	presence := runtime.NewPresence(log)
	orchestrator := runtime.NewOrchestrator(log,
		workers.NewSupervisor(log, config.RestartInterval), presence, config.PresenceReportInterval)
	health := grpcserver.NewHealthServer(log, presence, config.HealthCheckInterval)
	orchestrator.Add(health)

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orchestrator.Start(ctx)
	defer orchestrator.Stop()

	// 5. Services & transports
	chat := services.NewChatService(log, presence, conversations, messages, profiles, notifier, services.Options{
		MaxContentLength:      config.MaxContentLength,
		DefaultPageSize:       config.DefaultPageSize,
		MaxPageSize:           config.MaxPageSize,
		DeliveryTimeout:       config.DeliveryTimeout,
		SendRatePerSecond:     config.SendRatePerSecond,
		SendRateBurst:         config.SendRateBurst,
		RequireKnownRecipient: config.RequireKnownRecipient,
	})
	authenticator := auth.NewAuthenticator(config.JwtSecret, config.JwtIssuer)
	gateway := realtime.NewGateway(log, authenticator, chat, realtime.GatewayOptions{
		ConnectionBufferSize: config.ConnectionBufferSize,
		SendTimeout:          config.SendTimeout,
	})

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, authenticator, chat, gateway)

	httpServer := &http.Server{
		Addr:              net.JoinHostPort(config.Host, strconv.Itoa(config.Port)),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcServer := grpc.NewServer()
	health.Register(grpcServer)
	grpcAddress := net.JoinHostPort(config.Host, strconv.Itoa(config.GrpcPort))
	listener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}

	// 6. Serve until a signal or the first server error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("Starting gRPC server", "address", grpcAddress)
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("gRPC server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()
		grpcServer.GracefulStop()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err = g.Wait(); err != nil {
		return err
	}
	log.Info("Program stopped cleanly")
	return nil
}

// inspectMapper renders vetchat records in the badger debug inspector.
func inspectMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	record := internal.RecordMapper(key, val)
	row.Type = record.Type
	row.Detail = record.Detail
	return row
}
