package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"heartlink-client/pkg/constants"
	apperrors "heartlink-client/pkg/errors"
	"heartlink-client/pkg/logger"
	"heartlink-client/pkg/metrics"

	"heartlink-client/internal/backend"
	"heartlink-client/internal/call"
	"heartlink-client/internal/chat"
	"heartlink-client/internal/chatconn"
	"heartlink-client/internal/config"
	"heartlink-client/internal/domain"
	"heartlink-client/internal/media"
	"heartlink-client/internal/signaling"
	"heartlink-client/internal/status"
)

func main() {
	// 1. Load configuration
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appMetrics := metrics.NewMetrics(cfg.Agent.ServiceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Backend client (tokens, messages, uploads)
	backendClient := backend.NewClient(backend.Config{
		BaseURL:         cfg.Backend.BaseURL,
		AuthToken:       cfg.Backend.AuthToken,
		Timeout:         cfg.Backend.Timeout,
		RetryMaxElapsed: cfg.Backend.RetryMaxElapsed,
	})

	// 3. Chat connection and service. The websocket handlers are wired through
	// closures because the connection, manager, and service reference each
	// other.
	var connManager *chatconn.Manager
	var chatSvc *chat.Service

	wsConn := chatconn.NewWSConnection(
		cfg.Chat.GatewayURL,
		func(msg domain.Message) {
			if chatSvc != nil {
				go chatSvc.HandleInboundPush(ctx, msg)
			}
		},
		func(cause chatconn.DisconnectCause) {
			if connManager != nil {
				connManager.HandleDisconnect(ctx, cause)
			}
		},
	)

	connManager = chatconn.NewManager(wsConn, backendClient, chatconn.ManagerConfig{
		UserID:               cfg.Agent.UserID,
		MaxReconnectAttempts: cfg.Chat.MaxReconnectAttempts,
		ReconnectDelay:       cfg.Chat.ReconnectDelay,
	}, appMetrics)

	chatSvc = chat.NewService(backendClient, connManager, chat.Config{
		SelfID:       cfg.Agent.UserID,
		PollInterval: cfg.Chat.PollInterval,
	}, func(appErr *apperrors.AppError) {
		logger.Warn("chat degraded", zap.String("code", string(appErr.Code)), zap.Error(appErr))
	}, appMetrics)

	// 4. Call coordination over the signaling socket
	var coordinator *call.Coordinator

	sigClient := signaling.NewClient(cfg.Signaling.URL, signaling.Handlers{
		OnIncomingCall: func(callerID string, kind domain.CallKind, channelName string) {
			coordinator.HandleIncomingCall(callerID, kind, channelName)
		},
		OnCallAccepted: func(channelName string) {
			logger.Info("call accepted by remote peer", zap.String("channel", channelName))
		},
		OnCallRejected:  func() { coordinator.HandleRemoteRejected(ctx) },
		OnCallCancelled: func() { coordinator.HandleRemoteCancelled(ctx) },
		OnCallEnded:     func() { coordinator.HandleRemoteEnded(ctx) },
		OnNotification: func(event string) {
			chatSvc.TriggerPoll()
		},
	}, cfg.Signaling.ReconnectDelay, appMetrics)

	coordinator = call.NewCoordinator(cfg.Agent.UserID, sigClient, func() call.MediaController {
		return media.NewController(media.NewLoopbackSession(), backendClient)
	}, appMetrics)

	// 5. Start transports
	go sigClient.Run(ctx)
	if err := sigClient.JoinSelf(cfg.Agent.UserID); err != nil {
		logger.Warn("initial room join deferred to reconnect", zap.Error(err))
	}

	if err := connManager.Connect(ctx); err != nil {
		// Not fatal: the send path recovers lazily
		logger.Warn("initial chat connect failed", zap.Error(err))
	}

	go chatSvc.RunPollLoop(ctx)

	// 6. Status server
	statusServer := status.NewServer(
		cfg.Agent.ServiceName,
		cfg.Agent.UserID,
		connManager,
		coordinator,
		chatSvc,
		appMetrics,
	)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Agent.Port)
		if err := statusServer.Start(addr); err != nil {
			logger.Fatal("status server failed", zap.Error(err))
		}
	}()

	logger.Info("agent started",
		zap.String("user_id", cfg.Agent.UserID),
		zap.Int("port", cfg.Agent.Port),
		zap.String("env", cfg.Agent.Environment))

	// 7. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer shutdownCancel()
	if err := statusServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("status server shutdown", zap.Error(err))
	}
	connManager.Close()
	sigClient.Close()

	logger.Info("agent exited")
}
