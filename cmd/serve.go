package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fisioflow/realtime/config"
	"github.com/fisioflow/realtime/internal/queue"
	"github.com/fisioflow/realtime/internal/routers"
	notification_service "github.com/fisioflow/realtime/internal/use-case/notification-case"
	"github.com/fisioflow/realtime/internal/utils/types"
	"github.com/fisioflow/realtime/internal/websocket"
	"github.com/fisioflow/realtime/internal/worker"
	worker_handler "github.com/fisioflow/realtime/internal/worker/worker-handler"
	worker_service "github.com/fisioflow/realtime/internal/worker/worker-service"
	"github.com/fisioflow/realtime/state"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the websocket gateway, HTTP API and job workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conf := config.Conf

	appState, err := state.InitAppState(ctx, stop)
	if err != nil {
		return err
	}
	defer appState.Close()

	wsHub := websocket.NewHub()
	log.Info().Msg("Websocket hub initialized")

	wsHandler := websocket.NewWebSocketHandler(wsHub, websocket.JWTWebSocketAuth(appState.JwtSecret, appState.Redis), conf.WS.HandshakeTimeout)
	wsHandler.MaxConnections = conf.WS.MaxConnections
	wsHandler.ConnectionsPerIP = conf.WS.ConnectionsPerIP
	wsHandler.SendBuffer = conf.WS.SendBuffer
	wsHandler.AllowedOrigins = conf.WS.AllowedOrigins

	var mailer worker_service.Mailer
	if conf.MAIL.SMTPHost != "" {
		mailer = worker_service.NewSMTPMailer(conf.MAIL.SMTPHost, conf.MAIL.SMTPPort, conf.MAIL.Username, conf.MAIL.Password, conf.MAIL.From)
		log.Info().Str("host", conf.MAIL.SMTPHost).Msg("SMTP mailer enabled")
	}

	notificationService := notification_service.NewNotificationService(appState, wsHub, queue.NewProducer(appState.Redis), notification_service.Config{
		UnreadCacheTTL: conf.NOTIFICATION.UnreadCacheTTL,
		MailEnabled:    mailer != nil,
	})

	workerPool := worker.NewWorkerPool(appState, conf.WORKER.Num, worker_handler.NewWorkerHandler(notificationService, mailer), types.DLQRetryConfig{
		RetryInterval: conf.WORKER.DLQRetryInterval,
		MaxRetryCount: conf.WORKER.DLQMaxRetry,
		DatabaseName:  conf.DATABASE.Mongo.Database,
	})

	router := routers.NewRouter(routers.Deps{
		JwtSecret:     appState.JwtSecret,
		Hub:           wsHub,
		WSHandler:     wsHandler,
		Notifications: notificationService,
		Jobs:          workerPool,
	})

	server := &http.Server{
		Addr:              conf.App.Port,
		Handler:           router,
		ReadHeaderTimeout: conf.WS.HandshakeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Msgf("Starting server on http://localhost%s", conf.App.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		workerPool.Start(gctx)
		workerPool.Wait()
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutdown initiated...")

		// hijacked websocket connections are not tracked by Shutdown
		wsHub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Graceful shutdown failed")
			return err
		}
		log.Info().Msg("Server exited gracefully")
		return nil
	})

	return g.Wait()
}
