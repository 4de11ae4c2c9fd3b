package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/nkiryanov/authgate/internal/db"
	"github.com/nkiryanov/authgate/internal/handlers"
	"github.com/nkiryanov/authgate/internal/logger"
	"github.com/nkiryanov/authgate/internal/notifier"
	"github.com/nkiryanov/authgate/internal/repository/postgres"
	"github.com/nkiryanov/authgate/internal/service/auth"
	"github.com/nkiryanov/authgate/internal/service/credential"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Initialize services
	lifecycle, err := auth.NewLifecycle(auth.Config{SecretKey: c.SecretKey}, storage)
	if err != nil {
		return nil, fmt.Errorf("error while creating token lifecycle. Err: %w", err)
	}
	authService, err := auth.NewService(lifecycle, nil, storage)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}
	credentialService, err := credential.NewService(storage, lifecycle, nil, newNotifier(c, logger), logger)
	if err != nil {
		return nil, fmt.Errorf("error while creating credential service. Err: %w", err)
	}

	mux := handlers.NewRouter(lifecycle, authService, credentialService, logger)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
	}, nil
}

// newNotifier wires the SMTP mailer when a relay is configured and falls
// back to logging outgoing emails otherwise
func newNotifier(c *Config, l logger.Logger) credential.Notifier {
	if c.SMTPAddr == "" {
		return notifier.LogNotifier{Logger: l}
	}

	var smtpAuth smtp.Auth
	if c.SMTPUsername != "" {
		host := c.SMTPAddr
		if i := strings.LastIndex(host, ":"); i != -1 {
			host = host[:i]
		}
		smtpAuth = smtp.PlainAuth("", c.SMTPUsername, c.SMTPPassword, host)
	}

	return notifier.NewMailer(c.SMTPAddr, c.SMTPFrom, c.BaseURL, smtpAuth)
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			slog.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		slog.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	slog.Info("Starting server")
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
