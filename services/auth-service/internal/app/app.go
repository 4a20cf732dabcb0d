// Package app wires and runs the auth service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/config"
	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/database"
	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/handler"
	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/notifier"
	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/payload"
	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/repository"
	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/usecase"
	"github.com/vasapolrittideah/credential-authority/shared/auth"
	"github.com/vasapolrittideah/credential-authority/shared/discovery"
	"github.com/vasapolrittideah/credential-authority/shared/interceptor"
	"github.com/vasapolrittideah/credential-authority/shared/introspect"
	"github.com/vasapolrittideah/credential-authority/shared/mailer"
	"github.com/vasapolrittideah/credential-authority/shared/provider"
	"github.com/vasapolrittideah/credential-authority/shared/telemetry"
	"github.com/vasapolrittideah/credential-authority/shared/utilities"
)

const shutdownTimeout = 10 * time.Second

// App hosts the HTTP API, the gRPC introspection service and the session
// sweeper.
type App struct {
	cfg    *config.AuthServiceConfig
	logger *zerolog.Logger

	store        *repository.Store
	httpListener net.Listener
	httpServer   *http.Server
	grpcListener net.Listener
	grpcServer   *grpc.Server
	health       *health.Server
	sweeper      *usecase.SessionSweeper

	registry        *discovery.ConsulRegistry
	registration    discovery.Registration
	shutdownTracing telemetry.ShutdownFunc
}

// New builds the service from cfg. Resources acquired before a failure are
// released.
func New(ctx context.Context, cfg *config.AuthServiceConfig, logger *zerolog.Logger) (_ *App, err error) {
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.closeListeners()
			a.release(context.Background())
		}
	}()

	a.shutdownTracing, err = telemetry.Setup(ctx, cfg.ServiceName, telemetry.Config{
		Enabled:  cfg.OTel.Enabled,
		Endpoint: cfg.OTel.Endpoint,
		Insecure: cfg.OTel.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}

	a.store, err = openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	verifier, err := provider.NewGoogleIdentityVerifier(ctx, provider.GoogleConfig{
		ClientID: cfg.Google.ClientID,
		Timeout:  cfg.Google.VerifyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create google verifier: %w", err)
	}

	resetNotifier, err := newResetNotifier(cfg, logger)
	if err != nil {
		return nil, err
	}

	validator, err := payload.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("create validator: %w", err)
	}

	tokens := auth.NewJWTAuthenticator(cfg.Token.Secret, cfg.Token.Issuer, cfg.Token.Audience, cfg.Token.TTL)

	authUsecase := usecase.NewAuthUsecase(
		logger,
		a.store.Users,
		a.store.Sessions,
		a.store.ResetTokens,
		tokens,
		verifier,
		cfg,
	)
	passwordResetUsecase := usecase.NewPasswordResetUsecase(
		logger,
		a.store.Users,
		a.store.Sessions,
		a.store.ResetTokens,
		resetNotifier,
		cfg,
	)
	a.sweeper = usecase.NewSessionSweeper(logger, a.store.Sessions, a.store.ResetTokens, cfg.Session.SweepInterval)

	a.httpListener, err = net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on http addr %s: %w", cfg.HTTPAddr, err)
	}
	a.httpServer = &http.Server{
		Handler:           handler.NewHTTPRouter(logger, authUsecase, passwordResetUsecase, a.store, validator),
		ReadHeaderTimeout: 5 * time.Second,
	}

	a.grpcListener, err = net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on grpc addr %s: %w", cfg.GRPCAddr, err)
	}
	a.grpcServer = grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.UnaryInterceptor(interceptor.NewAuthInterceptor(authUsecase, handler.ExemptGRPCMethods)),
	)
	handler.NewIntrospectionGRPCHandler(a.grpcServer, logger, authUsecase)
	a.health = utilities.RegisterHealthServer(a.grpcServer, introspect.ServiceName)

	if cfg.Consul.Enabled {
		if err := a.register(); err != nil {
			return nil, err
		}
	}

	return a, nil
}

func openStore(ctx context.Context, cfg *config.AuthServiceConfig) (*repository.Store, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverMongo:
		client, db, err := database.ConnectMongo(ctx, cfg.Storage.MongoURI, cfg.Storage.MongoDatabase)
		if err != nil {
			return nil, err
		}

		store, err := repository.NewMongoStore(ctx, client, db)
		if err != nil {
			_ = client.Disconnect(ctx)
			return nil, fmt.Errorf("prepare mongo collections: %w", err)
		}
		return store, nil

	default:
		db, err := database.OpenPostgres(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, err
		}

		if err := database.RunMigrations(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return repository.NewPostgresStore(db), nil
	}
}

func newResetNotifier(cfg *config.AuthServiceConfig, logger *zerolog.Logger) (usecase.ResetNotifier, error) {
	if !cfg.MailDeliveryEnabled() {
		event := logger.Error()
		if cfg.IsDevelopment() {
			event = logger.Warn()
		}
		event.Str("environment", cfg.Environment).
			Msg("mail delivery is disabled, password reset links will not be sent; set SMTP_HOST or MAIL_ENABLED=true")
		return notifier.NewLogNotifier(logger), nil
	}

	mailerCfg, err := mailer.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load mailer config: %w", err)
	}

	m, err := mailer.NewMailer(mailerCfg)
	if err != nil {
		return nil, fmt.Errorf("create mailer: %w", err)
	}

	return notifier.NewEmailNotifier(m, cfg.AppPasswordResetURL), nil
}

func (a *App) register() error {
	registry, err := discovery.NewConsulRegistry(a.cfg.Consul.Address)
	if err != nil {
		return err
	}

	hostname, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("resolve hostname: %w", err)
	}

	registration, err := discovery.RegistrationFromAddr(a.cfg.ServiceName, a.grpcListener.Addr().String(), hostname)
	if err != nil {
		return err
	}
	registration.Tags = []string{"grpc", a.cfg.Environment}

	if err := registry.Register(registration); err != nil {
		return err
	}

	a.registry = registry
	a.registration = registration
	return nil
}

// Run serves until ctx ends or a server fails, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	serverCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		a.sweeper.Run(serverCtx)
	}()

	a.logger.Info().Str("addr", a.grpcListener.Addr().String()).Msg("gRPC server listening")
	grpcErr := make(chan error, 1)
	go func() {
		grpcErr <- a.grpcServer.Serve(a.grpcListener)
	}()

	a.logger.Info().Str("addr", a.httpListener.Addr().String()).Msg("HTTP server listening")
	httpErr := make(chan error, 1)
	go func() {
		httpErr <- a.httpServer.Serve(a.httpListener)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info().Msg("shutting down")
	case err := <-grpcErr:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			runErr = fmt.Errorf("serve gRPC: %w", err)
		}
	case err := <-httpErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("serve HTTP: %w", err)
		}
	}

	cancel()
	<-sweeperDone

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()

	a.health.Shutdown()
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("failed to shut down HTTP server")
	}
	a.grpcServer.GracefulStop()
	a.release(shutdownCtx)

	return runErr
}

// release frees what New acquired. It tolerates a partially built App.
func (a *App) release(ctx context.Context) {
	if a.registry != nil {
		if err := a.registry.Deregister(a.registration); err != nil {
			a.logger.Error().Err(err).Msg("failed to deregister service")
		}
	}
	if a.store != nil {
		if err := a.store.Close(ctx); err != nil {
			a.logger.Error().Err(err).Msg("failed to close store")
		}
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			a.logger.Error().Err(err).Msg("failed to flush traces")
		}
	}
}

func (a *App) closeListeners() {
	if a.grpcListener != nil {
		_ = a.grpcListener.Close()
	}
	if a.httpListener != nil {
		_ = a.httpListener.Close()
	}
}
