package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/cashflow/internal/api"
	"github.com/mmynk/cashflow/internal/auth"
	"github.com/mmynk/cashflow/internal/calculator"
	"github.com/mmynk/cashflow/internal/config"
	"github.com/mmynk/cashflow/internal/metrics"
	"github.com/mmynk/cashflow/internal/middleware"
	"github.com/mmynk/cashflow/internal/service"
	"github.com/mmynk/cashflow/internal/storage/sqlite"
	"github.com/mmynk/cashflow/pkg/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup("info", "text")
		return err
	}

	// Setup structured logging
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if cfg.GeneratedSecret {
		slog.Warn("JWT_SECRET not set, using a random secret; sessions end on restart")
	}

	// Initialize SQLite storage
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", cfg.DBPath)

	m := metrics.New()
	engine := calculator.New(
		calculator.WithPrecision(cfg.CurrencyPlaces),
		calculator.WithMaxIterations(cfg.MaxIterations),
	)
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL)

	obligations := service.NewObligationService(store, engine.Places(), m)
	settlements := service.NewSettlementService(store, engine, m)

	// Interceptors run outermost first.
	interceptors := connect.WithInterceptors(
		middleware.MetricsInterceptor(m),
		middleware.ProtectProcedures(jwtManager, service.ProtectedProcedures...),
		middleware.LoggingInterceptor(),
	)

	rpc := make(map[string]http.Handler)
	for _, svc := range []interface {
		Handler(...connect.HandlerOption) (string, http.Handler)
	}{
		obligations,
		settlements,
		service.NewGroupService(store),
		service.NewAuthService(auth.NewPasswordAuthenticator(store), jwtManager, store, slog.Default()),
	} {
		path, handler := svc.Handler(interceptors)
		rpc[path] = handler
	}

	router := api.NewRouter(api.Options{
		Obligations: obligations,
		Settlements: settlements,
		Metrics:     m,
		CORSOrigins: cfg.CORSOrigins,
		RPC:         rpc,
	})

	// Wrap with h2c for HTTP/2 without TLS (required for Connect)
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h2c.NewHandler(router, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "address", cfg.Addr(), "places", engine.Places())
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
