package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/cfeehan/hubspaced/internal/config"
)

// App owns the service container and its lifecycle.
type App struct {
	cfg      *config.Config
	services *Services
}

// New builds the app with all services initialized but not started.
func New(cfg *config.Config) (*App, error) {
	services, err := NewServices(cfg)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		services: services,
	}, nil
}

// Run starts all services, blocks until the context is cancelled (or a
// service reports a fatal error), then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// A fatal service error cancels the run context to trigger shutdown.
	onFatalError := func(err error) {
		log.Error().Err(err).Msg("Fatal error, initiating shutdown")
		cancel()
	}

	if err := a.services.Start(runCtx, onFatalError); err != nil {
		a.services.Close()
		return err
	}
	log.Info().Msg("hubspaced started")

	<-runCtx.Done()

	log.Info().Msg("Shutting down...")
	return a.services.Stop()
}

// SignalContext creates a context that is cancelled when SIGINT or SIGTERM is received.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	return ctx
}
