package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cfeehan/hubspaced/internal/afero"
	"github.com/cfeehan/hubspaced/internal/config"
	"github.com/cfeehan/hubspaced/internal/db"
	"github.com/cfeehan/hubspaced/internal/eventbus"
	"github.com/cfeehan/hubspaced/internal/framebuffer"
	"github.com/cfeehan/hubspaced/internal/ledger"
	"github.com/cfeehan/hubspaced/internal/mqtt"
	"github.com/cfeehan/hubspaced/internal/platform"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Ledger *ledger.Ledger
	Bus    *eventbus.Bus

	// Vendor cloud
	Afero  *afero.Client
	Poller *afero.Poller

	// Framebuffer coordination
	Registry *framebuffer.Registry

	// Platform surface
	MQTT     *mqtt.Client
	Platform *platform.Service
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	// Initialize command ledger
	s.Ledger = ledger.New(database.DB)

	// Initialize event bus
	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	// Initialize Afero cloud client with the ledger recording every write
	s.Afero = afero.NewClient(cfg.Afero.Host, cfg.Afero.AccountID, cfg.Afero.Token, cfg.Afero.Timeout.Duration())
	s.Afero.SetRecorder(s.Ledger)

	s.Poller = afero.NewPoller(s.Afero, afero.PollerConfig{
		Interval:   cfg.Afero.PollInterval.Duration(),
		MinBackoff: cfg.Afero.MinRetryBackoff.Duration(),
		MaxBackoff: cfg.Afero.MaxRetryBackoff.Duration(),
		Multiplier: cfg.Afero.RetryMultiplier,
	})

	// Shared framebuffer contexts for string lights
	s.Registry = framebuffer.NewRegistry(s.Afero, s.Afero)

	// MQTT platform surface
	availability := platform.AvailabilityTopic(cfg.MQTT.TopicBase)
	s.MQTT = mqtt.New(&cfg.MQTT, availability)
	s.Platform = platform.NewService(s.Afero, s.Registry, s.MQTT, cfg.MQTT.TopicBase, cfg.Entities.BulbRefreshInterval.Duration())

	return s, nil
}

// Start starts all services in the correct order.
// The onFatalError callback is called when a startup dependency fails later.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	// Connect to the vendor cloud and preload device snapshots
	if err := s.Afero.Connect(ctx); err != nil {
		return err
	}

	// Connect to the broker
	if err := s.MQTT.Connect(); err != nil {
		return err
	}

	// Platform service must subscribe before the poller emits the initial
	// resource_added burst
	s.Platform.Register(ctx, s.Bus)
	go func() {
		if err := s.Platform.Run(ctx); err != nil {
			onFatalError(err)
		}
	}()

	go func() {
		if err := s.Poller.Run(ctx, s.Bus); err != nil {
			onFatalError(err)
		}
	}()

	go s.runLedgerCleanup(ctx)

	return nil
}

// runLedgerCleanup periodically enforces the ledger retention policy.
func (s *Services) runLedgerCleanup(ctx context.Context) {
	interval := s.cfg.Ledger.CleanupInterval.Duration()
	retention := time.Duration(s.cfg.Ledger.RetentionDays) * 24 * time.Hour

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.Ledger.DeleteOlderThan(retention)
			if err != nil {
				log.Warn().Err(err).Msg("Ledger cleanup failed")
				continue
			}
			if removed > 0 {
				log.Debug().Int64("removed", removed).Msg("Ledger cleanup done")
			}
		}
	}
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
	defer cancel()

	if s.Bus != nil {
		s.Bus.Close(shutdownCtx)
	}
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.MQTT != nil {
		s.MQTT.Disconnect()
	}
	if s.Afero != nil {
		s.Afero.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
