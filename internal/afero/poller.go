package afero

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cfeehan/hubspaced/internal/eventbus"
)

// PollerConfig contains configuration for the device poll loop.
type PollerConfig struct {
	Interval   time.Duration // Poll interval between successful fetches
	MinBackoff time.Duration // Minimum backoff after a failed fetch
	MaxBackoff time.Duration // Maximum backoff after repeated failures
	Multiplier float64       // Backoff multiplier
}

// DefaultPollerConfig returns sensible defaults for the poll loop.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:   30 * time.Second,
		MinBackoff: 1 * time.Second,
		MaxBackoff: 2 * time.Minute,
		Multiplier: 2.0,
	}
}

// Poller periodically fetches device snapshots from the cloud, refreshes the
// client's snapshot cache and publishes resource lifecycle events. The cloud
// API has no per-device push channel, so polling is the only way to learn
// about added and removed devices.
type Poller struct {
	client *Client
	config PollerConfig
}

// NewPoller creates a poller for the given client.
func NewPoller(client *Client, config PollerConfig) *Poller {
	if config.Interval == 0 {
		config = DefaultPollerConfig()
	}
	return &Poller{
		client: client,
		config: config,
	}
}

// Run polls until the context is cancelled. Failed polls back off
// exponentially and never terminate the loop.
func (p *Poller) Run(ctx context.Context, bus *eventbus.Bus) error {
	backoff := p.config.MinBackoff

	// Emit resource_added for everything already preloaded by Connect so
	// subscribers registered after startup see the full device set.
	p.client.mu.RLock()
	known := make(map[string]bool, len(p.client.snapshots))
	for id := range p.client.snapshots {
		known[id] = true
		bus.Publish(eventbus.Event{Type: eventbus.EventTypeResourceAdded, DeviceID: id})
	}
	p.client.mu.RUnlock()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(p.config.Interval):
		}

		lights, err := p.client.Devices(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().
				Err(err).
				Dur("backoff", backoff).
				Msg("Device poll failed, backing off")

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}

			backoff = time.Duration(float64(backoff) * p.config.Multiplier)
			if backoff > p.config.MaxBackoff {
				backoff = p.config.MaxBackoff
			}
			continue
		}
		backoff = p.config.MinBackoff

		seen := make(map[string]bool, len(lights))
		for _, l := range lights {
			seen[l.ID] = true
			p.client.storeSnapshot(l)

			if known[l.ID] {
				bus.Publish(eventbus.Event{Type: eventbus.EventTypeResourceUpdated, DeviceID: l.ID})
			} else {
				known[l.ID] = true
				log.Info().Str("device", l.ID).Str("name", l.Name()).Msg("Discovered new device")
				bus.Publish(eventbus.Event{Type: eventbus.EventTypeResourceAdded, DeviceID: l.ID})
			}
		}

		for id := range known {
			if !seen[id] {
				delete(known, id)
				p.client.dropSnapshot(id)
				log.Info().Str("device", id).Msg("Device removed")
				bus.Publish(eventbus.Event{Type: eventbus.EventTypeResourceRemoved, DeviceID: id})
			}
		}
	}
}
