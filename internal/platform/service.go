// Package platform exposes light entities over MQTT: retained state on
// <base>/light/<entity>/state, commands on <base>/light/<entity>/set and a
// broker-managed availability marker on <base>/status.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cfeehan/hubspaced/internal/afero"
	"github.com/cfeehan/hubspaced/internal/entity"
	"github.com/cfeehan/hubspaced/internal/eventbus"
	"github.com/cfeehan/hubspaced/internal/framebuffer"
	"github.com/cfeehan/hubspaced/internal/mqtt"
)

// command is the wire shape of a set message.
type command struct {
	On           *bool  `json:"on"`
	Brightness   *int   `json:"brightness"`
	RGB          []int  `json:"rgb"`
	TemperatureK *int   `json:"color_temp_kelvin"`
	Effect       string `json:"effect"`
}

// deviceEntities tracks everything created for one physical device.
type deviceEntities struct {
	entities []entity.Entity
	cancel   context.CancelFunc
}

// CloudClient is the cloud surface the service needs: issue state changes and
// read resource snapshots.
type CloudClient interface {
	framebuffer.Bridge
	framebuffer.ResourceStore
}

// Service binds device resources to MQTT entities.
type Service struct {
	client    CloudClient
	registry  *framebuffer.Registry
	publisher mqtt.Publisher

	topicBase       string
	refreshInterval time.Duration

	ctx context.Context

	mu      sync.Mutex
	devices map[string]*deviceEntities
}

// NewService creates the platform service.
func NewService(client CloudClient, registry *framebuffer.Registry, publisher mqtt.Publisher, topicBase string, refreshInterval time.Duration) *Service {
	return &Service{
		client:          client,
		registry:        registry,
		publisher:       publisher,
		topicBase:       topicBase,
		refreshInterval: refreshInterval,
		devices:         make(map[string]*deviceEntities),
	}
}

// AvailabilityTopic returns the service-wide availability topic for a base.
func AvailabilityTopic(base string) string {
	return base + "/status"
}

func (s *Service) stateTopic(entityID string) string {
	return fmt.Sprintf("%s/light/%s/state", s.topicBase, entityID)
}

func (s *Service) commandTopic(entityID string) string {
	return fmt.Sprintf("%s/light/%s/set", s.topicBase, entityID)
}

// Register subscribes to device lifecycle events. Must be called before the
// poller starts so the initial resource_added burst is not missed.
func (s *Service) Register(ctx context.Context, bus *eventbus.Bus) {
	s.ctx = ctx

	bus.Subscribe(eventbus.EventTypeResourceAdded, func(ev eventbus.Event) {
		s.addDevice(ev.DeviceID)
	})
	bus.Subscribe(eventbus.EventTypeResourceUpdated, func(ev eventbus.Event) {
		s.updateDevice(ev.DeviceID)
	})
	bus.Subscribe(eventbus.EventTypeResourceRemoved, func(ev eventbus.Event) {
		s.removeDevice(ev.DeviceID)
	})
}

// Run blocks until the context is cancelled, then tears down per-device
// refresh loops.
func (s *Service) Run(ctx context.Context) error {
	<-ctx.Done()

	s.mu.Lock()
	for id, dev := range s.devices {
		dev.cancel()
		delete(s.devices, id)
	}
	s.mu.Unlock()

	return nil
}

// addDevice builds the entities for a newly discovered device, wires their
// command topics and publishes initial state.
func (s *Service) addDevice(deviceID string) {
	res, ok := s.client.Resource(deviceID)
	if !ok {
		return
	}

	s.mu.Lock()
	if _, exists := s.devices[deviceID]; exists {
		s.mu.Unlock()
		s.updateDevice(deviceID)
		return
	}

	entities := entity.Build(res, s.client, s.client, s.registry)
	devCtx, cancel := context.WithCancel(s.ctx)
	s.devices[deviceID] = &deviceEntities{entities: entities, cancel: cancel}
	s.mu.Unlock()

	for _, e := range entities {
		e := e
		if err := s.publisher.Subscribe(s.commandTopic(e.ID()), func(_ string, payload []byte) {
			s.handleCommand(e, payload)
		}); err != nil {
			log.Error().Err(err).Str("entity", e.ID()).Msg("Command topic subscribe failed")
		}
		s.publishState(e)

		// String light bulbs track sibling writes by polling the shared
		// framebuffer; other entity kinds get fresh state from device poll
		// events instead.
		if bulb, ok := e.(*entity.Bulb); ok {
			go bulb.RunRefresh(devCtx, s.refreshInterval, func() {
				s.publishState(bulb)
			})
		}
	}

	log.Info().
		Str("device", deviceID).
		Int("entities", len(entities)).
		Msg("Device entities published")
}

// updateDevice republishes state for all of a device's entities after a
// snapshot refresh.
func (s *Service) updateDevice(deviceID string) {
	s.mu.Lock()
	dev, ok := s.devices[deviceID]
	s.mu.Unlock()
	if !ok {
		s.addDevice(deviceID)
		return
	}

	for _, e := range dev.entities {
		if bulb, isBulb := e.(*entity.Bulb); isBulb {
			bulb.RefreshFromContext()
		}
		s.publishState(e)
	}
}

// removeDevice tears down a vanished device: stops refresh loops, drops the
// shared framebuffer context and clears retained state.
func (s *Service) removeDevice(deviceID string) {
	s.mu.Lock()
	dev, ok := s.devices[deviceID]
	if ok {
		delete(s.devices, deviceID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	dev.cancel()
	s.registry.Remove(deviceID)

	for _, e := range dev.entities {
		if err := s.publisher.Unsubscribe(s.commandTopic(e.ID())); err != nil {
			log.Warn().Err(err).Str("entity", e.ID()).Msg("Command topic unsubscribe failed")
		}
		// Empty retained payload clears the topic on the broker.
		if err := s.publisher.Publish(s.stateTopic(e.ID()), nil, true); err != nil {
			log.Warn().Err(err).Str("entity", e.ID()).Msg("State topic clear failed")
		}
	}

	log.Info().Str("device", deviceID).Msg("Device entities removed")
}

// handleCommand decodes and executes one set message, then republishes state.
func (s *Service) handleCommand(e entity.Entity, payload []byte) {
	var cmd command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		log.Warn().Err(err).Str("entity", e.ID()).Msg("Malformed command payload")
		return
	}

	var err error
	if cmd.On != nil && !*cmd.On {
		err = e.TurnOff(s.ctx)
	} else {
		req := entity.TurnOnRequest{
			Brightness:   cmd.Brightness,
			TemperatureK: cmd.TemperatureK,
			Effect:       cmd.Effect,
		}
		if len(cmd.RGB) == 3 {
			req.RGB = &afero.RGB{Red: cmd.RGB[0], Green: cmd.RGB[1], Blue: cmd.RGB[2]}
		}
		err = e.TurnOn(s.ctx, req)
	}
	if err != nil {
		log.Error().Err(err).Str("entity", e.ID()).Msg("Command failed")
		return
	}

	s.publishState(e)
}

// publishState emits an entity's current state as a retained message.
func (s *Service) publishState(e entity.Entity) {
	payload, err := json.Marshal(e.State())
	if err != nil {
		log.Error().Err(err).Str("entity", e.ID()).Msg("State marshal failed")
		return
	}
	if err := s.publisher.Publish(s.stateTopic(e.ID()), payload, true); err != nil {
		log.Warn().Err(err).Str("entity", e.ID()).Msg("State publish failed")
	}
}
