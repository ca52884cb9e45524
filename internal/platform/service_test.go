package platform

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cfeehan/hubspaced/internal/afero"
	"github.com/cfeehan/hubspaced/internal/entity"
	"github.com/cfeehan/hubspaced/internal/eventbus"
	"github.com/cfeehan/hubspaced/internal/framebuffer"
	"github.com/cfeehan/hubspaced/internal/mqtt"
)

// fakeCloud is an in-memory CloudClient.
type fakeCloud struct {
	mu        sync.Mutex
	resources map[string]*afero.Light
	setCalls  []afero.SetStateRequest
}

func newFakeCloud(lights ...*afero.Light) *fakeCloud {
	c := &fakeCloud{resources: make(map[string]*afero.Light)}
	for _, l := range lights {
		c.resources[l.ID] = l
	}
	return c
}

func (f *fakeCloud) Resource(deviceID string) (*afero.Light, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.resources[deviceID]
	return l, ok
}

func (f *fakeCloud) SetState(_ context.Context, _ string, req afero.SetStateRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls = append(f.setCalls, req)
	return nil
}

func (f *fakeCloud) UpdateStates(_ context.Context, _ string, _ []afero.StateRecord) error {
	return nil
}

// fakePublisher is an in-process broker: retained messages and handlers.
type fakePublisher struct {
	mu       sync.Mutex
	retained map[string][]byte
	handlers map[string]mqtt.Handler
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{
		retained: make(map[string][]byte),
		handlers: make(map[string]mqtt.Handler),
	}
}

func (f *fakePublisher) Publish(topic string, payload []byte, retain bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if retain {
		f.retained[topic] = payload
	}
	return nil
}

func (f *fakePublisher) Subscribe(topic string, handler mqtt.Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakePublisher) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	return nil
}

func (f *fakePublisher) state(t *testing.T, topic string) entity.State {
	t.Helper()
	f.mu.Lock()
	payload, ok := f.retained[topic]
	f.mu.Unlock()
	if !ok || len(payload) == 0 {
		t.Fatalf("no retained state on %q", topic)
	}
	var s entity.State
	if err := json.Unmarshal(payload, &s); err != nil {
		t.Fatalf("bad state payload on %q: %v", topic, err)
	}
	return s
}

func (f *fakePublisher) send(t *testing.T, topic string, payload string) {
	t.Helper()
	f.mu.Lock()
	handler, ok := f.handlers[topic]
	f.mu.Unlock()
	if !ok {
		t.Fatalf("no handler on %q", topic)
	}
	handler(topic, []byte(payload))
}

func startService(t *testing.T, cloud *fakeCloud) (*Service, *fakePublisher, *eventbus.Bus) {
	t.Helper()

	pub := newFakePublisher()
	registry := framebuffer.NewRegistry(cloud, cloud)
	svc := NewService(cloud, registry, pub, "hubspaced", time.Hour)
	bus := eventbus.New()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		bus.Close(context.Background())
	})

	svc.Register(ctx, bus)
	go svc.Run(ctx)

	return svc, pub, bus
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition never satisfied")
}

func TestResourceAddedPublishesState(t *testing.T) {
	cloud := newFakeCloud(&afero.Light{
		ID:              "dev-1",
		SupportsDimming: true,
		Power:           &afero.PowerState{On: true},
		Dimming:         &afero.Dimming{Brightness: 100},
	})
	_, pub, bus := startService(t, cloud)

	bus.Publish(eventbus.Event{Type: eventbus.EventTypeResourceAdded, DeviceID: "dev-1"})

	waitFor(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return len(pub.retained["hubspaced/light/dev-1/state"]) > 0
	})

	s := pub.state(t, "hubspaced/light/dev-1/state")
	if !s.On || s.Brightness != 255 {
		t.Errorf("state = %+v", s)
	}
}

func TestCommandRoundTrip(t *testing.T) {
	cloud := newFakeCloud(&afero.Light{ID: "dev-1", SupportsDimming: true})
	_, pub, bus := startService(t, cloud)

	bus.Publish(eventbus.Event{Type: eventbus.EventTypeResourceAdded, DeviceID: "dev-1"})
	waitFor(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		_, ok := pub.handlers["hubspaced/light/dev-1/set"]
		return ok
	})

	pub.send(t, "hubspaced/light/dev-1/set", `{"on": true, "brightness": 128}`)

	cloud.mu.Lock()
	defer cloud.mu.Unlock()
	if len(cloud.setCalls) != 1 {
		t.Fatalf("cloud saw %d SetState calls, want 1", len(cloud.setCalls))
	}
	sent := cloud.setCalls[0]
	if sent.On == nil || !*sent.On {
		t.Error("command did not power on")
	}
	if sent.Brightness == nil || *sent.Brightness != 50 {
		t.Errorf("Brightness = %v, want 50", sent.Brightness)
	}
}

func TestMalformedCommandIgnored(t *testing.T) {
	cloud := newFakeCloud(&afero.Light{ID: "dev-1"})
	_, pub, bus := startService(t, cloud)

	bus.Publish(eventbus.Event{Type: eventbus.EventTypeResourceAdded, DeviceID: "dev-1"})
	waitFor(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		_, ok := pub.handlers["hubspaced/light/dev-1/set"]
		return ok
	})

	pub.send(t, "hubspaced/light/dev-1/set", `{not json`)

	cloud.mu.Lock()
	defer cloud.mu.Unlock()
	if len(cloud.setCalls) != 0 {
		t.Errorf("malformed command reached the cloud: %+v", cloud.setCalls)
	}
}

func TestStringLightFansOutPerBulb(t *testing.T) {
	cloud := newFakeCloud(&afero.Light{
		ID:                "dev-1",
		Power:             &afero.PowerState{On: true},
		DeviceInformation: afero.DeviceInformation{Name: "Patio String Lights"},
	})
	_, pub, bus := startService(t, cloud)

	bus.Publish(eventbus.Event{Type: eventbus.EventTypeResourceAdded, DeviceID: "dev-1"})

	waitFor(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		count := 0
		for topic := range pub.retained {
			if strings.Contains(topic, "dev-1_bulb_") {
				count++
			}
		}
		return count == framebuffer.DefaultBulbCount
	})
}

func TestResourceRemovedClearsState(t *testing.T) {
	cloud := newFakeCloud(&afero.Light{ID: "dev-1"})
	svc, pub, bus := startService(t, cloud)

	bus.Publish(eventbus.Event{Type: eventbus.EventTypeResourceAdded, DeviceID: "dev-1"})
	waitFor(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return len(pub.retained["hubspaced/light/dev-1/state"]) > 0
	})

	bus.Publish(eventbus.Event{Type: eventbus.EventTypeResourceRemoved, DeviceID: "dev-1"})
	waitFor(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return len(pub.retained["hubspaced/light/dev-1/state"]) == 0
	})

	pub.mu.Lock()
	_, subscribed := pub.handlers["hubspaced/light/dev-1/set"]
	pub.mu.Unlock()
	if subscribed {
		t.Error("command topic still subscribed after removal")
	}

	svc.mu.Lock()
	remaining := len(svc.devices)
	svc.mu.Unlock()
	if remaining != 0 {
		t.Errorf("%d devices still tracked after removal", remaining)
	}
}

func TestAvailabilityTopic(t *testing.T) {
	if got := AvailabilityTopic("hubspaced"); got != "hubspaced/status" {
		t.Errorf("AvailabilityTopic = %q", got)
	}
}
