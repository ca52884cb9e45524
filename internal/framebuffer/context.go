package framebuffer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cfeehan/hubspaced/internal/afero"
)

// Bridge issues state changes to the vendor cloud.
type Bridge interface {
	UpdateStates(ctx context.Context, deviceID string, records []afero.StateRecord) error
	SetState(ctx context.Context, deviceID string, req afero.SetStateRequest) error
}

// ResourceStore provides the last known resource snapshot for a device.
type ResourceStore interface {
	Resource(deviceID string) (*afero.Light, bool)
}

// Context is the single source of truth for one string light's per-bulb
// state. All bulb entities addressing the same device share one Context and
// every read-modify-write goes through Update, which serializes against the
// device: the protocol accepts only a complete framebuffer per write, so two
// unserialized single-slot edits would erase each other.
type Context struct {
	deviceID      string
	bridge        Bridge
	resources     ResourceStore
	expectedBulbs int

	// updateMu serializes the read-modify-write-send sequence. cacheMu only
	// guards the cache pointer so reads never wait on an in-flight device
	// call; they observe either the pre- or post-update cache.
	updateMu sync.Mutex
	cacheMu  sync.RWMutex
	cached   []Slot // nil = not yet initialized
}

// NewContext creates a framebuffer context for one device.
func NewContext(deviceID string, bridge Bridge, resources ResourceStore, expectedBulbs int) *Context {
	if expectedBulbs <= 0 {
		expectedBulbs = DefaultBulbCount
	}

	log.Info().
		Str("device", deviceID).
		Int("bulbs", expectedBulbs).
		Msg("Framebuffer context initialized")

	return &Context{
		deviceID:      deviceID,
		bridge:        bridge,
		resources:     resources,
		expectedBulbs: expectedBulbs,
	}
}

// DefaultBulbCount is used when a device's bulb count cannot be determined.
const DefaultBulbCount = 12

// DeviceID returns the device this context coordinates.
func (c *Context) DeviceID() string {
	return c.deviceID
}

// ExpectedBulbs returns the bulb count the context was created with.
func (c *Context) ExpectedBulbs() int {
	return c.expectedBulbs
}

// Current returns the framebuffer as last known: the authoritative cache if
// initialized, otherwise a best-effort parse of the device resource
// snapshot. Returns false when neither source yields data. The returned
// slice is always a defensive copy.
func (c *Context) Current() ([]Slot, bool) {
	c.cacheMu.RLock()
	cached := c.cached
	c.cacheMu.RUnlock()

	if cached != nil {
		return copySlots(cached), true
	}

	return c.readFromResource()
}

// readFromResource parses the framebuffer out of the current resource
// snapshot. "No data" is not an error; missing instances or unparseable
// blobs just return false.
func (c *Context) readFromResource() ([]Slot, bool) {
	res, ok := c.resources.Resource(c.deviceID)
	if !ok || res.Instances == nil {
		return nil, false
	}

	value, ok := res.Instances[afero.ClassColorSequenceV2]
	if !ok {
		return nil, false
	}

	slots, ok := ParseSlots(value)
	if !ok {
		log.Debug().Str("device", c.deviceID).Msg("No framebuffer found in resource instances")
		return nil, false
	}

	return slots, true
}

// Refresh re-parses the framebuffer from the live resource snapshot,
// replacing the cache on success. On failure the previous cache is kept
// untouched; good data is never cleared for bad.
func (c *Context) Refresh() bool {
	fresh, ok := c.readFromResource()
	if !ok {
		log.Debug().Str("device", c.deviceID).Msg("Could not refresh framebuffer from device, keeping cache")
		return false
	}

	c.cacheMu.Lock()
	c.cached = fresh
	c.cacheMu.Unlock()

	log.Debug().
		Str("device", c.deviceID).
		Int("bulbs", len(fresh)).
		Msg("Framebuffer refreshed from device")
	return true
}

// Update patches a single slot and pushes the whole framebuffer to the
// device, holding the update lock for the full read-modify-write-send
// sequence. On any failure the cache is left exactly as it was; the caller
// must not assume partial application.
//
// The cache advances once the cloud accepts the write (HTTP success). That
// is acceptance by the bridge, not confirmation the device applied it - a
// request lost after acceptance may leave the cache ahead of reality until
// the next refresh.
func (c *Context) Update(ctx context.Context, slotIndex int, patch Patch) error {
	if slotIndex < 0 {
		return fmt.Errorf("invalid slot index %d", slotIndex)
	}

	c.updateMu.Lock()
	defer c.updateMu.Unlock()

	// Base state: cache, else resource parse, else a fresh all-off array
	// sized to cover both the expected count and the requested index.
	slots, ok := c.Current()
	if !ok {
		size := c.expectedBulbs
		if slotIndex+1 > size {
			size = slotIndex + 1
		}
		slots = make([]Slot, size)
		for i := range slots {
			slots[i] = DefaultSlot()
		}
		log.Info().
			Str("device", c.deviceID).
			Int("bulbs", size).
			Msg("No existing framebuffer, synthesizing default")
	}

	// Grow monotonically; never shrink.
	for len(slots) <= slotIndex {
		slots = append(slots, DefaultSlot())
	}

	patch.Apply(&slots[slotIndex])

	records := SequenceUpdate(slots, time.Now().Unix())
	if err := c.bridge.UpdateStates(ctx, c.deviceID, records); err != nil {
		log.Error().
			Err(err).
			Str("device", c.deviceID).
			Int("slot", slotIndex).
			Msg("Framebuffer update failed")
		return err
	}

	c.cacheMu.Lock()
	c.cached = slots
	c.cacheMu.Unlock()

	log.Debug().
		Str("device", c.deviceID).
		Int("slot", slotIndex).
		Int("bulbs", len(slots)).
		Msg("Framebuffer updated")
	return nil
}

// PowerState returns the device-wide power state from the resource snapshot.
// The second return is false when the snapshot is missing.
func (c *Context) PowerState() (bool, bool) {
	res, ok := c.resources.Resource(c.deviceID)
	if !ok || res.Power == nil {
		return false, false
	}
	return res.Power.On, true
}

// SetPower sets the device-wide power state.
func (c *Context) SetPower(ctx context.Context, on bool) error {
	return c.bridge.SetState(ctx, c.deviceID, afero.SetStateRequest{On: &on})
}
