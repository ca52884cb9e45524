package entity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cfeehan/hubspaced/internal/framebuffer"
)

// Bulb is one individually addressable bulb of a string light. All bulbs of
// a device share one framebuffer context; a bulb only ever patches its own
// slot through it. The bulb additionally keeps a local slot snapshot for
// immediate command feedback - it is non-authoritative and is pulled from
// the shared context opportunistically and on a periodic refresh.
type Bulb struct {
	id       string
	name     string
	deviceID string
	index    int
	total    int
	shared   *framebuffer.Context

	mu   sync.Mutex
	slot framebuffer.Slot
	on   bool
}

// NewBulb creates the entity for one bulb slot.
func NewBulb(deviceID, deviceName string, index, total int, shared *framebuffer.Context) *Bulb {
	b := &Bulb{
		id:       fmt.Sprintf("%s_bulb_%d", deviceID, index),
		name:     fmt.Sprintf("%s Bulb %d", deviceName, index+1),
		deviceID: deviceID,
		index:    index,
		total:    total,
		shared:   shared,
		// Last-used color defaults to full white so a bare turn-on does
		// something visible.
		slot: framebuffer.Slot{R: 255, G: 255, B: 255, ColorBrightness: 100, WhiteBrightness: 0, CCT: 3500},
	}

	b.RefreshFromContext()
	return b
}

func (b *Bulb) ID() string       { return b.id }
func (b *Bulb) Name() string     { return b.name }
func (b *Bulb) DeviceID() string { return b.deviceID }

// Index returns the bulb's fixed slot index.
func (b *Bulb) Index() int { return b.index }

// RefreshFromContext pulls this bulb's slot from the shared context into the
// local snapshot. When the context has no framebuffer yet, the device-wide
// power state is the best available guess.
func (b *Bulb) RefreshFromContext() {
	slots, ok := b.shared.Current()
	if ok && b.index < len(slots) {
		b.mu.Lock()
		b.slot = slots[b.index]
		b.on = b.slot.IsOn()
		b.mu.Unlock()
		return
	}

	on, ok := b.shared.PowerState()
	b.mu.Lock()
	b.on = ok && on
	b.mu.Unlock()
}

// RunRefresh periodically refreshes the local snapshot from the shared
// context until ctx is cancelled. Device events carry no per-bulb
// resolution, so polling the context is the only way to track changes made
// through sibling bulbs or the vendor app. onChange is invoked after every
// refresh so the platform layer can republish state.
func (b *Bulb) RunRefresh(ctx context.Context, interval time.Duration, onChange func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.shared.Refresh()
			b.RefreshFromContext()
			if onChange != nil {
				onChange()
			}
		}
	}
}

// State reports the local slot snapshot.
func (b *Bulb) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := State{
		On:        b.on,
		ColorMode: ModeBrightness,
	}

	brightness := b.slot.ColorBrightness
	if b.slot.WhiteBrightness > brightness {
		brightness = b.slot.WhiteBrightness
	}
	if brightness > 0 {
		s.Brightness = percentToPlatform(brightness)
	}

	if b.slot.ColorBrightness > 0 {
		s.ColorMode = ModeRGB
		s.RGB = []int{b.slot.R, b.slot.G, b.slot.B}
	} else if b.slot.WhiteBrightness > 0 {
		s.ColorMode = ModeColorTemp
		s.TemperatureK = b.slot.CCT
	}

	return s
}

// TurnOn lights this bulb. Color and white are mutually exclusive within a
// slot: a color command darkens the white channel and vice versa. The local
// snapshot only advances when the shared context reports success.
func (b *Bulb) TurnOn(ctx context.Context, req TurnOnRequest) error {
	// The whole string must be powered for any bulb to light.
	if on, ok := b.shared.PowerState(); !ok || !on {
		log.Info().Str("device", b.deviceID).Msg("Powering on string light")
		if err := b.shared.SetPower(ctx, true); err != nil {
			log.Error().Err(err).Str("entity", b.id).Msg("Power on failed")
			return err
		}
	}

	var patch framebuffer.Patch

	if req.Brightness != nil {
		percent := platformToPercent(*req.Brightness)
		switch {
		case req.RGB != nil:
			patch.ColorBrightness = intPtr(percent)
			patch.WhiteBrightness = intPtr(0)
		case req.TemperatureK != nil:
			patch.WhiteBrightness = intPtr(percent)
			patch.ColorBrightness = intPtr(0)
		default:
			patch.ColorBrightness = intPtr(percent)
		}
	}

	if req.RGB != nil {
		patch.R = intPtr(req.RGB.Red)
		patch.G = intPtr(req.RGB.Green)
		patch.B = intPtr(req.RGB.Blue)
		if patch.ColorBrightness == nil {
			patch.ColorBrightness = intPtr(100)
		}
		patch.WhiteBrightness = intPtr(0)
	}

	if req.TemperatureK != nil {
		patch.CCT = req.TemperatureK
		if patch.WhiteBrightness == nil {
			patch.WhiteBrightness = intPtr(100)
		}
		patch.ColorBrightness = intPtr(0)
		patch.R = intPtr(0)
		patch.G = intPtr(0)
		patch.B = intPtr(0)
	}

	// A bare turn-on relights the slot with its current color.
	if patch == (framebuffer.Patch{}) {
		patch.ColorBrightness = intPtr(100)
	}

	if err := b.shared.Update(ctx, b.index, patch); err != nil {
		log.Error().Err(err).Str("entity", b.id).Msg("Turn on failed")
		return err
	}

	b.mu.Lock()
	patch.Apply(&b.slot)
	b.on = b.slot.IsOn()
	b.mu.Unlock()

	return nil
}

// TurnOff darkens only this bulb's slot: both brightness fields go to zero,
// color and temperature stay so the next turn-on restores them. Sibling
// slots are untouched.
func (b *Bulb) TurnOff(ctx context.Context) error {
	patch := framebuffer.Patch{
		ColorBrightness: intPtr(0),
		WhiteBrightness: intPtr(0),
	}

	if err := b.shared.Update(ctx, b.index, patch); err != nil {
		log.Error().Err(err).Str("entity", b.id).Msg("Turn off failed")
		return err
	}

	b.mu.Lock()
	patch.Apply(&b.slot)
	b.on = false
	b.mu.Unlock()

	return nil
}
