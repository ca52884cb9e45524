package entity

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/cfeehan/hubspaced/internal/afero"
	"github.com/cfeehan/hubspaced/internal/framebuffer"
)

// Light is the generic single light entity: straight property mapping over
// the device resource with parameterized set-state commands. Devices that
// fail classification always end up here so they stay controllable.
type Light struct {
	id        string
	name      string
	deviceID  string
	bridge    framebuffer.Bridge
	resources framebuffer.ResourceStore
}

// NewLight creates a generic light entity for a device.
func NewLight(res *afero.Light, bridge framebuffer.Bridge, resources framebuffer.ResourceStore) *Light {
	return &Light{
		id:        res.ID,
		name:      res.Name(),
		deviceID:  res.ID,
		bridge:    bridge,
		resources: resources,
	}
}

func (l *Light) ID() string       { return l.id }
func (l *Light) Name() string     { return l.name }
func (l *Light) DeviceID() string { return l.deviceID }

// State maps the resource snapshot onto the platform surface.
func (l *Light) State() State {
	res, ok := l.resources.Resource(l.deviceID)
	if !ok {
		return State{ColorMode: ModeOnOff}
	}

	s := State{
		On:        res.IsOn(),
		ColorMode: resolveColorMode(res),
	}

	if res.Dimming != nil {
		s.Brightness = percentToPlatform(res.Dimming.Brightness)
	}
	if res.Color != nil {
		s.RGB = []int{res.Color.Red, res.Color.Green, res.Color.Blue}
	}
	if res.ColorTemperature != nil {
		s.TemperatureK = res.ColorTemperature.Kelvin
	}
	if res.Effect != nil {
		if res.ColorMode != nil && res.ColorMode.Mode == "sequence" {
			s.Effect = res.Effect.Effect
		}
		for _, group := range res.Effect.Effects {
			s.Effects = append(s.Effects, group...)
		}
	}

	return s
}

// TurnOn issues a parameterized turn-on. The addressing mode follows the
// strongest parameter present: temperature wins white, color wins color,
// effect wins sequence.
func (l *Light) TurnOn(ctx context.Context, req TurnOnRequest) error {
	on := true
	state := afero.SetStateRequest{
		On:     &on,
		Effect: req.Effect,
	}

	if req.Brightness != nil {
		state.Brightness = intPtr(platformToPercent(*req.Brightness))
	}
	if req.TemperatureK != nil {
		state.TemperatureK = req.TemperatureK
		state.ColorMode = "white"
	} else if req.RGB != nil {
		state.Color = req.RGB
		state.ColorMode = "color"
	} else if req.Effect != "" {
		state.ColorMode = "sequence"
	}

	if err := l.bridge.SetState(ctx, l.deviceID, state); err != nil {
		log.Error().Err(err).Str("entity", l.id).Msg("Turn on failed")
		return err
	}
	return nil
}

// TurnOff powers the device off.
func (l *Light) TurnOff(ctx context.Context) error {
	off := false
	if err := l.bridge.SetState(ctx, l.deviceID, afero.SetStateRequest{On: &off}); err != nil {
		log.Error().Err(err).Str("entity", l.id).Msg("Turn off failed")
		return err
	}
	return nil
}

// resolveColorMode picks the platform color mode from the resource's active
// addressing mode and capabilities.
func resolveColorMode(res *afero.Light) string {
	if res.ColorMode != nil {
		switch res.ColorMode.Mode {
		case "color":
			if res.SupportsColor {
				return ModeRGB
			}
		case "white":
			if res.SupportsColorTemperature {
				return ModeColorTemp
			}
			if res.SupportsDimming {
				return ModeBrightness
			}
			return ModeOnOff
		}
	}

	// No (or unknown) mode reported: fall back to the richest capability.
	switch {
	case res.SupportsColor:
		return ModeRGB
	case res.SupportsColorTemperature:
		return ModeColorTemp
	case res.SupportsDimming:
		return ModeBrightness
	default:
		return ModeOnOff
	}
}
