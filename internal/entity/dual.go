package entity

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/cfeehan/hubspaced/internal/afero"
	"github.com/cfeehan/hubspaced/internal/framebuffer"
)

// Dual-mode devices expose separately dimmable color and white subsystems
// behind one device id. Each channel becomes its own entity scoped to one
// brightness field; commands always force the device into "mixed" addressing
// mode so both channels can be lit at once. A channel only ever writes its
// own brightness field - turning one on or off never touches the sibling's.

// ColorChannel is the color half of a dual-mode light.
type ColorChannel struct {
	id        string
	name      string
	deviceID  string
	bridge    framebuffer.Bridge
	resources framebuffer.ResourceStore
}

// NewColorChannel creates the color entity of a dual-mode device.
func NewColorChannel(res *afero.Light, bridge framebuffer.Bridge, resources framebuffer.ResourceStore) *ColorChannel {
	return &ColorChannel{
		id:        res.ID + "_color",
		name:      res.Name() + " - Color",
		deviceID:  res.ID,
		bridge:    bridge,
		resources: resources,
	}
}

func (c *ColorChannel) ID() string       { return c.id }
func (c *ColorChannel) Name() string     { return c.name }
func (c *ColorChannel) DeviceID() string { return c.deviceID }

// State reports the channel as on when its own brightness field is nonzero.
func (c *ColorChannel) State() State {
	res, ok := c.resources.Resource(c.deviceID)
	if !ok {
		return State{ColorMode: ModeRGB}
	}

	s := State{ColorMode: ModeRGB}
	if bri, ok := instanceInt(res, afero.ClassColorBrightness); ok {
		s.On = res.IsOn() && bri > 0
		s.Brightness = percentToPlatform(bri)
	} else {
		s.On = res.IsOn()
	}
	if res.Color != nil {
		s.RGB = []int{res.Color.Red, res.Color.Green, res.Color.Blue}
	}

	return s
}

// TurnOn lights the color channel, leaving the white channel's brightness
// untouched.
func (c *ColorChannel) TurnOn(ctx context.Context, req TurnOnRequest) error {
	brightness := 100
	if req.Brightness != nil {
		brightness = platformToPercent(*req.Brightness)
	}

	on := true
	state := afero.SetStateRequest{
		On:              &on,
		Color:           req.RGB,
		ColorMode:       "mixed",
		ColorBrightness: &brightness,
	}

	if err := c.bridge.SetState(ctx, c.deviceID, state); err != nil {
		log.Error().Err(err).Str("entity", c.id).Msg("Turn on failed")
		return err
	}
	return nil
}

// TurnOff darkens only the color channel; the white channel keeps its value.
func (c *ColorChannel) TurnOff(ctx context.Context) error {
	state := afero.SetStateRequest{
		ColorMode:       "mixed",
		ColorBrightness: intPtr(0),
	}
	if err := c.bridge.SetState(ctx, c.deviceID, state); err != nil {
		log.Error().Err(err).Str("entity", c.id).Msg("Turn off failed")
		return err
	}
	return nil
}

// WhiteChannel is the tunable-white half of a dual-mode light.
type WhiteChannel struct {
	id        string
	name      string
	deviceID  string
	bridge    framebuffer.Bridge
	resources framebuffer.ResourceStore
}

// NewWhiteChannel creates the white entity of a dual-mode device.
func NewWhiteChannel(res *afero.Light, bridge framebuffer.Bridge, resources framebuffer.ResourceStore) *WhiteChannel {
	return &WhiteChannel{
		id:        res.ID + "_white",
		name:      res.Name() + " - White",
		deviceID:  res.ID,
		bridge:    bridge,
		resources: resources,
	}
}

func (w *WhiteChannel) ID() string       { return w.id }
func (w *WhiteChannel) Name() string     { return w.name }
func (w *WhiteChannel) DeviceID() string { return w.deviceID }

// State reports the channel as on when its own brightness field is nonzero.
func (w *WhiteChannel) State() State {
	res, ok := w.resources.Resource(w.deviceID)
	if !ok {
		return State{ColorMode: ModeColorTemp}
	}

	s := State{ColorMode: ModeColorTemp}
	if bri, ok := instanceInt(res, afero.ClassWhiteBrightness); ok {
		s.On = res.IsOn() && bri > 0
		s.Brightness = percentToPlatform(bri)
	} else {
		s.On = res.IsOn()
	}
	if res.ColorTemperature != nil {
		s.TemperatureK = res.ColorTemperature.Kelvin
	}

	return s
}

// TurnOn lights the white channel, leaving the color channel's brightness
// untouched.
func (w *WhiteChannel) TurnOn(ctx context.Context, req TurnOnRequest) error {
	brightness := 100
	if req.Brightness != nil {
		brightness = platformToPercent(*req.Brightness)
	}

	on := true
	state := afero.SetStateRequest{
		On:              &on,
		TemperatureK:    req.TemperatureK,
		ColorMode:       "mixed",
		WhiteBrightness: &brightness,
	}

	if err := w.bridge.SetState(ctx, w.deviceID, state); err != nil {
		log.Error().Err(err).Str("entity", w.id).Msg("Turn on failed")
		return err
	}
	return nil
}

// TurnOff darkens only the white channel; the color channel keeps its value.
func (w *WhiteChannel) TurnOff(ctx context.Context) error {
	state := afero.SetStateRequest{
		ColorMode:       "mixed",
		WhiteBrightness: intPtr(0),
	}
	if err := w.bridge.SetState(ctx, w.deviceID, state); err != nil {
		log.Error().Err(err).Str("entity", w.id).Msg("Turn off failed")
		return err
	}
	return nil
}
