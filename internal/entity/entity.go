// Package entity adapts Afero light resources to the platform's light
// entity surface. One physical device fans out to one or more entities
// depending on its classification.
package entity

import (
	"context"

	"github.com/cfeehan/hubspaced/internal/afero"
)

// Color modes exposed to the platform.
const (
	ModeOnOff      = "onoff"
	ModeBrightness = "brightness"
	ModeRGB        = "rgb"
	ModeColorTemp  = "color_temp"
)

// State is the platform-facing snapshot of one entity.
type State struct {
	On           bool     `json:"on"`
	Brightness   int      `json:"brightness,omitempty"` // 1-255
	RGB          []int    `json:"rgb,omitempty"`
	TemperatureK int      `json:"color_temp_kelvin,omitempty"`
	ColorMode    string   `json:"color_mode"`
	Effect       string   `json:"effect,omitempty"`
	Effects      []string `json:"effects,omitempty"`
}

// TurnOnRequest carries the optional parameters of a turn-on command.
// Brightness is in the platform's 1-255 scale.
type TurnOnRequest struct {
	Brightness   *int
	RGB          *afero.RGB
	TemperatureK *int
	Effect       string
}

// Entity is the surface every light entity exposes to the platform layer.
type Entity interface {
	ID() string
	Name() string
	DeviceID() string
	State() State
	TurnOn(ctx context.Context, req TurnOnRequest) error
	TurnOff(ctx context.Context) error
}

// percentToPlatform converts a device brightness percent (1-100) to the
// platform 1-255 scale.
func percentToPlatform(percent int) int {
	if percent <= 0 {
		return 0
	}
	v := (percent*255 + 50) / 100
	if v < 1 {
		v = 1
	}
	if v > 255 {
		v = 255
	}
	return v
}

// platformToPercent converts a platform brightness (1-255) to a device
// percent (1-100).
func platformToPercent(brightness int) int {
	if brightness <= 0 {
		return 0
	}
	v := (brightness*100 + 127) / 255
	if v < 1 {
		v = 1
	}
	if v > 100 {
		v = 100
	}
	return v
}

func intPtr(v int) *int {
	return &v
}

// instanceInt reads an integer function-class value from a resource's raw
// instances map.
func instanceInt(res *afero.Light, class string) (int, bool) {
	if res == nil || res.Instances == nil {
		return 0, false
	}
	switch v := res.Instances[class].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
