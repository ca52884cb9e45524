// Package framebuffer coordinates per-bulb state for string lights whose
// device protocol only accepts a complete color-sequence array per update.
package framebuffer

import (
	"encoding/json"

	"github.com/cfeehan/hubspaced/internal/afero"
)

// Slot is one bulb's record within the framebuffer. The JSON field names are
// the device wire format and must not change.
type Slot struct {
	R               int `json:"r"`
	G               int `json:"g"`
	B               int `json:"b"`
	ColorBrightness int `json:"colorBrightness"`
	WhiteBrightness int `json:"whiteBrightness"`
	CCT             int `json:"cct"`
}

// DefaultSlot is the "off" state a freshly synthesized bulb gets: warm white
// picked but both channels dark.
func DefaultSlot() Slot {
	return Slot{R: 255, G: 255, B: 255, ColorBrightness: 0, WhiteBrightness: 0, CCT: 3500}
}

// IsOn reports whether either channel is visibly lit.
func (s Slot) IsOn() bool {
	return s.ColorBrightness > 0 || s.WhiteBrightness > 0
}

// Patch is a partial slot update. Nil fields are left untouched.
type Patch struct {
	R               *int
	G               *int
	B               *int
	ColorBrightness *int
	WhiteBrightness *int
	CCT             *int
}

// Apply overlays the patch onto a slot.
func (p Patch) Apply(s *Slot) {
	if p.R != nil {
		s.R = *p.R
	}
	if p.G != nil {
		s.G = *p.G
	}
	if p.B != nil {
		s.B = *p.B
	}
	if p.ColorBrightness != nil {
		s.ColorBrightness = *p.ColorBrightness
	}
	if p.WhiteBrightness != nil {
		s.WhiteBrightness = *p.WhiteBrightness
	}
	if p.CCT != nil {
		s.CCT = *p.CCT
	}
}

// Fixed scalar fields of the color-sequence-v2 envelope. The device rejects
// sequences without them; values observed from the vendor app.
const (
	envSequenceFlags    = 0
	envBrightnessSpeed  = 50
	envMotionSpeed      = 48
	envMotionEffect     = 0
	envBrightnessEffect = 0
	envHeaderFlags      = 128
	envID               = 0
	envVersion          = 1
	envBrightnessDepth  = 100

	// CustomSequenceInstance is the sequence slot the custom framebuffer is
	// written into and selected from.
	CustomSequenceInstance = "custom-1"
)

type frameBufferBlock struct {
	Flags       int    `json:"flags"`
	Framebuffer []Slot `json:"framebuffer"`
}

type sequenceBody struct {
	SequenceFlags    int              `json:"sequenceFlags"`
	BrightnessSpeed  int              `json:"brightnessSpeed"`
	MotionSpeed      int              `json:"motionSpeed"`
	MotionEffect     int              `json:"motionEffect"`
	BrightnessEffect int              `json:"brightnessEffect"`
	HeaderFlags      int              `json:"headerFlags"`
	FrameBuffer      frameBufferBlock `json:"frameBuffer"`
	ID               int              `json:"id"`
	Version          int              `json:"version"`
	BrightnessDepth  int              `json:"brightnessDepth"`
}

type sequenceValue struct {
	ColorSequenceV2 sequenceBody `json:"color-sequence-v2"`
}

// SequenceUpdate builds the combined record list that replaces the custom
// per-bulb sequence AND forces the device to display it: the sequence blob
// itself, a color-mode switch to "individual" and the selection of the
// custom sequence slot.
func SequenceUpdate(slots []Slot, now int64) []afero.StateRecord {
	value := sequenceValue{
		ColorSequenceV2: sequenceBody{
			SequenceFlags:    envSequenceFlags,
			BrightnessSpeed:  envBrightnessSpeed,
			MotionSpeed:      envMotionSpeed,
			MotionEffect:     envMotionEffect,
			BrightnessEffect: envBrightnessEffect,
			HeaderFlags:      envHeaderFlags,
			FrameBuffer: frameBufferBlock{
				Flags:       0,
				Framebuffer: slots,
			},
			ID:              envID,
			Version:         envVersion,
			BrightnessDepth: envBrightnessDepth,
		},
	}

	return []afero.StateRecord{
		{
			FunctionClass:    afero.ClassColorSequenceV2,
			FunctionInstance: CustomSequenceInstance,
			Value:            value,
			LastUpdateTime:   now,
		},
		{
			FunctionClass:  afero.ClassColorMode,
			Value:          "individual",
			LastUpdateTime: now,
		},
		{
			FunctionClass:    afero.ClassColorIndividual,
			FunctionInstance: "custom",
			Value:            CustomSequenceInstance,
			LastUpdateTime:   now,
		},
	}
}

// ParseSlots extracts a framebuffer from a raw color-sequence-v2 instance
// value. Device firmware and cloud versions nest the array at different
// depths, so three paths are tried in order. Returns false when no valid
// array is found; this is "no data", not an error.
func ParseSlots(value any) ([]Slot, bool) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, false
	}

	// Path 1: value["color-sequence-v2"]["frameBuffer"]["framebuffer"]
	if inner, ok := m[afero.ClassColorSequenceV2].(map[string]any); ok {
		if slots, ok := slotsFromFrameBuffer(inner); ok {
			return slots, true
		}
	}

	// Path 2: value["frameBuffer"]["framebuffer"]
	if slots, ok := slotsFromFrameBuffer(m); ok {
		return slots, true
	}

	// Path 3: value["framebuffer"]
	if raw, ok := m["framebuffer"].([]any); ok {
		return slotsFromList(raw)
	}

	return nil, false
}

func slotsFromFrameBuffer(m map[string]any) ([]Slot, bool) {
	fb, ok := m["frameBuffer"].(map[string]any)
	if !ok {
		return nil, false
	}
	raw, ok := fb["framebuffer"].([]any)
	if !ok {
		return nil, false
	}
	return slotsFromList(raw)
}

func slotsFromList(raw []any) ([]Slot, bool) {
	if len(raw) == 0 {
		return nil, false
	}

	slots := make([]Slot, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		slots = append(slots, Slot{
			R:               intField(m, "r"),
			G:               intField(m, "g"),
			B:               intField(m, "b"),
			ColorBrightness: intField(m, "colorBrightness"),
			WhiteBrightness: intField(m, "whiteBrightness"),
			CCT:             intField(m, "cct"),
		})
	}

	return slots, true
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		i, _ := v.Int64()
		return int(i)
	default:
		return 0
	}
}

// copySlots returns a defensive copy; callers must never see the live cache.
func copySlots(slots []Slot) []Slot {
	out := make([]Slot, len(slots))
	copy(out, slots)
	return out
}
