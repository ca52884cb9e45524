package afero

import "encoding/json"

// StateRecord is a single function-class record in a device state list.
// This is the raw wire unit for both reads and writes.
type StateRecord struct {
	FunctionClass    string `json:"functionClass"`
	FunctionInstance string `json:"functionInstance,omitempty"`
	Value            any    `json:"value"`
	LastUpdateTime   int64  `json:"lastUpdateTime,omitempty"`
}

// Well-known function classes used by Afero lights.
const (
	ClassPower            = "power"
	ClassBrightness       = "brightness"
	ClassColorRGB         = "color-rgb"
	ClassColorTemperature = "color-temperature"
	ClassColorMode        = "color-mode"
	ClassColorSequence    = "color-sequence"
	ClassColorSequenceV2  = "color-sequence-v2"
	ClassColorIndividual  = "color-individual"
	ClassColorBrightness  = "colorBrightness"
	ClassWhiteBrightness  = "whiteBrightness"
)

// DeviceInformation holds device naming/model metadata.
type DeviceInformation struct {
	Name         string
	DefaultName  string
	Model        string
	Manufacturer string
	DefaultImage string
}

// PowerState is the device-wide power snapshot.
type PowerState struct {
	On bool
}

// Dimming is the device-wide brightness snapshot (0-100).
type Dimming struct {
	Brightness int
}

// RGB is an 8-bit-per-channel color.
type RGB struct {
	Red   int `json:"r"`
	Green int `json:"g"`
	Blue  int `json:"b"`
}

// ColorTemperature is the white temperature snapshot in Kelvin.
type ColorTemperature struct {
	Kelvin    int
	Supported []int
}

// ColorMode is the active addressing mode of the light
// ("color", "white", "sequence", "mixed", "individual").
type ColorMode struct {
	Mode string
}

// Effect holds the active effect and all available effects per sequence group.
type Effect struct {
	Effect  string
	Effects map[string][]string
}

// Light is a read-only snapshot of a light resource as last reported by the
// cloud. Instances holds the raw values of function classes that have no
// dedicated field, keyed by function class (the color-sequence-v2 blob for
// string lights lives here).
type Light struct {
	ID                       string
	DeviceInformation        DeviceInformation
	SupportsColor            bool
	SupportsColorTemperature bool
	SupportsDimming          bool
	Power                    *PowerState
	Dimming                  *Dimming
	Color                    *RGB
	ColorTemperature         *ColorTemperature
	ColorMode                *ColorMode
	Effect                   *Effect
	Instances                map[string]any
}

// IsOn reports the device-wide power state, defaulting to false when unknown.
func (l *Light) IsOn() bool {
	return l.Power != nil && l.Power.On
}

// Name returns the best available human name: configured name, then the
// vendor default name, then the device id.
func (l *Light) Name() string {
	if l.DeviceInformation.Name != "" {
		return l.DeviceInformation.Name
	}
	if l.DeviceInformation.DefaultName != "" {
		return l.DeviceInformation.DefaultName
	}
	return l.ID
}

// wireDevice is the cloud representation of a device with expanded state.
type wireDevice struct {
	ID           string `json:"id"`
	TypeID       string `json:"typeId"`
	DeviceClass  string `json:"deviceClass"`
	FriendlyName string `json:"friendlyName"`
	DefaultName  string `json:"defaultName"`
	Model        string `json:"model"`
	Manufacturer string `json:"manufacturerName"`
	DefaultImage string `json:"defaultImage"`
	State        struct {
		Values []StateRecord `json:"values"`
	} `json:"state"`
}

// buildLight folds a wire device and its state records into a Light snapshot.
func buildLight(d wireDevice) *Light {
	l := &Light{
		ID: d.ID,
		DeviceInformation: DeviceInformation{
			Name:         d.FriendlyName,
			DefaultName:  d.DefaultName,
			Model:        d.Model,
			Manufacturer: d.Manufacturer,
			DefaultImage: d.DefaultImage,
		},
		Instances: make(map[string]any),
	}

	for _, rec := range d.State.Values {
		switch rec.FunctionClass {
		case ClassPower:
			on := asString(rec.Value) == "on"
			l.Power = &PowerState{On: on}
		case ClassBrightness:
			if v, ok := asInt(rec.Value); ok {
				l.SupportsDimming = true
				l.Dimming = &Dimming{Brightness: v}
			}
		case ClassColorRGB:
			if rgb, ok := asRGB(rec.Value); ok {
				l.SupportsColor = true
				l.Color = rgb
			}
		case ClassColorTemperature:
			if v, ok := asInt(rec.Value); ok {
				l.SupportsColorTemperature = true
				if l.ColorTemperature == nil {
					l.ColorTemperature = &ColorTemperature{}
				}
				l.ColorTemperature.Kelvin = v
			}
		case ClassColorMode:
			l.ColorMode = &ColorMode{Mode: asString(rec.Value)}
		case ClassColorSequence:
			// One record per sequence group (e.g. "preset", "custom"); the
			// value is the group's selected effect.
			if l.Effect == nil {
				l.Effect = &Effect{Effects: make(map[string][]string)}
			}
			v := asString(rec.Value)
			group := rec.FunctionInstance
			l.Effect.Effects[group] = append(l.Effect.Effects[group], v)
			if l.Effect.Effect == "" || group == "preset" {
				l.Effect.Effect = v
			}
		default:
			// Everything else is kept raw, keyed by function class. Multiple
			// instances of the same class collapse to the last one; the
			// framebuffer parser only needs one valid blob.
			l.Instances[rec.FunctionClass] = rec.Value
		}
	}

	return l
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

func asRGB(v any) (*RGB, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	// The cloud nests the channels one level deeper: {"color-rgb": {...}}
	if inner, ok := m[ClassColorRGB].(map[string]any); ok {
		m = inner
	}
	r, rok := asInt(m["r"])
	g, gok := asInt(m["g"])
	b, bok := asInt(m["b"])
	if !rok || !gok || !bok {
		return nil, false
	}
	return &RGB{Red: r, Green: g, Blue: b}, true
}
