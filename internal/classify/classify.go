// Package classify decides which entity topology a light device gets. All
// checks are heuristic pattern matches over free-text device metadata; there
// is no capability negotiation with the device, so results are best-effort
// hints. Anything that cannot be positively classified is a plain single
// light - a misread device must stay controllable.
package classify

import (
	"strings"

	"github.com/cfeehan/hubspaced/internal/afero"
	"github.com/cfeehan/hubspaced/internal/framebuffer"
)

// Kind is the entity topology for a device.
type Kind int

const (
	// KindSingle is one generic light entity.
	KindSingle Kind = iota
	// KindDualChannel is an independent color + white entity pair.
	KindDualChannel
	// KindString is one entity per bulb of a string light.
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindDualChannel:
		return "dual-channel"
	case KindString:
		return "string"
	default:
		return "single"
	}
}

// Classification is the result of inspecting a device resource.
type Classification struct {
	Kind      Kind
	BulbCount int // set for KindString only
}

// knownModelBulbs maps model strings with a known fixed bulb count.
var knownModelBulbs = map[string]int{
	"HB-10521-HS": 12,
}

// Classify inspects a device resource and picks its entity topology.
// Idempotent: the same resource always yields the same classification.
func Classify(res *afero.Light) Classification {
	if res == nil {
		return Classification{Kind: KindSingle}
	}

	if IsDualChannel(res) {
		return Classification{Kind: KindDualChannel}
	}

	if IsStringLight(res) {
		return Classification{Kind: KindString, BulbCount: BulbCount(res)}
	}

	return Classification{Kind: KindSingle}
}

// IsDualChannel reports whether a device has independently addressable color
// and white subsystems. Requires all three capability flags plus a
// recognized marker in the device naming; capable hardware without the
// marker is treated as a normal light.
func IsDualChannel(res *afero.Light) bool {
	if !res.SupportsColor || !res.SupportsColorTemperature || !res.SupportsDimming {
		return false
	}

	for _, name := range deviceNames(res) {
		if strings.Contains(name, "flushmount") {
			return true
		}
	}
	return false
}

// IsStringLight reports whether a device is a multi-bulb string light with
// per-bulb sequencing.
func IsStringLight(res *afero.Light) bool {
	// The per-bulb sequence function class is the strongest signal.
	if res.Instances != nil {
		if _, ok := res.Instances[afero.ClassColorSequenceV2]; ok {
			return true
		}
	}

	for _, name := range deviceNames(res) {
		if strings.Contains(name, "string") && strings.Contains(name, "light") {
			return true
		}
	}

	info := res.DeviceInformation
	if info.DefaultImage != "" && strings.Contains(strings.ToLower(info.DefaultImage), "string") {
		return true
	}
	if strings.EqualFold(info.DefaultName, "string lights") {
		return true
	}
	if strings.HasPrefix(info.Model, "HB-") && strings.Contains(info.Model, "HS") {
		return true
	}

	return false
}

// BulbCount resolves the number of bulbs in a string light:
// per-bulb state already cached on the resource, then a declared capacity in
// the sequence metadata, then a known model, then the fixed default.
func BulbCount(res *afero.Light) int {
	if res.Instances != nil {
		if value, ok := res.Instances[afero.ClassColorSequenceV2]; ok {
			if slots, ok := framebuffer.ParseSlots(value); ok {
				return len(slots)
			}
			if capacity, ok := declaredCapacity(value); ok {
				return capacity
			}
		}
	}

	if count, ok := knownModelBulbs[res.DeviceInformation.Model]; ok {
		return count
	}

	return framebuffer.DefaultBulbCount
}

// declaredCapacity looks for a frameBufferCapacity field in the raw sequence
// metadata.
func declaredCapacity(value any) (int, bool) {
	m, ok := value.(map[string]any)
	if !ok {
		return 0, false
	}
	if inner, ok := m[afero.ClassColorSequenceV2].(map[string]any); ok {
		m = inner
	}

	switch v := m["frameBufferCapacity"].(type) {
	case int:
		if v > 0 {
			return v, true
		}
	case float64:
		if v > 0 {
			return int(v), true
		}
	}
	return 0, false
}

// deviceNames collects the lowercased configured and default names.
func deviceNames(res *afero.Light) []string {
	var names []string
	if res.DeviceInformation.Name != "" {
		names = append(names, strings.ToLower(res.DeviceInformation.Name))
	}
	if res.DeviceInformation.DefaultName != "" {
		names = append(names, strings.ToLower(res.DeviceInformation.DefaultName))
	}
	return names
}
