package framebuffer

import (
	"encoding/json"
	"testing"

	"github.com/cfeehan/hubspaced/internal/afero"
)

func intPtr(v int) *int {
	return &v
}

func TestSlotWireFormat(t *testing.T) {
	slot := Slot{R: 10, G: 20, B: 30, ColorBrightness: 40, WhiteBrightness: 50, CCT: 2700}

	data, err := json.Marshal(slot)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `{"r":10,"g":20,"b":30,"colorBrightness":40,"whiteBrightness":50,"cct":2700}`
	if string(data) != want {
		t.Errorf("slot JSON = %s, want %s", data, want)
	}
}

func TestSlotIsOn(t *testing.T) {
	tests := []struct {
		name string
		slot Slot
		want bool
	}{
		{"both_dark", Slot{R: 255, CCT: 3500}, false},
		{"color_lit", Slot{ColorBrightness: 1}, true},
		{"white_lit", Slot{WhiteBrightness: 100}, true},
		{"both_lit", Slot{ColorBrightness: 50, WhiteBrightness: 50}, true},
		{"default", DefaultSlot(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.slot.IsOn(); got != tt.want {
				t.Errorf("IsOn() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPatchApply(t *testing.T) {
	slot := Slot{R: 1, G: 2, B: 3, ColorBrightness: 4, WhiteBrightness: 5, CCT: 6}

	// Empty patch changes nothing
	Patch{}.Apply(&slot)
	if slot != (Slot{R: 1, G: 2, B: 3, ColorBrightness: 4, WhiteBrightness: 5, CCT: 6}) {
		t.Errorf("empty patch modified slot: %+v", slot)
	}

	// Partial patch only touches its fields
	Patch{R: intPtr(100), WhiteBrightness: intPtr(0)}.Apply(&slot)
	want := Slot{R: 100, G: 2, B: 3, ColorBrightness: 4, WhiteBrightness: 0, CCT: 6}
	if slot != want {
		t.Errorf("patched slot = %+v, want %+v", slot, want)
	}
}

func TestSequenceUpdateRecords(t *testing.T) {
	slots := []Slot{DefaultSlot(), {R: 10, G: 20, B: 30, ColorBrightness: 50, CCT: 3500}}
	records := SequenceUpdate(slots, 1234)

	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}

	if records[0].FunctionClass != afero.ClassColorSequenceV2 {
		t.Errorf("record 0 class = %q", records[0].FunctionClass)
	}
	if records[0].FunctionInstance != CustomSequenceInstance {
		t.Errorf("record 0 instance = %q, want %q", records[0].FunctionInstance, CustomSequenceInstance)
	}

	if records[1].FunctionClass != afero.ClassColorMode {
		t.Errorf("record 1 class = %q", records[1].FunctionClass)
	}
	if records[1].Value != "individual" {
		t.Errorf("record 1 value = %v, want individual", records[1].Value)
	}

	if records[2].FunctionClass != afero.ClassColorIndividual {
		t.Errorf("record 2 class = %q", records[2].FunctionClass)
	}
	if records[2].FunctionInstance != "custom" {
		t.Errorf("record 2 instance = %q, want custom", records[2].FunctionInstance)
	}
	if records[2].Value != CustomSequenceInstance {
		t.Errorf("record 2 value = %v, want %q", records[2].Value, CustomSequenceInstance)
	}

	for i, rec := range records {
		if rec.LastUpdateTime != 1234 {
			t.Errorf("record %d timestamp = %d, want 1234", i, rec.LastUpdateTime)
		}
	}
}

func TestSequenceUpdateEnvelope(t *testing.T) {
	slots := []Slot{{R: 1, G: 2, B: 3, ColorBrightness: 4, WhiteBrightness: 5, CCT: 6}}
	records := SequenceUpdate(slots, 0)

	data, err := json.Marshal(records[0].Value)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var envelope map[string]any
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	body, ok := envelope["color-sequence-v2"].(map[string]any)
	if !ok {
		t.Fatalf("missing color-sequence-v2 wrapper in %s", data)
	}

	// Fixed scalar fields the device requires
	scalars := map[string]float64{
		"sequenceFlags":    0,
		"brightnessSpeed":  50,
		"motionSpeed":      48,
		"motionEffect":     0,
		"brightnessEffect": 0,
		"headerFlags":      128,
		"id":               0,
		"version":          1,
		"brightnessDepth":  100,
	}
	for key, want := range scalars {
		got, ok := body[key].(float64)
		if !ok {
			t.Errorf("envelope missing %q", key)
			continue
		}
		if got != want {
			t.Errorf("envelope %s = %v, want %v", key, got, want)
		}
	}

	fb, ok := body["frameBuffer"].(map[string]any)
	if !ok {
		t.Fatalf("missing frameBuffer block in %s", data)
	}
	raw, ok := fb["framebuffer"].([]any)
	if !ok || len(raw) != 1 {
		t.Fatalf("missing framebuffer array in %s", data)
	}

	// Round-trip through the parser restores the slots
	parsed, ok := ParseSlots(envelope)
	if !ok {
		t.Fatal("ParseSlots rejected the envelope it built")
	}
	if len(parsed) != 1 || parsed[0] != slots[0] {
		t.Errorf("parsed slots = %+v, want %+v", parsed, slots)
	}
}

func TestParseSlots(t *testing.T) {
	slotMap := map[string]any{
		"r": float64(10), "g": float64(20), "b": float64(30),
		"colorBrightness": float64(40), "whiteBrightness": float64(0), "cct": float64(2700),
	}
	want := Slot{R: 10, G: 20, B: 30, ColorBrightness: 40, CCT: 2700}

	tests := []struct {
		name  string
		value any
		slots []Slot
		ok    bool
	}{
		{
			name: "wrapped",
			value: map[string]any{
				"color-sequence-v2": map[string]any{
					"frameBuffer": map[string]any{
						"framebuffer": []any{slotMap},
					},
				},
			},
			slots: []Slot{want},
			ok:    true,
		},
		{
			name: "frame_buffer_level",
			value: map[string]any{
				"frameBuffer": map[string]any{
					"framebuffer": []any{slotMap, slotMap},
				},
			},
			slots: []Slot{want, want},
			ok:    true,
		},
		{
			name:  "bare_array",
			value: map[string]any{"framebuffer": []any{slotMap}},
			slots: []Slot{want},
			ok:    true,
		},
		{name: "not_a_map", value: "garbage", ok: false},
		{name: "nil", value: nil, ok: false},
		{name: "empty_map", value: map[string]any{}, ok: false},
		{
			name:  "empty_array",
			value: map[string]any{"framebuffer": []any{}},
			ok:    false,
		},
		{
			name:  "array_of_non_maps",
			value: map[string]any{"framebuffer": []any{"x"}},
			ok:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseSlots(tt.value)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if len(got) != len(tt.slots) {
				t.Fatalf("got %d slots, want %d", len(got), len(tt.slots))
			}
			for i := range got {
				if got[i] != tt.slots[i] {
					t.Errorf("slot %d = %+v, want %+v", i, got[i], tt.slots[i])
				}
			}
		})
	}
}

func TestParseSlotsMissingFieldsDefaultToZero(t *testing.T) {
	value := map[string]any{
		"framebuffer": []any{map[string]any{"r": float64(5)}},
	}
	slots, ok := ParseSlots(value)
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if slots[0] != (Slot{R: 5}) {
		t.Errorf("slot = %+v, want zero-filled with R=5", slots[0])
	}
}
