package classify

import (
	"testing"

	"github.com/cfeehan/hubspaced/internal/afero"
	"github.com/cfeehan/hubspaced/internal/framebuffer"
)

func stringLightInstances(slots int) map[string]any {
	raw := make([]any, slots)
	for i := range raw {
		raw[i] = map[string]any{
			"r": float64(255), "g": float64(255), "b": float64(255),
			"colorBrightness": float64(0), "whiteBrightness": float64(0), "cct": float64(3500),
		}
	}
	return map[string]any{
		afero.ClassColorSequenceV2: map[string]any{
			"frameBuffer": map[string]any{"framebuffer": raw},
		},
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		res       *afero.Light
		wantKind  Kind
		wantBulbs int
	}{
		{
			name:     "nil_resource",
			res:      nil,
			wantKind: KindSingle,
		},
		{
			name:     "plain_bulb",
			res:      &afero.Light{ID: "a", SupportsColor: true, SupportsDimming: true},
			wantKind: KindSingle,
		},
		{
			name: "flushmount_all_capabilities",
			res: &afero.Light{
				ID:                       "b",
				SupportsColor:            true,
				SupportsColorTemperature: true,
				SupportsDimming:          true,
				DeviceInformation:        afero.DeviceInformation{Name: "Kitchen Flushmount"},
			},
			wantKind: KindDualChannel,
		},
		{
			name: "flushmount_missing_capability",
			res: &afero.Light{
				ID:                "c",
				SupportsColor:     true,
				SupportsDimming:   true,
				DeviceInformation: afero.DeviceInformation{Name: "Kitchen Flushmount"},
			},
			wantKind: KindSingle,
		},
		{
			name: "string_by_sequence_instance",
			res: &afero.Light{
				ID:        "d",
				Instances: stringLightInstances(18),
			},
			wantKind:  KindString,
			wantBulbs: 18,
		},
		{
			name: "string_by_name",
			res: &afero.Light{
				ID:                "e",
				DeviceInformation: afero.DeviceInformation{Name: "Patio String Lights"},
			},
			wantKind:  KindString,
			wantBulbs: framebuffer.DefaultBulbCount,
		},
		{
			name: "string_by_default_image",
			res: &afero.Light{
				ID:                "f",
				DeviceInformation: afero.DeviceInformation{DefaultImage: "afero-string-lights.png"},
			},
			wantKind:  KindString,
			wantBulbs: framebuffer.DefaultBulbCount,
		},
		{
			name: "string_by_default_name",
			res: &afero.Light{
				ID:                "g",
				DeviceInformation: afero.DeviceInformation{DefaultName: "String Lights"},
			},
			wantKind:  KindString,
			wantBulbs: framebuffer.DefaultBulbCount,
		},
		{
			name: "string_by_known_model",
			res: &afero.Light{
				ID:                "h",
				DeviceInformation: afero.DeviceInformation{Model: "HB-10521-HS"},
			},
			wantKind:  KindString,
			wantBulbs: 12,
		},
		{
			name: "dual_wins_over_string_name",
			res: &afero.Light{
				ID:                       "i",
				SupportsColor:            true,
				SupportsColorTemperature: true,
				SupportsDimming:          true,
				DeviceInformation:        afero.DeviceInformation{Name: "Flushmount String Light"},
			},
			wantKind: KindDualChannel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.res)
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if tt.wantKind == KindString && got.BulbCount != tt.wantBulbs {
				t.Errorf("BulbCount = %d, want %d", got.BulbCount, tt.wantBulbs)
			}
		})
	}
}

func TestClassifyIdempotent(t *testing.T) {
	res := &afero.Light{
		ID:        "d",
		Instances: stringLightInstances(7),
	}

	first := Classify(res)
	for i := 0; i < 5; i++ {
		if got := Classify(res); got != first {
			t.Fatalf("classification changed on repeat: %+v vs %+v", got, first)
		}
	}
}

func TestBulbCountPrecedence(t *testing.T) {
	// Parsed framebuffer wins over declared capacity.
	withBoth := &afero.Light{
		DeviceInformation: afero.DeviceInformation{Model: "HB-10521-HS"},
		Instances: map[string]any{
			afero.ClassColorSequenceV2: map[string]any{
				"frameBufferCapacity": float64(24),
				"frameBuffer": map[string]any{
					"framebuffer": []any{
						map[string]any{"r": float64(1)},
						map[string]any{"r": float64(2)},
					},
				},
			},
		},
	}
	if got := BulbCount(withBoth); got != 2 {
		t.Errorf("BulbCount with framebuffer = %d, want 2", got)
	}

	// Declared capacity wins over the model table.
	withCapacity := &afero.Light{
		DeviceInformation: afero.DeviceInformation{Model: "HB-10521-HS"},
		Instances: map[string]any{
			afero.ClassColorSequenceV2: map[string]any{
				"frameBufferCapacity": float64(24),
			},
		},
	}
	if got := BulbCount(withCapacity); got != 24 {
		t.Errorf("BulbCount with capacity = %d, want 24", got)
	}

	// Model table wins over the default.
	withModel := &afero.Light{
		DeviceInformation: afero.DeviceInformation{Model: "HB-10521-HS"},
	}
	if got := BulbCount(withModel); got != 12 {
		t.Errorf("BulbCount with model = %d, want 12", got)
	}

	// Nothing known: fixed default.
	if got := BulbCount(&afero.Light{}); got != framebuffer.DefaultBulbCount {
		t.Errorf("BulbCount default = %d, want %d", got, framebuffer.DefaultBulbCount)
	}
}

func TestKindString(t *testing.T) {
	if KindSingle.String() != "single" || KindDualChannel.String() != "dual-channel" || KindString.String() != "string" {
		t.Error("Kind.String() mismatch")
	}
}
