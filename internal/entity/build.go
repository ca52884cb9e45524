package entity

import (
	"github.com/rs/zerolog/log"

	"github.com/cfeehan/hubspaced/internal/afero"
	"github.com/cfeehan/hubspaced/internal/classify"
	"github.com/cfeehan/hubspaced/internal/framebuffer"
)

// Build fans a device resource out to its entities: a color/white pair for
// dual-mode devices, one entity per bulb for string lights, a single generic
// light for everything else.
func Build(res *afero.Light, bridge framebuffer.Bridge, resources framebuffer.ResourceStore, registry *framebuffer.Registry) []Entity {
	c := classify.Classify(res)

	switch c.Kind {
	case classify.KindDualChannel:
		log.Info().Str("device", res.ID).Msg("Creating dual-mode color/white entities")
		return []Entity{
			NewColorChannel(res, bridge, resources),
			NewWhiteChannel(res, bridge, resources),
		}

	case classify.KindString:
		log.Info().
			Str("device", res.ID).
			Int("bulbs", c.BulbCount).
			Msg("Creating string light bulb entities")
		shared := registry.GetOrCreate(res.ID, c.BulbCount)
		entities := make([]Entity, 0, c.BulbCount)
		for i := 0; i < c.BulbCount; i++ {
			entities = append(entities, NewBulb(res.ID, res.Name(), i, c.BulbCount, shared))
		}
		return entities

	default:
		return []Entity{NewLight(res, bridge, resources)}
	}
}
