// Package system provides the capability boundaries the runtime treats
// as black boxes: a clock, a console sink, a configuration reader and a
// pseudo-random source. Each is a narrow interface bound to a service
// tag, with a live implementation and a deterministic test one.
package system

import (
	"go.uber.org/zap"

	"github.com/on-the-ground/weft/effect"
	"github.com/on-the-ground/weft/fiberid"
	"github.com/on-the-ground/weft/layer"
	"github.com/on-the-ground/weft/services"
)

// Service tags for the system capabilities.
var (
	ClockTag   = services.NewTag[Clock]("system.Clock")
	ConsoleTag = services.NewTag[Console]("system.Console")
	ConfigTag  = services.NewTag[Config]("system.Config")
	RandomTag  = services.NewTag[Random]("system.Random")
)

// Live returns a context binding every capability to its live
// implementation, with the console writing through logger.
func Live(logger *zap.Logger) *services.Context {
	ctx := services.Add(services.Empty(), ClockTag, Clock(SystemClock{}))
	ctx = services.Add(ctx, ConsoleTag, Console(NewZapConsole(logger)))
	ctx = services.Add(ctx, ConfigTag, Config(EnvConfig{}))
	ctx = services.Add(ctx, RandomTag, Random(SystemRandom{}))
	return ctx
}

// LiveLayer is Live as a layer, for composition with application
// layers.
func LiveLayer(logger *zap.Logger) layer.Layer {
	return layer.Merge(
		layer.Merge(
			layer.FromValue(ClockTag, Clock(SystemClock{})),
			layer.FromValue(ConsoleTag, Console(NewZapConsole(logger))),
		),
		layer.Merge(
			layer.FromValue(ConfigTag, Config(EnvConfig{})),
			layer.FromValue(RandomTag, Random(SystemRandom{})),
		),
	)
}

// Log emits a record through the ambient Console, stamped with the
// emitting fiber's identity and the ambient Clock's time.
func Log(level Level, msg string, fields map[string]any) effect.Effect[struct{}] {
	return LogSpan(level, msg, "", fields)
}

// LogSpan is Log with a span label attached to the record.
func LogSpan(level Level, msg, span string, fields map[string]any) effect.Effect[struct{}] {
	return effect.FlatMap(effect.FiberID(), func(id fiberid.ID) effect.Effect[struct{}] {
		return effect.FlatMap(effect.Service(ConsoleTag), func(console Console) effect.Effect[struct{}] {
			return effect.FlatMap(effect.Service(ClockTag), func(clock Clock) effect.Effect[struct{}] {
				return effect.Sync(func() struct{} {
					console.Log(level, msg, Record{
						Fiber:      id,
						TimeMillis: clock.CurrentTimeMillis(),
						Span:       span,
						Fields:     fields,
					})
					return struct{}{}
				})
			})
		})
	})
}

// CurrentTimeMillis reads the ambient Clock.
func CurrentTimeMillis() effect.Effect[int64] {
	return effect.FlatMap(effect.Service(ClockTag), func(clock Clock) effect.Effect[int64] {
		return effect.Sync(func() int64 { return clock.CurrentTimeMillis() })
	})
}

// ReadConfig reads a key from the ambient Config; a missing key is an
// expected failure carrying MissingKeyError.
func ReadConfig(key string) effect.Effect[string] {
	return effect.FlatMap(effect.Service(ConfigTag), func(cfg Config) effect.Effect[string] {
		return effect.Attempt(func() (string, error) {
			return cfg.Read(key)
		})
	})
}

// NextRandom draws from the ambient Random source.
func NextRandom() effect.Effect[uint64] {
	return effect.FlatMap(effect.Service(RandomTag), func(rng Random) effect.Effect[uint64] {
		return effect.Sync(func() uint64 { return rng.Next() })
	})
}
