package compress

import (
	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Level selects how hard an encoder works: one of the portable presets,
// or a codec-native quality picked with Precise. The zero value is
// LevelDefault, so an unset CompressionLevels uses every codec's own
// default.
type Level struct {
	preset  levelPreset
	quality int
}

type levelPreset uint8

const (
	presetDefault levelPreset = iota
	presetFastest
	presetBest
	presetPrecise
)

// Portable level presets, resolved per codec when the encoder is built.
var (
	LevelDefault = Level{preset: presetDefault}
	LevelFastest = Level{preset: presetFastest}
	LevelBest    = Level{preset: presetBest}
)

// Precise requests an exact codec-native quality. The value is clamped
// to the codec's valid range when the encoder is constructed
// (0-9 for gzip and deflate, 0-11 for brotli, zstd's native 1-22 scale
// mapped onto its speed levels).
func Precise(quality int) Level {
	if quality < 0 {
		quality = 0
	}
	return Level{preset: presetPrecise, quality: quality}
}

// CompressionLevels holds the encoder level for every supported
// algorithm. It is copied into the middleware at construction time and
// never mutated afterwards, so a single value is safe to share across
// concurrent requests.
type CompressionLevels struct {
	Brotli  Level
	Gzip    Level
	Deflate Level
	Zstd    Level
}

// AllLevels returns a CompressionLevels with the same level set for
// every supported algorithm.
func AllLevels(level Level) CompressionLevels {
	return CompressionLevels{
		Brotli:  level,
		Gzip:    level,
		Deflate: level,
		Zstd:    level,
	}
}

// DefaultCompressionLevels returns each algorithm's library-default
// level. Identical to the zero value.
func DefaultCompressionLevels() CompressionLevels {
	return CompressionLevels{}
}

func (l Level) gzipLevel() int {
	switch l.preset {
	case presetFastest:
		return gzip.BestSpeed
	case presetBest:
		return gzip.BestCompression
	case presetPrecise:
		return clampLevel(l.quality, gzip.NoCompression, gzip.BestCompression)
	default:
		return gzip.DefaultCompression
	}
}

func (l Level) flateLevel() int {
	switch l.preset {
	case presetFastest:
		return flate.BestSpeed
	case presetBest:
		return flate.BestCompression
	case presetPrecise:
		return clampLevel(l.quality, flate.NoCompression, flate.BestCompression)
	default:
		return flate.DefaultCompression
	}
}

func (l Level) brotliLevel() int {
	switch l.preset {
	case presetFastest:
		return brotli.BestSpeed
	case presetBest:
		return brotli.BestCompression
	case presetPrecise:
		return clampLevel(l.quality, brotli.BestSpeed, brotli.BestCompression)
	default:
		return brotli.DefaultCompression
	}
}

func (l Level) zstdLevel() zstd.EncoderLevel {
	switch l.preset {
	case presetFastest:
		return zstd.SpeedFastest
	case presetBest:
		return zstd.SpeedBestCompression
	case presetPrecise:
		return zstd.EncoderLevelFromZstd(l.quality)
	default:
		return zstd.SpeedDefault
	}
}

func clampLevel(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
