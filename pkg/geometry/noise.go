package geometry

import (
	"math"

	"github.com/aquilax/go-perlin"
)

const (
	noiseAlpha  = 2
	noiseBeta   = 2
	noiseOctave = 3
	noiseSeed   = 1337
)

// shared generator; perlin.Perlin is read-only after construction.
var noiseGen = perlin.NewPerlin(noiseAlpha, noiseBeta, noiseOctave, noiseSeed)

// N1D returns deterministic one-dimensional coherent noise in [-1, 1].
// Sampling the same x always yields the same value.
func N1D(x float64) float64 {
	// Perlin output is roughly within [-0.7, 0.7]; stretch and clamp.
	return math.Max(-1, math.Min(1, noiseGen.Noise1D(x)*1.5))
}
