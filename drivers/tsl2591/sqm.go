package tsl2591

import (
	"math"

	"github.com/roman-dvorak/AMSKY01/errcode"
)

// SQMConstants parameterize the sky-brightness conversion. The zero value is
// not usable; start from DefaultSQMConstants.
type SQMConstants struct {
	OffsetBase        float64 // base of the magnitude scale
	MagnitudeConst    float64 // ln() conversion factor, also scales the uncertainty
	CalibrationOffset float64 // per-device correction, added to the result
	ReferenceMs       float64 // integration time the normalization is anchored to
	Niter             int     // samples summed into the raw counts
}

// DefaultSQMConstants returns the firmware defaults.
func DefaultSQMConstants() SQMConstants {
	return SQMConstants{
		OffsetBase:     12.6,
		MagnitudeConst: 1.086,
		ReferenceMs:    200,
		Niter:          1,
	}
}

// SQMResult is a sky brightness in magnitudes per square arcsecond with its
// photon-statistics uncertainty.
type SQMResult struct {
	MPSAS       float64
	Uncertainty float64
}

// CalculateSQM converts one raw channel pair taken at the given setting into
// a setting-invariant sky brightness. The visible component is full - ir;
// it is normalized by gain x (integration/reference) x niter so the result
// does not move when the controller reconfigures the sensor.
//
// Non-positive visible or normalized signals are an invalid measurement,
// reported as an explicit error rather than a NaN magnitude.
func CalculateSQM(full, ir uint16, s Setting, k SQMConstants) (SQMResult, error) {
	vis := float64(full) - float64(ir)
	if vis <= 0 {
		return SQMResult{}, errcode.New(errcode.InvalidMeasurement, "tsl2591.sqm", "non-positive visible signal")
	}
	norm := s.Gain.Multiplier() * (float64(s.Integration.Milliseconds()) / k.ReferenceMs) * float64(k.Niter)
	if norm <= 0 {
		return SQMResult{}, errcode.New(errcode.InvalidMeasurement, "tsl2591.sqm", "non-positive normalization")
	}
	visNorm := vis / norm
	if visNorm <= 0 {
		return SQMResult{}, errcode.New(errcode.InvalidMeasurement, "tsl2591.sqm", "non-positive normalized signal")
	}
	return SQMResult{
		MPSAS:       k.OffsetBase - k.MagnitudeConst*math.Log(visNorm) + k.CalibrationOffset,
		Uncertainty: k.MagnitudeConst / math.Sqrt(vis),
	}, nil
}

// Lux density factor of the channel response, from the sensor datasheet.
const luxDF = 408.0

// Lux estimates illuminance from one raw channel pair at the given setting.
// Returns -1 for overflowed channels; kept for the legacy telemetry path.
func Lux(full, ir uint16, s Setting) float64 {
	if full == 0xFFFF || ir == 0xFFFF {
		return -1
	}
	if full == 0 {
		return 0
	}
	cpl := (float64(s.Integration.Milliseconds()) * s.Gain.Multiplier()) / luxDF
	return (float64(full) - float64(ir)) * (1 - float64(ir)/float64(full)) / cpl
}

// Dark-sky cap for the lux-based conversion: below measurable light the
// scale is pinned instead of diverging.
const sqmDarkCap = 23.0

// LuxToSQM is the legacy lux-based sky-brightness conversion,
// offset - 2.5*log10(lux), capped for non-positive input.
func LuxToSQM(lux, lensOffset float64) float64 {
	if lux <= 1e-9 {
		return sqmDarkCap
	}
	return lensOffset - 2.5*math.Log10(lux)
}
