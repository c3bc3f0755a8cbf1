// services/acquisition/types.go
package acquisition

import "github.com/roman-dvorak/AMSKY01/drivers/mlx90641"

// ThermalReading is one reconstructed and aggregated thermal frame.
type ThermalReading struct {
	Vdd     float64
	Ta      float64
	Regions mlx90641.RegionMeans
	TsMs    int64
}

// LightReading is one accepted (settings-stable) light sample.
type LightReading struct {
	Full    uint16 // instantaneous raw counts
	IR      uint16
	FullAvg uint16 // moving-average counts feeding the lux estimate
	IRAvg   uint16

	Lux           float64
	MPSAS         float64 // sky brightness; valid only when SQMValid
	SQMUncert     float64
	SQMValid      bool
	GainLabel     string
	IntegrationMs int
	TsMs          int64
}

// HygroReading is one ambient temperature/humidity sample. Both values are
// NaN when the sensor read failed.
type HygroReading struct {
	Temp     float64
	Humidity float64
	TsMs     int64
}

// CloudEvent reports the corner-vs-centre decision for one frame.
type CloudEvent struct {
	Delta  float64 // corner mean minus centre mean, degrees C
	Cloudy bool
	TsMs   int64
}
