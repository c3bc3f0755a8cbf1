package mlx90641

import (
	"github.com/roman-dvorak/AMSKY01/errcode"
)

// Frame is one reconstructed thermal image plus the supply/ambient values
// derived from the same acquisition.
type Frame struct {
	Vdd  float64 // volts
	Ta   float64 // ambient (die) temperature, degrees C
	Temp [Pixels]float64
}

// At returns the pixel temperature at row r, column c (row-major).
func (f *Frame) At(r, c int) float64 { return f.Temp[r*Cols+c] }

// Reconstruct converts one raw acquisition into temperatures. pix holds the
// RAM words in row-major order, 11-bit two's complement; ptat, vbe and
// vddpix are the aux samples from the same frame, full 16-bit two's
// complement.
//
// A non-finite result is stored as-is (dead pixel, degenerate aux sample);
// reconstruction only fails on malformed input, never on bad values.
func (c *Calibration) Reconstruct(pix []uint16, ptat, vbe, vddpix uint16) (*Frame, error) {
	if len(pix) != Pixels {
		return nil, errcode.New(errcode.Acquisition, "mlx90641.reconstruct", "short pixel block")
	}

	rv := float64(int16(vddpix))
	vdd := (rv-c.Vdd25)/c.KVdd + 3.3
	dv := vdd - 3.3

	p := float64(int16(ptat))
	b := float64(int16(vbe))
	art := p / (p*c.AlphaPTAT + b) * 262144
	// Fixed-point convention of the sensor family: the model yields tenths.
	ta := ((art/(1+c.KvPTAT*dv)-c.PTAT25)/c.KtPTAT + 25) / 10

	f := &Frame{Vdd: vdd, Ta: ta}
	for i := 0; i < Pixels; i++ {
		ir := float64(signExtend11(pix[i])) - c.Offset[i] - c.Kta[i]*(ta-25) - c.Kv[i]*dv
		f.Temp[i] = ta + (ir/c.Alpha[i])*0.01
	}
	return f, nil
}
