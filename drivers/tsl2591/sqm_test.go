package tsl2591

import (
	"math"
	"testing"

	"github.com/roman-dvorak/AMSKY01/errcode"
)

func TestCalculateSQMReferenceVector(t *testing.T) {
	k := DefaultSQMConstants()
	k.ReferenceMs = 300
	s := Setting{Gain: GainHigh, Integration: Integration300ms}

	// vis = 49900, normalization = 428, VIS = 116.5887...
	// mpsas = 12.6 - 1.086*ln(116.5887) = 7.4321
	// dmpsas = 1.086/sqrt(49900) = 0.004862
	r, err := CalculateSQM(50000, 100, s, k)
	if err != nil {
		t.Fatalf("sqm: %v", err)
	}
	if math.Abs(r.MPSAS-7.4321) > 0.01 {
		t.Errorf("MPSAS = %v, want 7.4321 +/- 0.01", r.MPSAS)
	}
	if math.Abs(r.Uncertainty-0.004862) > 1e-4 {
		t.Errorf("Uncertainty = %v, want 0.004862", r.Uncertainty)
	}
}

func TestCalculateSQMSettingInvariance(t *testing.T) {
	k := DefaultSQMConstants()
	// The same physical signal measured at two settings gives the same
	// magnitude when the raw counts scale with the normalization.
	a, err := CalculateSQM(40000, 0, Setting{GainHigh, Integration400ms}, k)
	if err != nil {
		t.Fatalf("a: %v", err)
	}
	// normalization halves (428*2 -> 428), counts halve too.
	b, err := CalculateSQM(20000, 0, Setting{GainHigh, Integration200ms}, k)
	if err != nil {
		t.Fatalf("b: %v", err)
	}
	if math.Abs(a.MPSAS-b.MPSAS) > 1e-9 {
		t.Errorf("MPSAS differs across settings: %v vs %v", a.MPSAS, b.MPSAS)
	}
}

func TestCalculateSQMScaleInvariantValidity(t *testing.T) {
	k := DefaultSQMConstants()
	s := DefaultSetting()
	for _, scale := range []uint16{1, 2, 10} {
		_, err := CalculateSQM(300*scale, 100*scale, s, k)
		if err != nil {
			t.Errorf("scale %d: valid input classified invalid: %v", scale, err)
		}
		_, err = CalculateSQM(100*scale, 300*scale, s, k)
		if !errcode.Is(err, errcode.InvalidMeasurement) {
			t.Errorf("scale %d: err = %v, want invalid_measurement", scale, err)
		}
	}
}

func TestCalculateSQMRejectsDegenerateInput(t *testing.T) {
	k := DefaultSQMConstants()
	s := DefaultSetting()
	cases := []struct {
		name     string
		full, ir uint16
	}{
		{"zero visible", 500, 500},
		{"negative visible", 100, 200},
		{"all zero", 0, 0},
	}
	for _, c := range cases {
		if _, err := CalculateSQM(c.full, c.ir, s, k); !errcode.Is(err, errcode.InvalidMeasurement) {
			t.Errorf("%s: err = %v, want invalid_measurement", c.name, err)
		}
	}
}

func TestLux(t *testing.T) {
	s := Setting{Gain: GainMed, Integration: Integration300ms}
	// cpl = 300*25/408 = 18.3824; lux = (1000-100)*(1-0.1)/cpl = 44.064
	got := Lux(1000, 100, s)
	if math.Abs(got-44.064) > 0.01 {
		t.Errorf("Lux = %v, want 44.064", got)
	}

	if got := Lux(0xFFFF, 100, s); got != -1 {
		t.Errorf("overflow full: %v, want -1", got)
	}
	if got := Lux(100, 0xFFFF, s); got != -1 {
		t.Errorf("overflow ir: %v, want -1", got)
	}
	if got := Lux(0, 0, s); got != 0 {
		t.Errorf("dark: %v, want 0", got)
	}
}

func TestLuxToSQM(t *testing.T) {
	// 8.5265 - 2.5*log10(10) = 6.0265
	if got := LuxToSQM(10, 8.5265); math.Abs(got-6.0265) > 1e-9 {
		t.Errorf("LuxToSQM(10) = %v, want 6.0265", got)
	}
	if got := LuxToSQM(0, 8.5265); got != sqmDarkCap {
		t.Errorf("LuxToSQM(0) = %v, want dark cap %v", got, sqmDarkCap)
	}
	if got := LuxToSQM(-5, 8.5265); got != sqmDarkCap {
		t.Errorf("LuxToSQM(-5) = %v, want dark cap %v", got, sqmDarkCap)
	}
}

func TestMovingAverage(t *testing.T) {
	var m MovingAverage
	if f, i := m.Mean(); f != 0 || i != 0 {
		t.Errorf("empty mean = %d/%d, want 0/0", f, i)
	}

	m.Add(100, 10)
	m.Add(200, 30)
	if f, i := m.Mean(); f != 150 || i != 20 {
		t.Errorf("mean = %d/%d, want 150/20", f, i)
	}

	// Saturate the window with a new level; the old samples age out.
	for j := 0; j < movingAvgSize; j++ {
		m.Add(1000, 500)
	}
	if f, i := m.Mean(); f != 1000 || i != 500 {
		t.Errorf("mean after wrap = %d/%d, want 1000/500", f, i)
	}
	if m.Len() != movingAvgSize {
		t.Errorf("Len = %d, want %d", m.Len(), movingAvgSize)
	}
}
