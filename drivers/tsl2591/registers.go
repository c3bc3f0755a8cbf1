// Package tsl2591 provides a driver for the TSL2591 high-dynamic-range light
// sensor plus the two pieces of logic built on top of it: the adaptive
// gain/integration-time controller that keeps the sensor inside its usable
// range, and the sky-brightness (SQM) conversion of its raw counts.
package tsl2591

const (
	// 7-bit I2C address.
	Address = 0x29

	// Command bit, ORed into every register access (normal operation).
	cmdBit = 0xA0

	regEnable  = 0x00
	regControl = 0x01
	regID      = 0x12
	regC0DataL = 0x14 // CH0 low, CH0 high, CH1 low, CH1 high

	chipID = 0x50

	enablePowerOn = 0x01 // PON
	enableALS     = 0x02 // AEN
	enableOff     = 0x00
)

// Gain is the analog gain selector, pre-shifted for the control register.
type Gain byte

const (
	GainLow  Gain = 0x00 // x1
	GainMed  Gain = 0x10 // x25
	GainHigh Gain = 0x20 // x428
	GainMax  Gain = 0x30 // x9876
)

// Multiplier returns the nominal analog gain factor.
func (g Gain) Multiplier() float64 {
	switch g {
	case GainLow:
		return 1
	case GainMed:
		return 25
	case GainHigh:
		return 428
	case GainMax:
		return 9876
	}
	return 1
}

func (g Gain) String() string {
	switch g {
	case GainLow:
		return "1"
	case GainMed:
		return "25"
	case GainHigh:
		return "428"
	case GainMax:
		return "9876"
	}
	return "unknown"
}

// IntegrationTime is the ALS integration time selector (control bits 2:0).
type IntegrationTime byte

const (
	Integration100ms IntegrationTime = iota
	Integration200ms
	Integration300ms
	Integration400ms
	Integration500ms
	Integration600ms
)

// Milliseconds returns the integration window length.
func (t IntegrationTime) Milliseconds() int { return (int(t) + 1) * 100 }

func (t IntegrationTime) String() string {
	switch t {
	case Integration100ms:
		return "100"
	case Integration200ms:
		return "200"
	case Integration300ms:
		return "300"
	case Integration400ms:
		return "400"
	case Integration500ms:
		return "500"
	case Integration600ms:
		return "600"
	}
	return "unknown"
}

// Setting is one (gain, integration time) pair.
type Setting struct {
	Gain        Gain
	Integration IntegrationTime
}

// DefaultSetting is the power-on operating point: medium gain, 300 ms.
func DefaultSetting() Setting {
	return Setting{Gain: GainMed, Integration: Integration300ms}
}
