// Package config owns the persistent device configuration: SQM calibration
// constants, cloud detection threshold, alert settings, measurement cadence
// and the device label. The on-storage form is a fixed 256-byte image with
// magic/version framing and an additive checksum.
package config

import (
	"encoding/binary"
	"math"

	"github.com/roman-dvorak/AMSKY01/errcode"
)

const (
	// ImageSize is the full storage footprint, padding included.
	ImageSize = 256

	configMagic   = 0xA5CA
	configVersion = 1

	labelSize = 32
)

// Image field offsets (little-endian).
const (
	offMagic          = 0
	offVersion        = 2
	offSQMOffset      = 3
	offSQMDarkCap     = 7
	offSQMOffsetBase  = 11
	offSQMMagnitude   = 15
	offCloudThreshold = 19
	offAlertEnabled   = 23
	offAlertOnCloud   = 24
	offAlertCloudTemp = 25
	offAlertCloudBel  = 29
	offAlertOnLight   = 30
	offAlertLightThr  = 31
	offAlertLightAbv  = 35
	offInterval       = 36
	offLabel          = 38
	offChecksum       = offLabel + labelSize
)

// DeviceConfig is the working (decoded) configuration.
type DeviceConfig struct {
	// SQM calibration.
	SQMOffset         float32 // lens offset for the lux-based conversion
	SQMDarkCap        float32 // magnitude cap for unmeasurably dark sky
	SQMOffsetBase     float32 // base of the raw-count magnitude scale
	SQMMagnitudeConst float32 // ln() conversion factor

	// Cloud detection.
	CloudThreshold float32 // corner-vs-centre delta in degrees C

	// Alert output.
	AlertEnabled            bool
	AlertOnCloud            bool
	AlertCloudTempThreshold float32
	AlertCloudBelow         bool
	AlertOnLight            bool
	AlertLightThreshold     float32
	AlertLightAbove         bool

	// Acquisition cadence.
	MeasurementIntervalMs uint16

	// User-assigned label, at most 31 bytes.
	DeviceLabel string
}

// Defaults returns the factory configuration.
func Defaults() DeviceConfig {
	return DeviceConfig{
		SQMOffset:         8.5265, // 10 degree FOV: 12.58 + 2.5*log10(omega)
		SQMDarkCap:        23.0,
		SQMOffsetBase:     12.6,
		SQMMagnitudeConst: 1.086,

		CloudThreshold: 5.0,

		AlertEnabled:            false,
		AlertOnCloud:            true,
		AlertCloudTempThreshold: -10.0,
		AlertCloudBelow:         true,
		AlertOnLight:            true,
		AlertLightThreshold:     10.0,
		AlertLightAbove:         true,

		MeasurementIntervalMs: 2000,

		DeviceLabel: "AMSKY01",
	}
}

// Marshal encodes the configuration into its storage image, checksum
// included.
func (c DeviceConfig) Marshal() []byte {
	img := make([]byte, ImageSize)
	le := binary.LittleEndian

	le.PutUint16(img[offMagic:], configMagic)
	img[offVersion] = configVersion
	putF32 := func(off int, v float32) { le.PutUint32(img[off:], math.Float32bits(v)) }
	putBool := func(off int, v bool) {
		if v {
			img[off] = 1
		}
	}

	putF32(offSQMOffset, c.SQMOffset)
	putF32(offSQMDarkCap, c.SQMDarkCap)
	putF32(offSQMOffsetBase, c.SQMOffsetBase)
	putF32(offSQMMagnitude, c.SQMMagnitudeConst)
	putF32(offCloudThreshold, c.CloudThreshold)
	putBool(offAlertEnabled, c.AlertEnabled)
	putBool(offAlertOnCloud, c.AlertOnCloud)
	putF32(offAlertCloudTemp, c.AlertCloudTempThreshold)
	putBool(offAlertCloudBel, c.AlertCloudBelow)
	putBool(offAlertOnLight, c.AlertOnLight)
	putF32(offAlertLightThr, c.AlertLightThreshold)
	putBool(offAlertLightAbv, c.AlertLightAbove)
	le.PutUint16(img[offInterval:], c.MeasurementIntervalMs)

	label := []byte(c.DeviceLabel)
	if len(label) > labelSize-1 {
		label = label[:labelSize-1]
	}
	copy(img[offLabel:offLabel+labelSize], label)

	le.PutUint16(img[offChecksum:], checksum(img))
	return img
}

// Unmarshal decodes and validates a storage image.
func Unmarshal(img []byte) (DeviceConfig, error) {
	var c DeviceConfig
	if len(img) < ImageSize {
		return c, errcode.New(errcode.InvalidParams, "config.unmarshal", "short image")
	}
	le := binary.LittleEndian

	if le.Uint16(img[offMagic:]) != configMagic {
		return c, errcode.New(errcode.InvalidParams, "config.unmarshal", "bad magic")
	}
	if img[offVersion] != configVersion {
		return c, errcode.New(errcode.InvalidParams, "config.unmarshal", "unsupported version")
	}
	if le.Uint16(img[offChecksum:]) != checksum(img) {
		return c, errcode.New(errcode.InvalidParams, "config.unmarshal", "checksum mismatch")
	}

	getF32 := func(off int) float32 { return math.Float32frombits(le.Uint32(img[off:])) }

	c.SQMOffset = getF32(offSQMOffset)
	c.SQMDarkCap = getF32(offSQMDarkCap)
	c.SQMOffsetBase = getF32(offSQMOffsetBase)
	c.SQMMagnitudeConst = getF32(offSQMMagnitude)
	c.CloudThreshold = getF32(offCloudThreshold)
	c.AlertEnabled = img[offAlertEnabled] != 0
	c.AlertOnCloud = img[offAlertOnCloud] != 0
	c.AlertCloudTempThreshold = getF32(offAlertCloudTemp)
	c.AlertCloudBelow = img[offAlertCloudBel] != 0
	c.AlertOnLight = img[offAlertOnLight] != 0
	c.AlertLightThreshold = getF32(offAlertLightThr)
	c.AlertLightAbove = img[offAlertLightAbv] != 0
	c.MeasurementIntervalMs = le.Uint16(img[offInterval:])

	label := img[offLabel : offLabel+labelSize]
	for i, b := range label {
		if b == 0 {
			label = label[:i]
			break
		}
	}
	c.DeviceLabel = string(label)
	return c, nil
}

// checksum is the additive byte sum over everything before the checksum
// field. Padding after the field is excluded, matching the stored layout.
func checksum(img []byte) uint16 {
	var sum uint16
	for _, b := range img[:offChecksum] {
		sum += uint16(b)
	}
	return sum
}
