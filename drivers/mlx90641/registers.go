// Package mlx90641 provides a driver for the MLX90641 16x12 far-infrared
// thermal sensor array. It exposes the raw word transport, the one-time
// EEPROM calibration decode, frame reconstruction to per-pixel temperatures
// and fixed-geometry region aggregation.
//
// NOTE: I2C.Tx MUST perform a write followed by a repeated-start read when
// both w and r are provided, without releasing the bus. Register addressing
// is 16-bit big-endian, data words are 16-bit big-endian.
package mlx90641

const (
	// 7-bit I2C address.
	Address = 0x33

	// Sensor geometry.
	Rows   = 12
	Cols   = 16
	Pixels = Rows * Cols

	// --- Memory map ---
	ramStart    = 0x0400 // pixel frame, Pixels words
	regPTAT     = 0x05A0 // proportional-to-absolute-temperature sample
	regVBE      = 0x0580 // bandgap voltage sample
	regVDDPix   = 0x05AA // supply voltage sample
	eepromStart = 0x2400
	eepromWords = 832

	// --- Control/status registers ---
	regStatus  = 0x8000
	regControl = 0x800D

	statusNewData = 0x0008 // bit 3, set by the device when a frame completes

	// Control register init: keep reserved bits, select 16 Hz refresh
	// (bits 9:7 = 0b100) and 18-bit ADC resolution (bits 3:2 = 0b10).
	controlKeepMask  = 0xFC1F
	controlRefresh16 = 0b100 << 5
	controlRes18     = 0b10 << 2

	// Pixel words carry ECC/status in the top bits; the payload is 11
	// bits. The aux samples (PTAT, VBE, VDDPix) are full 16-bit two's
	// complement and pass through unmasked.
	pixelWordMask = 0x07FF

	// Transport chunking. The device misbehaves on long bursts; the
	// original firmware reads 16 words at a time with a settle delay.
	chunkWords      = 16
	interChunkDelay = 5 // milliseconds
)
