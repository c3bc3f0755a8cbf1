package mlx90641

import (
	"math"

	"github.com/roman-dvorak/AMSKY01/errcode"
)

// Calibration holds the per-device constants decoded from the EEPROM block.
// Decoded once during Configure and immutable afterwards.
type Calibration struct {
	// Supply voltage model.
	Vdd25 float64
	KVdd  float64

	// Ambient temperature model.
	PTAT25    float64
	KtPTAT    float64
	KvPTAT    float64
	AlphaPTAT float64

	// Per-pixel correction terms, row-major (Rows x Cols).
	Offset [Pixels]float64
	Alpha  [Pixels]float64
	Kta    [Pixels]float64
	Kv     [Pixels]float64
}

// EEPROM block word offsets.
const (
	eeAlphaScale = 32 // bits 15:12
	eeVdd25      = 38
	eeKVdd       = 39
	eePTAT25Hi   = 40
	eePTAT25Lo   = 41
	eeKtPTAT     = 42
	eeKvPTAT     = 43
	eeAlphaPTAT  = 44
	eeKtaKvScale = 56 // kta bits 11:8, kv bits 7:4
	eeAlphaBase  = 384
	eeOffsetBase = 512
	eeKtaKvBase  = 640
)

// signExtend11 interprets the low 11 bits of w as two's complement.
func signExtend11(w uint16) int {
	v := int(w & 0x07FF)
	if v > 1023 {
		v -= 2048
	}
	return v
}

// DecodeCalibration decodes the full EEPROM block (eepromWords words) into
// engineering-unit constants.
func DecodeCalibration(words []uint16) (*Calibration, error) {
	if len(words) != eepromWords {
		return nil, errcode.New(errcode.Calibration, "mlx90641.decode", "short calibration block")
	}

	c := &Calibration{
		Vdd25:     float64(signExtend11(words[eeVdd25])) * 25,
		KVdd:      float64(signExtend11(words[eeKVdd])) * 25,
		PTAT25:    float64(32*int(words[eePTAT25Hi]&0x07FF) + int(words[eePTAT25Lo]&0x07FF)),
		KtPTAT:    float64(signExtend11(words[eeKtPTAT])) / 8,
		KvPTAT:    float64(signExtend11(words[eeKvPTAT])) / 4096,
		AlphaPTAT: float64(words[eeAlphaPTAT]&0x07FF) / (1 << 27),
	}
	if c.KVdd == 0 {
		return nil, errcode.New(errcode.Calibration, "mlx90641.decode", "kVdd is zero")
	}
	if c.KtPTAT == 0 {
		return nil, errcode.New(errcode.Calibration, "mlx90641.decode", "ktPTAT is zero")
	}

	alphaScale := math.Pow(2, float64((words[eeAlphaScale]>>12)&0xF))
	ktaScale := math.Pow(2, float64((words[eeKtaKvScale]>>8)&0xF))
	kvScale := math.Pow(2, float64((words[eeKtaKvScale]>>4)&0xF))

	for i := 0; i < Pixels; i++ {
		c.Offset[i] = float64(int16(words[eeOffsetBase+i]))
		c.Alpha[i] = float64(words[eeAlphaBase+i]) / alphaScale
		kk := words[eeKtaKvBase+i]
		c.Kta[i] = float64(int8(kk>>8)) / ktaScale
		c.Kv[i] = float64(int8(kk)) / kvScale
	}
	return c, nil
}
