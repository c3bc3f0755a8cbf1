// cmd/skywatch/parse.go
//
// Decoder for the $-prefixed CSV telemetry the sensor head emits on its
// serial console. Lines starting with "#" are operator chatter and are
// skipped; the "-999" sentinel decodes to NaN.
package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

type ThermalParams struct {
	Vdd float64
	Ta  float64
}

type CloudRow struct {
	TL, TR, BL, BR, Center float64
}

// Delta is the corner mean minus the centre mean, NaN when any region is.
func (c CloudRow) Delta() float64 {
	return (c.TL+c.TR+c.BL+c.BR)/4 - c.Center
}

type LightRow struct {
	Lux           float64
	Full          uint64
	IR            uint64
	Gain          string
	IntegrationMs int
}

type SQMRow struct {
	MPSAS       float64
	Uncertainty float64
}

// Valid reports whether the head produced a usable brightness estimate.
func (s SQMRow) Valid() bool { return !math.IsNaN(s.MPSAS) }

type HygroRow struct {
	Temp     float64
	Humidity float64
}

const sentinel = "-999"

// parseLine decodes one console line. Comments and unknown records return
// (nil, nil); a recognized record with a malformed body is an error.
func parseLine(line string) (any, error) {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "$") {
		return nil, nil
	}
	fields := strings.Split(line, ",")

	switch fields[0] {
	case "$thr_parameters":
		if len(fields) != 3 {
			return nil, fmt.Errorf("thr_parameters: %d fields", len(fields))
		}
		vdd, err := parseValue(fields[1])
		if err != nil {
			return nil, err
		}
		ta, err := parseValue(fields[2])
		if err != nil {
			return nil, err
		}
		return ThermalParams{Vdd: vdd, Ta: ta}, nil

	case "$cloud":
		if len(fields) != 6 {
			return nil, fmt.Errorf("cloud: %d fields", len(fields))
		}
		var vals [5]float64
		for i := 0; i < 5; i++ {
			v, err := parseValue(fields[i+1])
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		return CloudRow{
			TL: vals[0], TR: vals[1], BL: vals[2], BR: vals[3], Center: vals[4],
		}, nil

	case "$light":
		if len(fields) != 6 {
			return nil, fmt.Errorf("light: %d fields", len(fields))
		}
		lux, err := parseValue(fields[1])
		if err != nil {
			return nil, err
		}
		full, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("light full: %w", err)
		}
		ir, err := strconv.ParseUint(fields[3], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("light ir: %w", err)
		}
		integ, err := strconv.Atoi(fields[5])
		if err != nil {
			return nil, fmt.Errorf("light integration: %w", err)
		}
		return LightRow{
			Lux: lux, Full: full, IR: ir,
			Gain: fields[4], IntegrationMs: integ,
		}, nil

	case "$sqm":
		if len(fields) != 3 {
			return nil, fmt.Errorf("sqm: %d fields", len(fields))
		}
		mpsas, err := parseValue(fields[1])
		if err != nil {
			return nil, err
		}
		unc, err := parseValue(fields[2])
		if err != nil {
			return nil, err
		}
		return SQMRow{MPSAS: mpsas, Uncertainty: unc}, nil

	case "$hygro":
		if len(fields) != 3 {
			return nil, fmt.Errorf("hygro: %d fields", len(fields))
		}
		temp, err := parseValue(fields[1])
		if err != nil {
			return nil, err
		}
		humid, err := parseValue(fields[2])
		if err != nil {
			return nil, err
		}
		return HygroRow{Temp: temp, Humidity: humid}, nil
	}

	return nil, nil
}

func parseValue(s string) (float64, error) {
	if s == sentinel {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad value %q: %w", s, err)
	}
	return v, nil
}
