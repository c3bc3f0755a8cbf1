// Package aht20 drives the AHT20 ambient temperature/humidity sensor that
// sits next to the optics. One measurement is a trigger write followed by a
// conversion wait of roughly 80 ms.
package aht20

import (
	"time"

	"tinygo.org/x/drivers"

	"github.com/roman-dvorak/AMSKY01/errcode"
)

const Address = 0x38

const (
	cmdTrigger    = 0xAC
	cmdInitialize = 0xBE
	cmdSoftReset  = 0xBA
	cmdStatus     = 0x71

	statusBusy       = 0x80
	statusCalibrated = 0x08

	pollInterval   = 15 * time.Millisecond
	collectTimeout = 250 * time.Millisecond
)

// Sample is one converted measurement.
type Sample struct {
	Temp     float64 // degrees C
	Humidity float64 // percent RH
}

type Device struct {
	bus     drivers.I2C
	Address uint16

	buf [7]byte
}

// New creates the device handle without touching the hardware.
func New(bus drivers.I2C) Device {
	return Device{bus: bus, Address: Address}
}

// Configure initialises the sensor's calibration state when it is not
// already loaded.
func (d *Device) Configure() error {
	st, err := d.status()
	if err != nil {
		return errcode.Wrap(errcode.Transport, "aht20.configure", err)
	}
	if st&statusCalibrated != 0 {
		return nil
	}
	if err := d.bus.Tx(d.Address, []byte{cmdInitialize, 0x08, 0x00}, nil); err != nil {
		return errcode.Wrap(errcode.Transport, "aht20.configure", err)
	}
	time.Sleep(10 * time.Millisecond)
	return nil
}

// Reset issues a soft reset. The sensor needs about 20 ms before first use.
func (d *Device) Reset() error {
	if err := d.bus.Tx(d.Address, []byte{cmdSoftReset}, nil); err != nil {
		return errcode.Wrap(errcode.Transport, "aht20.reset", err)
	}
	return nil
}

func (d *Device) status() (byte, error) {
	buf := d.buf[:1]
	if err := d.bus.Tx(d.Address, []byte{cmdStatus}, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// trigger starts one conversion.
func (d *Device) trigger() error {
	if err := d.bus.Tx(d.Address, []byte{cmdTrigger, 0x33, 0x00}, nil); err != nil {
		return errcode.Wrap(errcode.Transport, "aht20.trigger", err)
	}
	return nil
}

// collect fetches one finished conversion. A busy or uncalibrated status
// byte reports not_ready.
func (d *Device) collect() (Sample, error) {
	buf := d.buf[:7]
	if err := d.bus.Tx(d.Address, nil, buf); err != nil {
		return Sample{}, errcode.Wrap(errcode.Transport, "aht20.collect", err)
	}
	if buf[0]&statusCalibrated == 0 || buf[0]&statusBusy != 0 {
		return Sample{}, errcode.New(errcode.NotReady, "aht20.collect", "conversion pending")
	}

	hraw := uint32(buf[1])<<12 | uint32(buf[2])<<4 | uint32(buf[3])>>4
	traw := uint32(buf[3]&0x0F)<<16 | uint32(buf[4])<<8 | uint32(buf[5])

	return Sample{
		Temp:     float64(traw)*200.0/0x100000 - 50,
		Humidity: float64(hraw) * 100.0 / 0x100000,
	}, nil
}

// Read runs one full measurement cycle: trigger, then bounded polling until
// the conversion finishes.
func (d *Device) Read() (Sample, error) {
	if err := d.trigger(); err != nil {
		return Sample{}, err
	}
	deadline := time.Now().Add(collectTimeout)
	for {
		s, err := d.collect()
		if err == nil {
			return s, nil
		}
		if !errcode.Is(err, errcode.NotReady) {
			return Sample{}, err
		}
		if time.Now().After(deadline) {
			return Sample{}, errcode.New(errcode.Timeout, "aht20.read", "conversion never finished")
		}
		time.Sleep(pollInterval)
	}
}
