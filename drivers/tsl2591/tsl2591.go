package tsl2591

import (
	"tinygo.org/x/drivers"

	"github.com/roman-dvorak/AMSKY01/errcode"
)

// Device wraps an I2C connection to a TSL2591 sensor. Not safe for
// concurrent use; the acquisition service owns one instance.
type Device struct {
	bus     drivers.I2C
	Address uint16

	setting Setting
	buf     [4]byte
}

// New creates a new TSL2591 connection. The I2C bus must already be
// configured. This function only creates the Device object; it does not
// touch the device.
func New(bus drivers.I2C) Device {
	return Device{
		bus:     bus,
		Address: Address,
		setting: DefaultSetting(),
	}
}

// Configure verifies the chip identity, programs the initial setting and
// enables the ALS.
func (d *Device) Configure(s Setting) error {
	id, err := d.readRegister(regID)
	if err != nil {
		return errcode.Wrap(errcode.Transport, "tsl2591.configure", err)
	}
	if id != chipID {
		return errcode.New(errcode.Unsupported, "tsl2591.configure", "unexpected chip id")
	}
	if err := d.Apply(s); err != nil {
		return err
	}
	return d.Enable()
}

// Setting returns the currently programmed operating point.
func (d *Device) Setting() Setting { return d.setting }

// Enable powers the oscillator and the ALS.
func (d *Device) Enable() error {
	if err := d.writeRegister(regEnable, enablePowerOn|enableALS); err != nil {
		return errcode.Wrap(errcode.Transport, "tsl2591.enable", err)
	}
	return nil
}

// Disable powers the device down.
func (d *Device) Disable() error {
	if err := d.writeRegister(regEnable, enableOff); err != nil {
		return errcode.Wrap(errcode.Transport, "tsl2591.disable", err)
	}
	return nil
}

// Apply programs a new gain/integration pair. The first ALS cycle after a
// change integrates under mixed settings; callers discard that sample.
func (d *Device) Apply(s Setting) error {
	if err := d.writeRegister(regControl, byte(s.Gain)|byte(s.Integration)); err != nil {
		return errcode.Wrap(errcode.Transport, "tsl2591.apply", err)
	}
	d.setting = s
	return nil
}

// FullLuminosity reads both ALS channels from the same integration cycle:
// CH0 (full spectrum) and CH1 (infrared).
func (d *Device) FullLuminosity() (full, ir uint16, err error) {
	r := d.buf[:4]
	if err := d.bus.Tx(d.Address, []byte{cmdBit | regC0DataL}, r); err != nil {
		return 0, 0, errcode.Wrap(errcode.Transport, "tsl2591.luminosity", err)
	}
	full = uint16(r[0]) | uint16(r[1])<<8
	ir = uint16(r[2]) | uint16(r[3])<<8
	return full, ir, nil
}

func (d *Device) readRegister(reg byte) (byte, error) {
	r := d.buf[:1]
	if err := d.bus.Tx(d.Address, []byte{cmdBit | reg}, r); err != nil {
		return 0, err
	}
	return r[0], nil
}

func (d *Device) writeRegister(reg, val byte) error {
	return d.bus.Tx(d.Address, []byte{cmdBit | reg, val}, nil)
}
