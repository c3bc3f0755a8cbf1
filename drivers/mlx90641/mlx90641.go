package mlx90641

import (
	"time"

	"tinygo.org/x/drivers"

	"github.com/roman-dvorak/AMSKY01/errcode"
)

// Device wraps an I2C connection to an MLX90641 sensor. Not safe for
// concurrent use; the acquisition service owns one instance.
type Device struct {
	bus     drivers.I2C
	Address uint16

	cal *Calibration
	buf [chunkWords * 2]byte
}

// New creates a new MLX90641 connection. The I2C bus must already be
// configured. This function only creates the Device object; it does not
// touch the device.
func New(bus drivers.I2C) Device {
	return Device{
		bus:     bus,
		Address: Address,
	}
}

// Configure probes the device, programs the control register and performs
// the one-time calibration read + decode. The decoded calibration is
// immutable afterwards.
func (d *Device) Configure() error {
	ctrl, err := d.ReadRegister(regControl)
	if err != nil {
		return errcode.Wrap(errcode.Transport, "mlx90641.configure", err)
	}
	ctrl = (ctrl & controlKeepMask) | controlRefresh16 | controlRes18
	if err := d.WriteRegister(regControl, ctrl); err != nil {
		return errcode.Wrap(errcode.Transport, "mlx90641.configure", err)
	}

	ee, err := d.ReadWords(eepromStart, eepromWords)
	if err != nil {
		return errcode.Wrap(errcode.Calibration, "mlx90641.configure", err)
	}
	cal, err := DecodeCalibration(ee)
	if err != nil {
		return err
	}
	d.cal = cal
	return nil
}

// Calibration returns the decoded calibration, or nil before Configure.
func (d *Device) Calibration() *Calibration { return d.cal }

// ReadRegister reads a single control/status word (no RAM masking).
func (d *Device) ReadRegister(reg uint16) (uint16, error) {
	w := []byte{byte(reg >> 8), byte(reg)}
	r := d.buf[:2]
	if err := d.bus.Tx(d.Address, w, r); err != nil {
		return 0, err
	}
	return uint16(r[0])<<8 | uint16(r[1]), nil
}

// WriteRegister writes a single 16-bit word.
func (d *Device) WriteRegister(reg uint16, val uint16) error {
	return d.bus.Tx(d.Address, []byte{
		byte(reg >> 8), byte(reg),
		byte(val >> 8), byte(val),
	}, nil)
}

// ReadWords reads count consecutive words starting at start, in chunks of
// chunkWords with a settle delay between chunks. Words inside the pixel
// window are masked to their 11-bit payload; aux and EEPROM words pass
// through verbatim. A short read is an error; the result is never
// zero-filled.
func (d *Device) ReadWords(start uint16, count int) ([]uint16, error) {
	out := make([]uint16, count)
	for done := 0; done < count; {
		n := count - done
		if n > chunkWords {
			n = chunkWords
		}
		addr := start + uint16(done)
		w := []byte{byte(addr >> 8), byte(addr)}
		r := d.buf[:n*2]
		if err := d.bus.Tx(d.Address, w, r); err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			v := uint16(r[2*i])<<8 | uint16(r[2*i+1])
			if a := addr + uint16(i); a >= ramStart && a < ramStart+Pixels {
				v &= pixelWordMask
			}
			out[done+i] = v
		}
		done += n
		if done < count {
			time.Sleep(interChunkDelay * time.Millisecond)
		}
	}
	return out, nil
}

// NewDataReady reports whether the device has completed a frame since the
// status bit was last cleared.
func (d *Device) NewDataReady() (bool, error) {
	st, err := d.ReadRegister(regStatus)
	if err != nil {
		return false, errcode.Wrap(errcode.Transport, "mlx90641.status", err)
	}
	return st&statusNewData != 0, nil
}

// clearNewData acknowledges the current frame. Called only after the frame
// has been fully read and reconstructed, so a failed cycle leaves the data
// available for the next attempt.
func (d *Device) clearNewData() error {
	st, err := d.ReadRegister(regStatus)
	if err != nil {
		return err
	}
	return d.WriteRegister(regStatus, st&^statusNewData)
}

// ReadFrame performs one complete acquisition: check the new-data bit, read
// the pixel RAM and aux samples, reconstruct temperatures, then acknowledge.
// Returns a not_ready error when no frame is pending, and leaves the status
// bit untouched on any failure.
func (d *Device) ReadFrame() (*Frame, error) {
	if d.cal == nil {
		return nil, errcode.New(errcode.Calibration, "mlx90641.readframe", "not configured")
	}
	ready, err := d.NewDataReady()
	if err != nil {
		return nil, err
	}
	if !ready {
		return nil, errcode.New(errcode.NotReady, "mlx90641.readframe", "no frame pending")
	}

	pix, err := d.ReadWords(ramStart, Pixels)
	if err != nil {
		return nil, errcode.Wrap(errcode.Acquisition, "mlx90641.readframe", err)
	}
	ptat, err := d.ReadWords(regPTAT, 1)
	if err != nil {
		return nil, errcode.Wrap(errcode.Acquisition, "mlx90641.readframe", err)
	}
	vbe, err := d.ReadWords(regVBE, 1)
	if err != nil {
		return nil, errcode.Wrap(errcode.Acquisition, "mlx90641.readframe", err)
	}
	vddpix, err := d.ReadWords(regVDDPix, 1)
	if err != nil {
		return nil, errcode.Wrap(errcode.Acquisition, "mlx90641.readframe", err)
	}

	frame, err := d.cal.Reconstruct(pix, ptat[0], vbe[0], vddpix[0])
	if err != nil {
		return nil, err
	}

	if err := d.clearNewData(); err != nil {
		return nil, errcode.Wrap(errcode.Transport, "mlx90641.readframe", err)
	}
	return frame, nil
}
