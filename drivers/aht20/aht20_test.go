package aht20

import (
	"errors"
	"testing"

	"tinygo.org/x/drivers"

	"github.com/roman-dvorak/AMSKY01/errcode"
)

// fakeI2C scripts the sensor: a status byte, a sequence of 7-byte data
// frames served in order, and a write log.
type fakeI2C struct {
	status byte
	frames [][7]byte
	writes [][]byte
	err    error
}

var _ drivers.I2C = (*fakeI2C)(nil)

func (f *fakeI2C) Tx(addr uint16, w, r []byte) error {
	if f.err != nil {
		return f.err
	}
	switch {
	case len(w) > 0 && w[0] == cmdStatus:
		r[0] = f.status
		return nil
	case len(w) == 0 && len(r) == 7:
		if len(f.frames) == 0 {
			return errors.New("no scripted frame")
		}
		copy(r, f.frames[0][:])
		if len(f.frames) > 1 {
			f.frames = f.frames[1:]
		}
		return nil
	case len(w) > 0 && len(r) == 0:
		f.writes = append(f.writes, append([]byte(nil), w...))
		return nil
	}
	return errors.New("unexpected transaction shape")
}

// frame encodes a ready data frame for hraw/traw (20-bit each).
func frame(hraw, traw uint32) [7]byte {
	return [7]byte{
		statusCalibrated,
		byte(hraw >> 12), byte(hraw >> 4),
		byte(hraw&0xF)<<4 | byte(traw>>16),
		byte(traw >> 8), byte(traw),
		0,
	}
}

func TestConfigureSkipsInitWhenCalibrated(t *testing.T) {
	f := &fakeI2C{status: statusCalibrated}
	d := New(f)
	if err := d.Configure(); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if len(f.writes) != 0 {
		t.Errorf("unexpected writes: %v", f.writes)
	}
}

func TestConfigureInitialisesWhenNeeded(t *testing.T) {
	f := &fakeI2C{status: 0}
	d := New(f)
	if err := d.Configure(); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if len(f.writes) != 1 || f.writes[0][0] != cmdInitialize {
		t.Errorf("writes = %v, want initialize command", f.writes)
	}
}

func TestReadConvertsRawCounts(t *testing.T) {
	// hraw at half scale is 50 %RH; traw 0x60000 lands on 25.0 C.
	f := &fakeI2C{frames: [][7]byte{frame(0x80000, 0x60000)}}
	d := New(f)

	s, err := d.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if s.Temp != 25.0 {
		t.Errorf("Temp = %v, want 25.0", s.Temp)
	}
	if s.Humidity != 50.0 {
		t.Errorf("Humidity = %v, want 50.0", s.Humidity)
	}

	if len(f.writes) != 1 || f.writes[0][0] != cmdTrigger {
		t.Errorf("writes = %v, want a single trigger", f.writes)
	}
}

func TestReadPollsWhileBusy(t *testing.T) {
	busy := frame(0, 0)
	busy[0] = statusCalibrated | statusBusy
	f := &fakeI2C{frames: [][7]byte{busy, frame(0x80000, 0x60000)}}
	d := New(f)

	s, err := d.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if s.Humidity != 50.0 {
		t.Errorf("Humidity = %v, want 50.0", s.Humidity)
	}
}

func TestReadReportsTransportErrors(t *testing.T) {
	f := &fakeI2C{err: errors.New("bus stuck")}
	d := New(f)
	if _, err := d.Read(); !errcode.Is(err, errcode.Transport) {
		t.Errorf("err = %v, want transport_error", err)
	}
}
