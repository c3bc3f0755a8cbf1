package tsl2591

// movingAvgSize bounds the temporal filter over raw channel samples.
const movingAvgSize = 16

// MovingAverage is a fixed-depth ring over raw channel pairs. It smooths
// the telemetry path; the controller always sees the instantaneous count.
type MovingAverage struct {
	full  [movingAvgSize]uint32
	ir    [movingAvgSize]uint32
	idx   int
	count int
}

// Add records one sample pair.
func (m *MovingAverage) Add(full, ir uint16) {
	m.full[m.idx] = uint32(full)
	m.ir[m.idx] = uint32(ir)
	m.idx = (m.idx + 1) % movingAvgSize
	if m.count < movingAvgSize {
		m.count++
	}
}

// Mean returns the integer mean of the recorded samples, zero when empty.
func (m *MovingAverage) Mean() (full, ir uint16) {
	if m.count == 0 {
		return 0, 0
	}
	var fs, is uint32
	for i := 0; i < m.count; i++ {
		fs += m.full[i]
		is += m.ir[i]
	}
	return uint16(fs / uint32(m.count)), uint16(is / uint32(m.count))
}

// Len reports how many samples the window currently holds.
func (m *MovingAverage) Len() int { return m.count }
