package tsl2591

import "github.com/roman-dvorak/AMSKY01/x/mathx"

// Raw full-spectrum count bands driving the setting adjustments, and the
// minimum spacing between adjustments. Settings need a full sensor cycle to
// settle, so back-to-back corrections would chase their own tail.
const (
	extremeThreshold   = 64000 // inclusive: emergency range drop
	saturatedThreshold = 60000
	highThreshold      = 50000
	lowThreshold       = 2000
	criticalThreshold  = 1500

	adjustIntervalMs = 5000
)

// adjustKind records which knob(s) the previous decision touched.
type adjustKind uint8

const (
	adjustNone adjustKind = iota
	adjustGain
	adjustIntegration
	adjustBoth
)

// Decision is the controller output for one observation. When Changed is
// set the caller must program Setting into the device and discard the
// current sample.
type Decision struct {
	Changed bool
	Setting Setting
}

// Controller keeps the sensor inside its usable dynamic range by stepping
// gain and integration time against the raw full-spectrum count.
//
// Anti-oscillation: when the count did not move since the last evaluation,
// the previous adjustment had no measurable effect, so the controller
// alternates which single knob it may touch. The emergency path for extreme
// saturation bypasses the alternation and drops both knobs with skipped
// steps.
type Controller struct {
	setting      Setting
	prevCount    uint16
	lastKind     adjustKind
	lastAdjustMs int64
}

// NewController starts from the given operating point.
func NewController(initial Setting) *Controller {
	return &Controller{setting: initial}
}

// Setting returns the controller's current operating point.
func (c *Controller) Setting() Setting { return c.setting }

// Observe evaluates one raw count against the current setting. nowMs is a
// monotonic millisecond clock. Within the adjustment interval the sample is
// accepted unconditionally; the controller state is untouched.
func (c *Controller) Observe(count uint16, nowMs int64) Decision {
	if nowMs-c.lastAdjustMs < adjustIntervalMs {
		return Decision{Setting: c.setting}
	}

	gainOK, integOK := true, true
	if count == c.prevCount {
		if c.lastKind == adjustGain {
			c.lastKind = adjustIntegration
		} else {
			c.lastKind = adjustGain
		}
		gainOK = c.lastKind == adjustGain
		integOK = !gainOK
	} else {
		c.lastKind = adjustBoth
	}
	c.prevCount = count

	next := c.setting
	switch {
	case count >= extremeThreshold:
		next.Gain = gainDownTwo(next.Gain)
		next.Integration = integrationCut(next.Integration)

	case count > saturatedThreshold:
		// Parallel single-step reduction on whatever is eligible.
		if gainOK {
			next.Gain = gainDown(next.Gain)
		}
		if integOK && next.Integration > Integration100ms {
			next.Integration--
		}

	case count > highThreshold:
		// Prefer a shorter window; touch gain only when already minimal.
		if integOK && next.Integration > Integration100ms {
			next.Integration--
		} else if gainOK {
			next.Gain = gainDown(next.Gain)
		}

	case count < criticalThreshold:
		// Nearly dark: lengthen aggressively.
		if integOK && next.Integration < Integration600ms {
			next.Integration = integrationUpTwo(next.Integration)
		} else if gainOK {
			next.Gain = gainUp(next.Gain)
		}

	case count < lowThreshold:
		if integOK && next.Integration < Integration600ms {
			next.Integration++
		} else if gainOK {
			next.Gain = gainUp(next.Gain)
		}
	}

	// No-op suppression: a decision that lands on the current pair is not an
	// adjustment and does not reset the interval.
	if next == c.setting {
		return Decision{Setting: c.setting}
	}
	c.setting = next
	c.lastAdjustMs = nowMs
	return Decision{Changed: true, Setting: next}
}

func gainDown(g Gain) Gain {
	switch g {
	case GainMax:
		return GainHigh
	case GainHigh:
		return GainMed
	case GainMed:
		return GainLow
	}
	return GainLow
}

func gainUp(g Gain) Gain {
	switch g {
	case GainLow:
		return GainMed
	case GainMed:
		return GainHigh
	case GainHigh:
		return GainMax
	}
	return GainMax
}

// gainDownTwo skips the intermediate step on the way down.
func gainDownTwo(g Gain) Gain {
	switch g {
	case GainMax:
		return GainMed
	case GainHigh, GainMed:
		return GainLow
	}
	return GainLow
}

// integrationCut is the emergency shortening table: roughly half the window,
// clamped to the minimum.
func integrationCut(t IntegrationTime) IntegrationTime {
	switch t {
	case Integration600ms:
		return Integration300ms
	case Integration500ms:
		return Integration200ms
	}
	return Integration100ms
}

// integrationUpTwo lengthens by two steps, clamped to the maximum.
func integrationUpTwo(t IntegrationTime) IntegrationTime {
	return IntegrationTime(mathx.Clamp(int(t)+2, int(Integration100ms), int(Integration600ms)))
}
