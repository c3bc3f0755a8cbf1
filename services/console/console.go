// Package console is the serial front end: it renders bus readings as
// $-prefixed CSV telemetry lines and executes line-based commands
// (config inspection and editing, calibration dump, status).
//
// Presentation rules live here and nowhere else: non-finite or invalid
// values are rendered as the legacy "-999" sentinel, comment output is
// prefixed "# ".
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"sync"

	"github.com/google/shlex"

	"github.com/roman-dvorak/AMSKY01/bus"
	"github.com/roman-dvorak/AMSKY01/drivers/mlx90641"
	"github.com/roman-dvorak/AMSKY01/services/acquisition"
	"github.com/roman-dvorak/AMSKY01/services/config"
	"github.com/roman-dvorak/AMSKY01/x/timex"
)

const sentinel = "-999"

// Service bridges one io.ReadWriter (UART, pty, stdio) to the bus.
type Service struct {
	RW      io.ReadWriter
	Config  *config.Manager
	CfgSvc  *config.Service // republishes sections after edits; may be nil
	Version string

	// Calibration is an optional accessor for the `dump cal` command.
	Calibration func() *mlx90641.Calibration

	mu      sync.Mutex
	conn    *bus.Connection
	startMs int64
}

// Start launches the telemetry and command loops.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	s.conn = conn
	s.startMs = timex.NowMs()
	go s.telemetryLoop(ctx, conn)
	go s.commandLoop(ctx)
	return nil
}

// -----------------------------------------------------------------------------
// Telemetry
// -----------------------------------------------------------------------------

func (s *Service) telemetryLoop(ctx context.Context, conn *bus.Connection) {
	sub := conn.Subscribe(bus.Topic{"sky", bus.WildcardOne})
	defer conn.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			s.render(msg.Payload)
		}
	}
}

// render writes the CSV line(s) for one reading.
func (s *Service) render(payload any) {
	switch v := payload.(type) {
	case acquisition.ThermalReading:
		s.printf("$thr_parameters,%s,%s\n", fmtF(v.Vdd, 3), fmtF(v.Ta, 3))
		s.printf("$cloud,%s,%s,%s,%s,%s\n",
			fmtF(v.Regions.TL, 2), fmtF(v.Regions.TR, 2),
			fmtF(v.Regions.BL, 2), fmtF(v.Regions.BR, 2),
			fmtF(v.Regions.Center, 2))
	case acquisition.HygroReading:
		s.printf("$hygro,%s,%s\n", fmtF(v.Temp, 2), fmtF(v.Humidity, 2))
	case acquisition.LightReading:
		s.printf("$light,%s,%d,%d,%s,%d\n",
			fmtF(v.Lux, 2), v.FullAvg, v.IRAvg, v.GainLabel, v.IntegrationMs)
		if v.SQMValid {
			s.printf("$sqm,%s,%s\n", fmtF(v.MPSAS, 2), fmtF(v.SQMUncert, 4))
		} else {
			s.printf("$sqm,%s,%s\n", sentinel, sentinel)
		}
	}
}

// fmtF renders a float with fixed precision, mapping non-finite values to
// the sentinel.
func fmtF(v float64, prec int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sentinel
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}

// -----------------------------------------------------------------------------
// Commands
// -----------------------------------------------------------------------------

func (s *Service) commandLoop(ctx context.Context) {
	sc := bufio.NewScanner(s.RW)
	for sc.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.handleLine(sc.Text())
	}
}

func (s *Service) handleLine(line string) {
	args, err := shlex.Split(line)
	if err != nil {
		s.printf("# error: %v\n", err)
		return
	}
	if len(args) == 0 {
		return
	}
	switch args[0] {
	case "help":
		s.printf("# commands: help version status config dump\n")
		s.printf("# config get <field> | set <field> <value> | show | save | reset\n")
		s.printf("# dump cal\n")
	case "version":
		s.printf("# %s %s\n", s.Config.Get().DeviceLabel, s.Version)
	case "status":
		s.printf("# label=%s uptime_s=%d\n",
			s.Config.Get().DeviceLabel, (timex.NowMs()-s.startMs)/1000)
	case "config":
		s.handleConfig(args[1:])
	case "dump":
		if len(args) == 2 && args[1] == "cal" {
			s.dumpCalibration()
		} else {
			s.printf("# usage: dump cal\n")
		}
	default:
		s.printf("# unknown command: %s\n", args[0])
	}
}

func (s *Service) handleConfig(args []string) {
	switch {
	case len(args) == 2 && args[0] == "get":
		if v, ok := getField(s.Config.Get(), args[1]); ok {
			s.printf("# %s=%s\n", args[1], v)
		} else {
			s.printf("# unknown field: %s\n", args[1])
		}
	case len(args) == 3 && args[0] == "set":
		var serr error
		s.Config.Update(func(c *config.DeviceConfig) {
			serr = setField(c, args[1], args[2])
		})
		if serr != nil {
			s.printf("# error: %v\n", serr)
			return
		}
		s.printf("# %s=%s\n", args[1], mustGet(s.Config.Get(), args[1]))
		s.republish()
	case len(args) == 1 && args[0] == "show":
		for _, name := range fieldNames {
			s.printf("# %s=%s\n", name, mustGet(s.Config.Get(), name))
		}
	case len(args) == 1 && args[0] == "save":
		if err := s.Config.Save(); err != nil {
			s.printf("# save failed: %v\n", err)
		} else {
			s.printf("# config saved\n")
		}
	case len(args) == 1 && args[0] == "reset":
		if err := s.Config.Reset(); err != nil {
			s.printf("# reset failed: %v\n", err)
		} else {
			s.printf("# config reset to defaults\n")
			s.republish()
		}
	default:
		s.printf("# usage: config get|set|show|save|reset\n")
	}
}

// republish pushes edited config sections to the services that consume them.
func (s *Service) republish() {
	if s.CfgSvc != nil && s.conn != nil {
		s.CfgSvc.Publish(s.conn)
	}
}

func (s *Service) dumpCalibration() {
	if s.Calibration == nil || s.Calibration() == nil {
		s.printf("# no calibration available\n")
		return
	}
	c := s.Calibration()
	s.printf("# vdd25=%s kvdd=%s ptat25=%s ktptat=%s kvptat=%s alphaptat=%s\n",
		fmtF(c.Vdd25, 1), fmtF(c.KVdd, 1), fmtF(c.PTAT25, 1),
		fmtF(c.KtPTAT, 4), fmtF(c.KvPTAT, 6), fmtF(c.AlphaPTAT, 9))
}

// -----------------------------------------------------------------------------
// Config field table
// -----------------------------------------------------------------------------

var fieldNames = []string{
	"sqm_offset", "sqm_dark_cap", "sqm_offset_base", "sqm_magnitude_const",
	"cloud_threshold",
	"alert_enabled", "alert_on_cloud", "alert_cloud_temp_threshold",
	"alert_cloud_below", "alert_on_light", "alert_light_threshold",
	"alert_light_above",
	"measurement_interval", "device_label",
}

func getField(c config.DeviceConfig, name string) (string, bool) {
	switch name {
	case "sqm_offset":
		return fmtF(float64(c.SQMOffset), 4), true
	case "sqm_dark_cap":
		return fmtF(float64(c.SQMDarkCap), 2), true
	case "sqm_offset_base":
		return fmtF(float64(c.SQMOffsetBase), 4), true
	case "sqm_magnitude_const":
		return fmtF(float64(c.SQMMagnitudeConst), 4), true
	case "cloud_threshold":
		return fmtF(float64(c.CloudThreshold), 2), true
	case "alert_enabled":
		return strconv.FormatBool(c.AlertEnabled), true
	case "alert_on_cloud":
		return strconv.FormatBool(c.AlertOnCloud), true
	case "alert_cloud_temp_threshold":
		return fmtF(float64(c.AlertCloudTempThreshold), 2), true
	case "alert_cloud_below":
		return strconv.FormatBool(c.AlertCloudBelow), true
	case "alert_on_light":
		return strconv.FormatBool(c.AlertOnLight), true
	case "alert_light_threshold":
		return fmtF(float64(c.AlertLightThreshold), 2), true
	case "alert_light_above":
		return strconv.FormatBool(c.AlertLightAbove), true
	case "measurement_interval":
		return strconv.Itoa(int(c.MeasurementIntervalMs)), true
	case "device_label":
		return c.DeviceLabel, true
	}
	return "", false
}

func mustGet(c config.DeviceConfig, name string) string {
	v, _ := getField(c, name)
	return v
}

func setField(c *config.DeviceConfig, name, val string) error {
	f32 := func(dst *float32) error {
		v, err := strconv.ParseFloat(val, 32)
		if err != nil {
			return fmt.Errorf("not a number: %q", val)
		}
		*dst = float32(v)
		return nil
	}
	b := func(dst *bool) error {
		v, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("not a boolean: %q", val)
		}
		*dst = v
		return nil
	}

	switch name {
	case "sqm_offset":
		return f32(&c.SQMOffset)
	case "sqm_dark_cap":
		return f32(&c.SQMDarkCap)
	case "sqm_offset_base":
		return f32(&c.SQMOffsetBase)
	case "sqm_magnitude_const":
		return f32(&c.SQMMagnitudeConst)
	case "cloud_threshold":
		return f32(&c.CloudThreshold)
	case "alert_enabled":
		return b(&c.AlertEnabled)
	case "alert_on_cloud":
		return b(&c.AlertOnCloud)
	case "alert_cloud_temp_threshold":
		return f32(&c.AlertCloudTempThreshold)
	case "alert_cloud_below":
		return b(&c.AlertCloudBelow)
	case "alert_on_light":
		return b(&c.AlertOnLight)
	case "alert_light_threshold":
		return f32(&c.AlertLightThreshold)
	case "alert_light_above":
		return b(&c.AlertLightAbove)
	case "measurement_interval":
		v, err := strconv.ParseUint(val, 10, 16)
		if err != nil || v == 0 {
			return fmt.Errorf("bad interval: %q", val)
		}
		c.MeasurementIntervalMs = uint16(v)
		return nil
	case "device_label":
		if len(val) > 31 {
			return fmt.Errorf("label too long (max 31 bytes)")
		}
		c.DeviceLabel = val
		return nil
	}
	return fmt.Errorf("unknown field: %q", name)
}

// -----------------------------------------------------------------------------
// Output
// -----------------------------------------------------------------------------

func (s *Service) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.RW, format, args...)
}
