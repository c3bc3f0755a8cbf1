// Package acquisition runs the measurement loop: each tick it polls the
// thermal array for a pending frame and samples the light sensor, then
// publishes readings on the bus. Both sensors are single-owner state; all
// work happens on the one loop goroutine.
package acquisition

import (
	"context"
	"math"
	"time"

	"github.com/roman-dvorak/AMSKY01/bus"
	"github.com/roman-dvorak/AMSKY01/drivers/aht20"
	"github.com/roman-dvorak/AMSKY01/drivers/mlx90641"
	"github.com/roman-dvorak/AMSKY01/drivers/tsl2591"
	"github.com/roman-dvorak/AMSKY01/errcode"
	"github.com/roman-dvorak/AMSKY01/services/config"
	"github.com/roman-dvorak/AMSKY01/x/timex"
)

var (
	topicThermal = bus.Topic{"sky", "thermal"}
	topicLight   = bus.Topic{"sky", "light"}
	topicCloud   = bus.Topic{"sky", "cloud"}
	topicHygro   = bus.Topic{"sky", "hygro"}
	topicState   = bus.Topic{"acquisition", "state"}
	topicCfgAcq  = bus.Topic{"config", "acquisition"}
)

// Service owns both sensor instances and the controller state between ticks.
type Service struct {
	Thermal *mlx90641.Device
	Light   *tsl2591.Device
	Hygro   *aht20.Device // optional ambient sensor
	Config  *config.Manager

	ctrl *tsl2591.Controller
	avg  tsl2591.MovingAverage

	nowMs func() int64 // injectable clock
}

func New(thermal *mlx90641.Device, light *tsl2591.Device, cfg *config.Manager) *Service {
	return &Service{
		Thermal: thermal,
		Light:   light,
		Config:  cfg,
		ctrl:    tsl2591.NewController(tsl2591.DefaultSetting()),
		nowMs:   timex.NowMs,
	}
}

// Start configures both sensors and launches the loop.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	if err := s.Thermal.Configure(); err != nil {
		s.publishState(conn, "error", "thermal_configure_failed", err)
		return err
	}
	if err := s.Light.Configure(s.ctrl.Setting()); err != nil {
		s.publishState(conn, "error", "light_configure_failed", err)
		return err
	}
	if s.Hygro != nil {
		// The head works without the ambient sensor; readings go out as NaN.
		if err := s.Hygro.Configure(); err != nil {
			s.publishState(conn, "degraded", "hygro_configure_failed", err)
		}
	}
	s.publishState(conn, "up", "running", nil)
	go s.loop(ctx, conn)
	return nil
}

func (s *Service) loop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicCfgAcq)
	defer conn.Unsubscribe(cfgSub)

	interval := time.Duration(s.Config.Get().MeasurementIntervalMs) * time.Millisecond
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.publishState(conn, "idle", "stopped", nil)
			return
		case <-tick.C:
			s.thermalTick(conn)
			s.lightTick(conn)
			if s.Hygro != nil {
				s.hygroTick(conn)
			}
		case msg := <-cfgSub.Channel():
			if m, ok := msg.Payload.(map[string]any); ok {
				if iv, ok := m["interval_ms"]; ok {
					if ms, ok := toMs(iv); ok && ms > 0 {
						tick.Reset(time.Duration(ms) * time.Millisecond)
					}
				}
			}
		}
	}
}

// thermalTick polls for a pending frame. Not-ready is the common idle case;
// anything else degrades the service state for this tick.
func (s *Service) thermalTick(conn *bus.Connection) {
	frame, err := s.Thermal.ReadFrame()
	if err != nil {
		if !errcode.Is(err, errcode.NotReady) {
			s.publishState(conn, "degraded", "thermal_read_failed", err)
		}
		return
	}
	now := s.nowMs()
	regions := mlx90641.AggregateRegions(frame)
	conn.Publish(conn.NewMessage(topicThermal, ThermalReading{
		Vdd:     frame.Vdd,
		Ta:      frame.Ta,
		Regions: regions,
		TsMs:    now,
	}, false))

	// Cloud decision: a warm zenith relative to the horizon means cover.
	delta := regions.CloudDelta()
	if math.IsNaN(delta) {
		return
	}
	cfg := s.Config.Get()
	conn.Publish(conn.NewMessage(topicCloud, CloudEvent{
		Delta:  delta,
		Cloudy: delta < float64(cfg.CloudThreshold),
		TsMs:   now,
	}, false))
}

// lightTick samples the sensor and runs the range controller. When the
// controller reconfigures the sensor the sample is discarded: it integrated
// under the old settings.
func (s *Service) lightTick(conn *bus.Connection) {
	full, ir, err := s.Light.FullLuminosity()
	if err != nil {
		s.publishState(conn, "degraded", "light_read_failed", err)
		return
	}

	decision := s.ctrl.Observe(full, s.nowMs())
	if decision.Changed {
		if err := s.Light.Apply(decision.Setting); err != nil {
			s.publishState(conn, "degraded", "light_apply_failed", err)
		}
		return
	}

	s.avg.Add(full, ir)
	fullAvg, irAvg := s.avg.Mean()
	setting := s.ctrl.Setting()
	cfg := s.Config.Get()

	reading := LightReading{
		Full:          full,
		IR:            ir,
		FullAvg:       fullAvg,
		IRAvg:         irAvg,
		Lux:           tsl2591.Lux(fullAvg, irAvg, setting),
		GainLabel:     setting.Gain.String(),
		IntegrationMs: setting.Integration.Milliseconds(),
		TsMs:          s.nowMs(),
	}

	k := tsl2591.DefaultSQMConstants()
	k.OffsetBase = float64(cfg.SQMOffsetBase)
	k.MagnitudeConst = float64(cfg.SQMMagnitudeConst)
	if sqm, err := tsl2591.CalculateSQM(full, ir, setting, k); err == nil {
		reading.MPSAS = sqm.MPSAS
		reading.SQMUncert = sqm.Uncertainty
		reading.SQMValid = true
	}

	conn.Publish(conn.NewMessage(topicLight, reading, false))
}

// hygroTick samples the ambient sensor. A failed read still publishes, as a
// NaN pair, so downstream rows stay aligned.
func (s *Service) hygroTick(conn *bus.Connection) {
	reading := HygroReading{Temp: math.NaN(), Humidity: math.NaN(), TsMs: s.nowMs()}
	sample, err := s.Hygro.Read()
	if err != nil {
		s.publishState(conn, "degraded", "hygro_read_failed", err)
	} else {
		reading.Temp = sample.Temp
		reading.Humidity = sample.Humidity
	}
	conn.Publish(conn.NewMessage(topicHygro, reading, false))
}

func (s *Service) publishState(conn *bus.Connection, level, status string, err error) {
	payload := map[string]any{
		"level":  level,
		"status": status,
		"ts_ms":  s.nowMs(),
	}
	if err != nil {
		payload["error"] = err.Error()
		payload["code"] = string(errcode.Of(err))
	}
	conn.Publish(conn.NewMessage(topicState, payload, true))
}

func toMs(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case uint16:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}
