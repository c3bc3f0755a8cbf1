// Package heartbeat publishes a periodic liveness beacon with the device
// label and uptime, so host tooling can detect a hung device.
package heartbeat

import (
	"context"
	"time"

	"github.com/roman-dvorak/AMSKY01/bus"
	"github.com/roman-dvorak/AMSKY01/x/timex"
)

var (
	topicBeat      = bus.Topic{"heartbeat"}
	topicCfgDevice = bus.Topic{"config", "device"}
)

const defaultInterval = 10 * time.Second

type Service struct {
	Interval time.Duration // zero means defaultInterval

	label   string
	startMs int64
	nowMs   func() int64
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection, cfgSub *bus.Subscription) {
	defer conn.Unsubscribe(cfgSub)

	interval := s.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			s.publish(conn)
		case msg := <-cfgSub.Channel():
			s.applyConfig(msg)
		}
	}
}

func (s *Service) applyConfig(msg *bus.Message) {
	if m, ok := msg.Payload.(map[string]any); ok {
		if label, ok := m["label"].(string); ok {
			s.label = label
		}
	}
}

// publish emits one retained beacon, so a late subscriber sees the last one.
func (s *Service) publish(conn *bus.Connection) {
	conn.Publish(conn.NewMessage(topicBeat, map[string]any{
		"label":    s.label,
		"uptime_s": (s.nowMs() - s.startMs) / 1000,
		"ts_ms":    s.nowMs(),
	}, true))
}

// Start the heartbeat service. A retained device label is picked up before
// the boot beacon so the first beacon is already named.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	if s.nowMs == nil {
		s.nowMs = timex.NowMs
	}
	s.startMs = s.nowMs()

	cfgSub := conn.Subscribe(topicCfgDevice)
	select {
	case msg := <-cfgSub.Channel():
		s.applyConfig(msg)
	default:
	}

	s.publish(conn)
	go s.serviceLoop(ctx, conn, cfgSub)
	return nil
}
