package config

import (
	"context"
	"sync"

	"github.com/roman-dvorak/AMSKY01/bus"
	"github.com/roman-dvorak/AMSKY01/errcode"
)

const configPrefix = "config"

// Storage persists the raw configuration image (EEPROM on device, a file on
// a host).
type Storage interface {
	Load() ([]byte, error)
	Save([]byte) error
}

// MemStorage is an in-memory Storage, used in tests and as a fallback when
// no persistent backend exists.
type MemStorage struct {
	img []byte
}

func (m *MemStorage) Load() ([]byte, error) {
	if m.img == nil {
		return nil, errcode.New(errcode.NotReady, "config.load", "empty storage")
	}
	return m.img, nil
}

func (m *MemStorage) Save(img []byte) error {
	m.img = append([]byte(nil), img...)
	return nil
}

// Manager owns the working configuration and its persistence.
type Manager struct {
	mu    sync.Mutex
	cfg   DeviceConfig
	store Storage
}

func NewManager(store Storage) *Manager {
	return &Manager{cfg: Defaults(), store: store}
}

// Begin loads the stored configuration. An unreadable or invalid image
// falls back to defaults and writes them back, so the next boot is clean.
// The bool reports whether the stored image was used.
func (m *Manager) Begin() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	img, err := m.store.Load()
	if err == nil {
		if cfg, uerr := Unmarshal(img); uerr == nil {
			m.cfg = cfg
			return true, nil
		}
	}
	m.cfg = Defaults()
	return false, m.store.Save(m.cfg.Marshal())
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() DeviceConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Update applies fn to the working configuration. Persist with Save.
func (m *Manager) Update(fn func(*DeviceConfig)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.cfg)
}

// Save persists the working configuration.
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Save(m.cfg.Marshal())
}

// Reset restores defaults and persists them.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = Defaults()
	return m.store.Save(m.cfg.Marshal())
}

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

// Service publishes the working configuration on the bus as retained
// per-section documents, so services pick their section up on subscribe.
type Service struct {
	Manager *Manager
}

func NewService(m *Manager) *Service { return &Service{Manager: m} }

// Publish pushes every config section as a retained message.
func (s *Service) Publish(conn *bus.Connection) {
	c := s.Manager.Get()

	sections := map[string]map[string]any{
		"sqm": {
			"offset":      c.SQMOffset,
			"dark_cap":    c.SQMDarkCap,
			"offset_base": c.SQMOffsetBase,
			"magnitude":   c.SQMMagnitudeConst,
		},
		"cloud": {
			"threshold": c.CloudThreshold,
		},
		"alert": {
			"enabled":              c.AlertEnabled,
			"on_cloud":             c.AlertOnCloud,
			"cloud_temp_threshold": c.AlertCloudTempThreshold,
			"cloud_below":          c.AlertCloudBelow,
			"on_light":             c.AlertOnLight,
			"light_threshold":      c.AlertLightThreshold,
			"light_above":          c.AlertLightAbove,
		},
		"acquisition": {
			"interval_ms": c.MeasurementIntervalMs,
		},
		"device": {
			"label": c.DeviceLabel,
		},
	}
	for section, payload := range sections {
		conn.Publish(conn.NewMessage(bus.T(configPrefix, section), payload, true))
	}
}

// Start loads the configuration and publishes it.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	if _, err := s.Manager.Begin(); err != nil {
		return err
	}
	s.Publish(conn)
	return nil
}
