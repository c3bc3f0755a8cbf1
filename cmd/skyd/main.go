// cmd/skyd/main.go
//
// Host daemon for the AMSKY01 sky sensor head: opens the I2C bus, runs the
// acquisition loop and serves the line console on stdio. Intended for a
// Linux SBC with the sensor head on the native I2C pins.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/host"

	"github.com/roman-dvorak/AMSKY01/bus"
	"github.com/roman-dvorak/AMSKY01/drivers/aht20"
	"github.com/roman-dvorak/AMSKY01/drivers/mlx90641"
	"github.com/roman-dvorak/AMSKY01/drivers/tsl2591"
	"github.com/roman-dvorak/AMSKY01/services/acquisition"
	"github.com/roman-dvorak/AMSKY01/services/config"
	"github.com/roman-dvorak/AMSKY01/services/console"
	"github.com/roman-dvorak/AMSKY01/services/heartbeat"
)

const version = "0.2.0"

var (
	i2cName  = flag.String("i2c", "", "I2C bus name or number (empty selects the first bus)")
	cfgPath  = flag.String("config", "amsky01.cfg", "path of the persisted configuration image")
	beatSecs = flag.Int("heartbeat", 10, "heartbeat interval in seconds")
	verbose  = flag.Bool("v", false, "debug logging")
)

// fileStorage persists the config image as a plain file, standing in for the
// EEPROM the firmware build writes.
type fileStorage struct {
	path string
}

func (f *fileStorage) Load() ([]byte, error) { return os.ReadFile(f.path) }

func (f *fileStorage) Save(img []byte) error { return os.WriteFile(f.path, img, 0o600) }

type stdio struct {
	io.Reader
	io.Writer
}

func main() {
	flag.Parse()
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	if _, err := host.Init(); err != nil {
		log.WithError(err).Fatal("host init failed")
	}
	i2cBus, err := i2creg.Open(*i2cName)
	if err != nil {
		log.WithError(err).Fatal("opening I2C bus failed")
	}
	defer i2cBus.Close()
	log.WithField("bus", i2cBus.String()).Info("I2C bus open")

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bus.NewBus(16)

	mgr := config.NewManager(&fileStorage{path: *cfgPath})
	cfgSvc := config.NewService(mgr)
	if err := cfgSvc.Start(ctx, b.NewConnection("config")); err != nil {
		log.WithError(err).Fatal("config service failed to start")
	}
	log.WithField("label", mgr.Get().DeviceLabel).Info("configuration loaded")

	thermal := mlx90641.New(i2cBus)
	light := tsl2591.New(i2cBus)
	hygro := aht20.New(i2cBus)
	acq := acquisition.New(&thermal, &light, mgr)
	acq.Hygro = &hygro
	if err := acq.Start(ctx, b.NewConnection("acquisition")); err != nil {
		log.WithError(err).Fatal("acquisition failed to start")
	}

	cons := &console.Service{
		RW:          stdio{os.Stdin, os.Stdout},
		Config:      mgr,
		CfgSvc:      cfgSvc,
		Version:     version,
		Calibration: thermal.Calibration,
	}
	if err := cons.Start(ctx, b.NewConnection("console")); err != nil {
		log.WithError(err).Fatal("console failed to start")
	}

	beat := &heartbeat.Service{Interval: time.Duration(*beatSecs) * time.Second}
	if err := beat.Start(ctx, b.NewConnection("heartbeat")); err != nil {
		log.WithError(err).Fatal("heartbeat failed to start")
	}

	log.Info("skyd running")
	<-ctx.Done()
	log.Info("shutting down")
}
