// cmd/skywatch/main.go
//
// Companion CLI: tails an AMSKY01 serial console, logs the decoded
// telemetry and optionally forwards it to InfluxDB.
package main

import (
	"bufio"
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api/write"
	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

var (
	portName = flag.String("port", "", "serial port (empty picks the first port found)")
	baudRate = flag.Int("baud", 115200, "serial baud rate")
	station  = flag.String("station", "amsky01", "station tag attached to uploaded points")

	influxHost   = flag.String("influx", "", "InfluxDB URL (empty disables upload)")
	influxToken  = flag.String("influx-token", "", "InfluxDB token or user:pass")
	influxBucket = flag.String("influx-bucket", "sky", "InfluxDB bucket or db/retention")
	verbose      = flag.Bool("v", false, "debug logging")
)

func pickPort() (string, error) {
	if *portName != "" {
		return *portName, nil
	}
	ports, err := serial.GetPortsList()
	if err != nil {
		return "", err
	}
	if len(ports) == 0 {
		return "", os.ErrNotExist
	}
	return ports[0], nil
}

type uploader interface {
	upload(ctx context.Context, rec any, t time.Time)
}

type nopUploader struct{}

func (nopUploader) upload(context.Context, any, time.Time) {}

type influxUploader struct {
	write func(ctx context.Context, pt *write.Point) error
	tags  map[string]string
}

func (u *influxUploader) upload(ctx context.Context, rec any, t time.Time) {
	var (
		measure string
		fields  map[string]interface{}
	)
	switch v := rec.(type) {
	case ThermalParams:
		measure, fields = "thermal", map[string]interface{}{
			"vdd": v.Vdd, "ta": v.Ta,
		}
	case CloudRow:
		measure, fields = "cloud", map[string]interface{}{
			"tl": v.TL, "tr": v.TR, "bl": v.BL, "br": v.BR,
			"center": v.Center, "delta": v.Delta(),
		}
	case LightRow:
		measure, fields = "light", map[string]interface{}{
			"lux": v.Lux, "full": int64(v.Full), "ir": int64(v.IR),
			"gain": v.Gain, "integration_ms": int64(v.IntegrationMs),
		}
	case SQMRow:
		if !v.Valid() {
			return
		}
		measure, fields = "sqm", map[string]interface{}{
			"mpsas": v.MPSAS, "uncertainty": v.Uncertainty,
		}
	case HygroRow:
		measure, fields = "hygro", map[string]interface{}{
			"temperature": v.Temp, "humidity": v.Humidity,
		}
	default:
		return
	}

	// Influx rejects NaN field values; drop them instead of the point.
	for k, f := range fields {
		if x, ok := f.(float64); ok && x != x {
			delete(fields, k)
		}
	}
	if len(fields) == 0 {
		return
	}

	pt := influxdb2.NewPoint(measure, u.tags, fields, t)
	if err := u.write(ctx, pt); err != nil {
		log.WithError(err).Warn("influx write failed")
	}
}

func main() {
	flag.Parse()
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	name, err := pickPort()
	if err != nil {
		log.WithError(err).Fatal("no serial port")
	}
	port, err := serial.Open(name, &serial.Mode{BaudRate: *baudRate})
	if err != nil {
		log.WithError(err).WithField("port", name).Fatal("opening serial port failed")
	}
	defer port.Close()
	log.WithField("port", name).Info("listening")

	var up uploader = nopUploader{}
	if *influxHost != "" {
		client := influxdb2.NewClient(*influxHost, *influxToken)
		defer client.Close()
		writer := client.WriteAPIBlocking("", *influxBucket)
		up = &influxUploader{
			write: func(ctx context.Context, pt *write.Point) error {
				return writer.WritePoint(ctx, pt)
			},
			tags: map[string]string{"station": *station},
		}
		log.WithField("bucket", *influxBucket).Info("influx upload enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		port.Close()
	}()

	sc := bufio.NewScanner(port)
	for sc.Scan() {
		line := sc.Text()
		rec, err := parseLine(line)
		if err != nil {
			log.WithError(err).WithField("line", line).Warn("bad telemetry line")
			continue
		}
		if rec == nil {
			log.Debug(line)
			continue
		}

		switch v := rec.(type) {
		case ThermalParams:
			log.WithFields(log.Fields{"vdd": v.Vdd, "ta": v.Ta}).Info("thermal")
		case CloudRow:
			log.WithFields(log.Fields{
				"corners": (v.TL + v.TR + v.BL + v.BR) / 4,
				"center":  v.Center,
				"delta":   v.Delta(),
			}).Info("cloud")
		case LightRow:
			log.WithFields(log.Fields{
				"lux": v.Lux, "full": v.Full, "ir": v.IR,
				"gain": v.Gain, "integration_ms": v.IntegrationMs,
			}).Info("light")
		case SQMRow:
			if v.Valid() {
				log.WithFields(log.Fields{
					"mpsas": v.MPSAS, "uncertainty": v.Uncertainty,
				}).Info("sqm")
			} else {
				log.Debug("sqm invalid")
			}
		case HygroRow:
			log.WithFields(log.Fields{
				"temperature": v.Temp, "humidity": v.Humidity,
			}).Info("hygro")
		}

		up.upload(ctx, rec, time.Now())
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		log.WithError(err).Fatal("serial read failed")
	}
}
