// Package history persists readings and the device's on-board
// measurement log to InfluxDB, so depletion can be charted over the
// full cylinder lifetime rather than just since the bridge started.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/joshp123/senso4s/internal/core"
	"github.com/joshp123/senso4s/senso4s"
)

// Config holds InfluxDB connection settings.
type Config struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// Sink writes history and reading points.
type Sink struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
}

func NewSink(cfg Config) (*Sink, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("influx url is required")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Sink{
		client: client,
		write:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}, nil
}

// Publish writes the current reading and any decoded history entries.
// History points use the device-derived timestamps, so re-writing the
// same log on every poll overwrites identical points instead of
// duplicating them.
func (s *Sink) Publish(ctx context.Context, entry core.Entry, dev *senso4s.Device) error {
	points := Points(entry, dev, time.Now())
	if len(points) == 0 {
		return nil
	}
	if err := s.write.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("write points: %w", err)
	}
	glog.V(1).Infof("wrote %d points for %s", len(points), entry.Address)
	return nil
}

func (s *Sink) Close() {
	s.client.Close()
}

// Points builds the Influx points for a device update.
func Points(entry core.Entry, dev *senso4s.Device, now time.Time) []*write.Point {
	tags := map[string]string{
		"address": entry.Address,
		"model":   string(dev.Model),
	}
	if entry.Area != "" {
		tags["area"] = entry.Area
	}

	var points []*write.Point

	fields := map[string]any{}
	addField(fields, "mass_percent", dev.Reading.MassPercent)
	addField(fields, "mass_kg", dev.Reading.MassKg)
	addField(fields, "prediction_minutes", dev.Reading.PredictionMinutes)
	addField(fields, "battery_percent", dev.Reading.BatteryPercent)
	addField(fields, "rssi_dbm", dev.Reading.RSSIDbm)
	if dev.Reading.Status != "" {
		fields["status"] = string(dev.Reading.Status)
	}
	if len(fields) > 0 {
		points = append(points, influxdb2.NewPoint("senso4s_reading", tags, fields, now))
	}

	for _, h := range dev.History {
		if h.Time.IsZero() {
			// Without a setup time the log cannot be anchored.
			continue
		}
		points = append(points, influxdb2.NewPoint("senso4s_history", tags, map[string]any{
			"mass_kg":          h.MassKg,
			"duration_minutes": h.Duration.Minutes(),
		}, h.Time))
	}

	return points
}

func addField(fields map[string]any, key string, value *float64) {
	if value == nil {
		return
	}
	fields[key] = *value
}
