package senso4s

import (
	"fmt"
	"strings"
	"time"
)

// Model identifies the Senso4s hardware variant.
type Model string

const (
	ModelBasic Model = "BASIC"
	ModelPlus  Model = "PLUS"
)

// Status is the device's measurement status.
type Status string

const (
	StatusOK            Status = "ok"
	StatusBatteryEmpty  Status = "battery_empty"
	StatusErrorStarting Status = "error_starting"
	StatusNotConfigured Status = "not_configured"
)

// Warning flags reported by the PLUS model. The BASIC model never
// reports warnings.
type Warning string

const (
	WarningMovement    Warning = "movement"
	WarningInclination Warning = "inclination"
	WarningTemperature Warning = "temperature"
)

// Reading holds the measurement values decoded from a device. Nil
// pointers mean the device did not report the value (yet).
type Reading struct {
	MassPercent        *float64   `json:"mass_percent"`
	MassKg             *float64   `json:"mass_kg"`
	PredictionMinutes  *float64   `json:"prediction_minutes"`
	BatteryPercent     *float64   `json:"battery_percent"`
	RSSIDbm            *float64   `json:"rssi_dbm"`
	Status             Status     `json:"status"`
	Warnings           []Warning  `json:"warnings"`
	CylinderCapacityKg *float64   `json:"cylinder_capacity_kg"`
	CylinderWeightKg   *float64   `json:"cylinder_weight_kg"`
	SetupTime          *time.Time `json:"setup_time"`
	LastMeasurement    *time.Time `json:"last_measurement"`
}

// WarningsString renders the warning flags for display ("none" when
// clear), in the fixed movement/inclination/temperature order.
func (r Reading) WarningsString() string {
	if len(r.Warnings) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		parts = append(parts, string(w))
	}
	return strings.Join(parts, ",")
}

// HistoryEntry is one decoded point from the device's on-board log.
type HistoryEntry struct {
	MassKg   float64       `json:"mass_kg"`
	Duration time.Duration `json:"duration"`
	// Time is the start of the interval, derived from the setup time
	// and the cumulative offsets of the preceding entries. Zero when
	// the device has no setup time.
	Time time.Time `json:"time"`
}

// Device is the decoded state of one Senso4s scale.
type Device struct {
	Manufacturer string         `json:"manufacturer"`
	Model        Model          `json:"model"`
	Name         string         `json:"name"`
	Address      string         `json:"address"`
	Identifier   string         `json:"identifier"`
	Reading      Reading        `json:"reading"`
	History      []HistoryEntry `json:"history,omitempty"`
}

// FriendlyName generates a display name for the device. The advertised
// local name is just the MAC with dashes, so it adds nothing here.
func (d *Device) FriendlyName() string {
	return fmt.Sprintf("%s %s (%s)", d.Manufacturer, d.Model, d.Address)
}

// Advertisement is a vendor-neutral view of a received BLE
// advertisement, with manufacturer data keyed by company identifier.
type Advertisement struct {
	Address          string
	Name             string
	RSSI             int
	ManufacturerData map[uint16][]byte
}

func float64p(v float64) *float64 { return &v }
