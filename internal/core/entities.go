package core

import (
	"time"

	"github.com/joshp123/senso4s/senso4s"
)

// EntityDescription describes one published measurement of a
// configured device, including the home automation metadata that
// makes it independently historizable.
type EntityDescription struct {
	Key         string
	Name        string
	DeviceClass string
	Unit        string
	StateClass  string
	Icon        string
	Diagnostic  bool

	// Value extracts the entity state from a reading. Nil result
	// means unknown.
	Value func(senso4s.Reading) any
}

// EntityDescriptions is the fixed set of entities every configured
// device exposes. Exactly ten.
var EntityDescriptions = []EntityDescription{
	{
		Key:         "prediction_minutes",
		Name:        "Predicted time left",
		DeviceClass: "duration",
		Unit:        "min",
		StateClass:  "measurement",
		Icon:        "mdi:calendar-clock",
		Value:       func(r senso4s.Reading) any { return floatValue(r.PredictionMinutes) },
	},
	{
		Key:         "mass_kg",
		Name:        "Remaining gas",
		DeviceClass: "weight",
		Unit:        "kg",
		StateClass:  "measurement",
		Icon:        "mdi:gas-cylinder",
		Value:       func(r senso4s.Reading) any { return floatValue(r.MassKg) },
	},
	{
		Key:        "mass_percent",
		Name:       "Remaining gas %",
		Unit:       "%",
		StateClass: "measurement",
		Icon:       "mdi:gas-cylinder",
		Value:      func(r senso4s.Reading) any { return floatValue(r.MassPercent) },
	},
	{
		Key:         "battery_percent",
		Name:        "Battery level",
		DeviceClass: "battery",
		Unit:        "%",
		StateClass:  "measurement",
		Diagnostic:  true,
		Value:       func(r senso4s.Reading) any { return floatValue(r.BatteryPercent) },
	},
	{
		Key:         "rssi_dbm",
		Name:        "RSSI",
		DeviceClass: "signal_strength",
		Unit:        "dBm",
		StateClass:  "measurement",
		Icon:        "mdi:signal-variant",
		Diagnostic:  true,
		Value:       func(r senso4s.Reading) any { return floatValue(r.RSSIDbm) },
	},
	{
		Key:        "warnings",
		Name:       "Warnings",
		Icon:       "mdi:alert-circle-outline",
		Diagnostic: true,
		Value:      func(r senso4s.Reading) any { return r.WarningsString() },
	},
	{
		Key:         "status",
		Name:        "Status",
		DeviceClass: "enum",
		Icon:        "mdi:check-circle-outline",
		Diagnostic:  true,
		Value: func(r senso4s.Reading) any {
			if r.Status == "" {
				return nil
			}
			return string(r.Status)
		},
	},
	{
		Key:         "cylinder_capacity_kg",
		Name:        "Cylinder Capacity",
		DeviceClass: "weight",
		Unit:        "kg",
		StateClass:  "measurement",
		Icon:        "mdi:gas-cylinder",
		Diagnostic:  true,
		Value:       func(r senso4s.Reading) any { return floatValue(r.CylinderCapacityKg) },
	},
	{
		Key:         "cylinder_weight_kg",
		Name:        "Cylinder Weight",
		DeviceClass: "weight",
		Unit:        "kg",
		StateClass:  "measurement",
		Icon:        "mdi:gas-cylinder",
		Diagnostic:  true,
		Value:       func(r senso4s.Reading) any { return floatValue(r.CylinderWeightKg) },
	},
	{
		Key:         "setup_time",
		Name:        "Setup Time",
		DeviceClass: "timestamp",
		Icon:        "mdi:calendar-clock",
		Diagnostic:  true,
		Value:       func(r senso4s.Reading) any { return timeValue(r.SetupTime) },
	},
}

// EntityStates maps entity keys to current values for a reading.
// Unknown values are present as nils so callers see the full entity
// set.
func EntityStates(r senso4s.Reading) map[string]any {
	states := make(map[string]any, len(EntityDescriptions))
	for _, desc := range EntityDescriptions {
		states[desc.Key] = desc.Value(r)
	}
	return states
}

func floatValue(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func timeValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}
