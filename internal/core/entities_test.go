package core

import (
	"testing"
	"time"

	"github.com/joshp123/senso4s/senso4s"
)

func TestEntityDescriptionsCount(t *testing.T) {
	// Each configured device exposes exactly ten entities.
	if len(EntityDescriptions) != 10 {
		t.Fatalf("len(EntityDescriptions) = %d, want 10", len(EntityDescriptions))
	}

	seen := make(map[string]bool)
	for _, desc := range EntityDescriptions {
		if seen[desc.Key] {
			t.Errorf("duplicate entity key %q", desc.Key)
		}
		seen[desc.Key] = true
		if desc.Value == nil {
			t.Errorf("entity %q has no value extractor", desc.Key)
		}
	}
}

func TestEntityStates(t *testing.T) {
	mass := 42.0
	battery := 81.0
	setup := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)
	reading := senso4s.Reading{
		MassPercent:    &mass,
		BatteryPercent: &battery,
		Status:         senso4s.StatusOK,
		Warnings:       []senso4s.Warning{senso4s.WarningMovement},
		SetupTime:      &setup,
	}

	states := EntityStates(reading)
	if len(states) != len(EntityDescriptions) {
		t.Fatalf("states = %d entries, want %d", len(states), len(EntityDescriptions))
	}

	if got := states["mass_percent"]; got != 42.0 {
		t.Errorf("mass_percent = %v, want 42", got)
	}
	if got := states["battery_percent"]; got != 81.0 {
		t.Errorf("battery_percent = %v, want 81", got)
	}
	if got := states["status"]; got != "ok" {
		t.Errorf("status = %v, want ok", got)
	}
	if got := states["warnings"]; got != "movement" {
		t.Errorf("warnings = %v, want movement", got)
	}
	if got := states["setup_time"]; got != "2024-06-01T12:30:00Z" {
		t.Errorf("setup_time = %v", got)
	}
	// Values the device never reported surface as nil, not zero.
	if got := states["mass_kg"]; got != nil {
		t.Errorf("mass_kg = %v, want nil", got)
	}
	if got := states["prediction_minutes"]; got != nil {
		t.Errorf("prediction_minutes = %v, want nil", got)
	}
}
