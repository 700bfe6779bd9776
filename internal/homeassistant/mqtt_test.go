package homeassistant

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/joshp123/senso4s/internal/core"
	"github.com/joshp123/senso4s/senso4s"
)

func testDevice() *senso4s.Device {
	return &senso4s.Device{
		Manufacturer: "Senso4s",
		Model:        senso4s.ModelPlus,
		Address:      "DE:AD:BE:EF:00:11",
		Identifier:   "deadbeef0011",
	}
}

func TestDiscoveryPayloads(t *testing.T) {
	entry := core.Entry{Address: "DE:AD:BE:EF:00:11", Area: "kitchen"}
	payloads, err := DiscoveryPayloads("homeassistant", "senso4s", entry, testDevice())
	if err != nil {
		t.Fatalf("DiscoveryPayloads error: %v", err)
	}

	if len(payloads) != len(core.EntityDescriptions) {
		t.Fatalf("payloads = %d, want %d", len(payloads), len(core.EntityDescriptions))
	}

	topic := "homeassistant/sensor/senso4s_deadbeef0011/mass_percent/config"
	payload, ok := payloads[topic]
	if !ok {
		keys := make([]string, 0, len(payloads))
		for k := range payloads {
			keys = append(keys, k)
		}
		t.Fatalf("missing topic %s in %v", topic, keys)
	}

	var cfg entityConfig
	if err := json.Unmarshal(payload, &cfg); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if cfg.UniqueID != "deadbeef0011_mass_percent" {
		t.Errorf("unique_id = %s", cfg.UniqueID)
	}
	if cfg.StateTopic != "senso4s/deadbeef0011/state" {
		t.Errorf("state_topic = %s", cfg.StateTopic)
	}
	if cfg.ValueTemplate != "{{ value_json.mass_percent }}" {
		t.Errorf("value_template = %s", cfg.ValueTemplate)
	}
	if cfg.Device.Manufacturer != "Senso4s" || cfg.Device.Model != "PLUS" {
		t.Errorf("device block = %+v", cfg.Device)
	}
	if cfg.Device.SuggestedArea != "kitchen" {
		t.Errorf("suggested_area = %s", cfg.Device.SuggestedArea)
	}
	if len(cfg.Device.Connections) != 1 || cfg.Device.Connections[0][1] != "DE:AD:BE:EF:00:11" {
		t.Errorf("connections = %v", cfg.Device.Connections)
	}
}

func TestDiscoveryPayloadsDiagnosticCategory(t *testing.T) {
	payloads, err := DiscoveryPayloads("homeassistant", "senso4s", core.Entry{Address: "DE:AD:BE:EF:00:11"}, testDevice())
	if err != nil {
		t.Fatalf("DiscoveryPayloads error: %v", err)
	}

	for topic, payload := range payloads {
		var cfg entityConfig
		if err := json.Unmarshal(payload, &cfg); err != nil {
			t.Fatalf("decode %s: %v", topic, err)
		}
		diagnostic := cfg.EntityCategory == "diagnostic"
		switch {
		case strings.Contains(topic, "/battery_percent/"), strings.Contains(topic, "/status/"):
			if !diagnostic {
				t.Errorf("%s should be diagnostic", topic)
			}
		case strings.Contains(topic, "/mass_percent/"), strings.Contains(topic, "/mass_kg/"):
			if diagnostic {
				t.Errorf("%s should not be diagnostic", topic)
			}
		}
	}
}

func TestDiscoveryPayloadsDerivesIdentifier(t *testing.T) {
	// A device built from a bare config entry has no identifier yet;
	// topics and unique ids must still come out well formed.
	dev := &senso4s.Device{
		Manufacturer: "Senso4s",
		Model:        senso4s.ModelBasic,
		Address:      "DE:AD:BE:EF:00:11",
	}
	payloads, err := DiscoveryPayloads("homeassistant", "senso4s", core.Entry{Address: dev.Address}, dev)
	if err != nil {
		t.Fatalf("DiscoveryPayloads error: %v", err)
	}

	topic := "homeassistant/sensor/senso4s_deadbeef0011/mass_kg/config"
	payload, ok := payloads[topic]
	if !ok {
		keys := make([]string, 0, len(payloads))
		for k := range payloads {
			keys = append(keys, k)
		}
		t.Fatalf("missing topic %s in %v", topic, keys)
	}

	var cfg entityConfig
	if err := json.Unmarshal(payload, &cfg); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if cfg.UniqueID != "deadbeef0011_mass_kg" {
		t.Errorf("unique_id = %s", cfg.UniqueID)
	}
	if cfg.StateTopic != "senso4s/deadbeef0011/state" {
		t.Errorf("state_topic = %s", cfg.StateTopic)
	}
}

func TestIdentifierFor(t *testing.T) {
	if got := identifierFor("DE:AD:BE:EF:00:11"); got != "deadbeef0011" {
		t.Errorf("identifierFor = %s, want deadbeef0011", got)
	}
}
