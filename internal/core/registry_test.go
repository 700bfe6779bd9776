package core

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestRegistryAdoptAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.json")

	registry, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry error: %v", err)
	}

	entry := Entry{Address: "de:ad:be:ef:00:11", Name: "Senso4s BASIC (DE:AD:BE:EF:00:11)", Model: "BASIC", Area: "kitchen"}
	if err := registry.Adopt(entry); err != nil {
		t.Fatalf("Adopt error: %v", err)
	}

	// The address is the unique id, regardless of case.
	err = registry.Adopt(Entry{Address: "DE:AD:BE:EF:00:11"})
	if !errors.Is(err, ErrAlreadyConfigured) {
		t.Fatalf("duplicate adopt: err = %v, want ErrAlreadyConfigured", err)
	}

	reloaded, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("reload error: %v", err)
	}
	got, ok := reloaded.Get("DE:AD:BE:EF:00:11")
	if !ok {
		t.Fatalf("entry missing after reload")
	}
	if got.Area != "kitchen" || got.Model != "BASIC" {
		t.Errorf("unexpected entry after reload: %+v", got)
	}
	if got.AdoptedAt.IsZero() {
		t.Errorf("AdoptedAt not set")
	}
}

func TestRegistryRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.json")
	registry, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry error: %v", err)
	}

	if err := registry.Remove("DE:AD:BE:EF:00:11"); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("remove unknown: err = %v, want ErrDeviceNotFound", err)
	}

	if err := registry.Adopt(Entry{Address: "DE:AD:BE:EF:00:11"}); err != nil {
		t.Fatalf("Adopt error: %v", err)
	}
	if err := registry.Remove("de:ad:be:ef:00:11"); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if registry.Has("DE:AD:BE:EF:00:11") {
		t.Errorf("entry still present after remove")
	}
}

func TestRegistryAddresses(t *testing.T) {
	registry, err := LoadRegistry(filepath.Join(t.TempDir(), "devices.json"))
	if err != nil {
		t.Fatalf("LoadRegistry error: %v", err)
	}
	_ = registry.Adopt(Entry{Address: "AA:BB:CC:DD:EE:FF"})
	_ = registry.Adopt(Entry{Address: "11:22:33:44:55:66"})

	addrs := registry.Addresses()
	if len(addrs) != 2 || !addrs["AA:BB:CC:DD:EE:FF"] || !addrs["11:22:33:44:55:66"] {
		t.Errorf("unexpected address set: %v", addrs)
	}
}

func TestRegistryMissingFile(t *testing.T) {
	registry, err := LoadRegistry(filepath.Join(t.TempDir(), "nope", "devices.json"))
	if err != nil {
		t.Fatalf("LoadRegistry error for missing file: %v", err)
	}
	if len(registry.List()) != 0 {
		t.Errorf("expected empty registry")
	}

	// First adopt creates the directory.
	if err := registry.Adopt(Entry{Address: "AA:BB:CC:DD:EE:FF"}); err != nil {
		t.Fatalf("Adopt error: %v", err)
	}
}
