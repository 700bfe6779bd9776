package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/joshp123/senso4s/senso4s"
)

func senso4sAdv(address string) senso4s.Advertisement {
	return senso4s.Advertisement{
		Address: address,
		RSSI:    -60,
		ManufacturerData: map[uint16][]byte{
			senso4s.ManufacturerSenso4s: {0x85, 50, 0x10, 0x00, 90, 0x00, 0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x11},
		},
	}
}

func TestDiscoverListsCandidates(t *testing.T) {
	discoverer := New()
	defer discoverer.Close()

	discoverer.Observe(senso4sAdv("DE:AD:BE:EF:00:11"))
	// Some other vendor's device on the air.
	discoverer.Observe(senso4s.Advertisement{
		Address:          "AA:AA:AA:AA:AA:AA",
		ManufacturerData: map[uint16][]byte{0x004C: {0x01}},
	})

	candidates, err := discoverer.Discover(context.Background(), 50*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("Discover error: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(candidates))
	}
	if candidates[0].Address != "DE:AD:BE:EF:00:11" {
		t.Errorf("address = %s", candidates[0].Address)
	}
	if candidates[0].Name != "Senso4s BASIC (DE:AD:BE:EF:00:11)" {
		t.Errorf("name = %s", candidates[0].Name)
	}
}

func TestDiscoverWaitsForObservation(t *testing.T) {
	discoverer := New()
	defer discoverer.Close()

	go func() {
		time.Sleep(100 * time.Millisecond)
		discoverer.Observe(senso4sAdv("DE:AD:BE:EF:00:11"))
	}()

	candidates, err := discoverer.Discover(context.Background(), 2*time.Second, nil)
	if err != nil {
		t.Fatalf("Discover error: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(candidates))
	}
}

func TestDiscoverNoDevices(t *testing.T) {
	discoverer := New()
	defer discoverer.Close()

	_, err := discoverer.Discover(context.Background(), 50*time.Millisecond, nil)
	if !errors.Is(err, ErrNoDevicesFound) {
		t.Fatalf("err = %v, want ErrNoDevicesFound", err)
	}
}

func TestDiscoverExcludesConfigured(t *testing.T) {
	discoverer := New()
	defer discoverer.Close()
	discoverer.Observe(senso4sAdv("DE:AD:BE:EF:00:11"))

	exclude := map[string]bool{"DE:AD:BE:EF:00:11": true}
	_, err := discoverer.Discover(context.Background(), 50*time.Millisecond, exclude)
	if !errors.Is(err, ErrNoDevicesFound) {
		t.Fatalf("err = %v, want ErrNoDevicesFound when all candidates configured", err)
	}
}

func TestLookupAfterObserve(t *testing.T) {
	discoverer := New()
	defer discoverer.Close()
	discoverer.Observe(senso4sAdv("DE:AD:BE:EF:00:11"))

	candidate, ok := discoverer.Lookup("DE:AD:BE:EF:00:11")
	if !ok {
		t.Fatalf("Lookup missed a cached candidate")
	}
	if candidate.Device.Model != senso4s.ModelBasic {
		t.Errorf("model = %s, want BASIC", candidate.Device.Model)
	}

	recent := discoverer.Recent(nil)
	if len(recent) != 1 {
		t.Errorf("recent = %d, want 1", len(recent))
	}
}
