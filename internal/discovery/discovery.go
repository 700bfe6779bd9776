// Package discovery implements the setup-flow backend. The poller's
// passive watcher feeds every advertisement into Observe; Discover
// filters the recently seen, compatible devices against the configured
// set and presents the remainder as candidates. The discoverer never
// opens its own scan, so the single HCI adapter stays with the
// watcher.
package discovery

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/golang/glog"
	ttlcache "github.com/jellydator/ttlcache/v2"

	"github.com/joshp123/senso4s/senso4s"
)

// ErrNoDevicesFound is returned when a discovery window passes without
// a single compatible advertisement. The usual remedy is moving the
// adapter closer to the device.
var ErrNoDevicesFound = errors.New("no devices found")

// DefaultTimeout bounds a discovery window.
const DefaultTimeout = 15 * time.Second

// cacheTTL keeps recently seen candidates available between requests.
const cacheTTL = 5 * time.Minute

// checkInterval is how often Discover re-checks the cache while
// waiting for a compatible advertisement to arrive.
const checkInterval = 250 * time.Millisecond

// Candidate is a discovered, compatible device.
type Candidate struct {
	Name    string                `json:"name"`
	Device  *senso4s.Device       `json:"device"`
	Adv     senso4s.Advertisement `json:"-"`
	SeenAt  time.Time             `json:"seen_at"`
	Address string                `json:"address"`
}

// Discoverer caches compatible advertisements for the setup flow.
type Discoverer struct {
	seen *ttlcache.Cache
}

func New() *Discoverer {
	cache := ttlcache.NewCache()
	_ = cache.SetTTL(cacheTTL)
	cache.SkipTTLExtensionOnHit(true)
	return &Discoverer{seen: cache}
}

// Observe records an advertisement from the shared scan. Incompatible
// devices are ignored.
func (d *Discoverer) Observe(adv senso4s.Advertisement) {
	dev, err := senso4s.ParseAdvertisement(adv)
	if err != nil {
		// Likely not a Senso4s device; ignore.
		glog.V(2).Infof("skipping %s: %v", adv.Address, err)
		return
	}
	_ = d.seen.Set(dev.Address, Candidate{
		Name:    dev.FriendlyName(),
		Device:  dev,
		Adv:     adv,
		SeenAt:  time.Now(),
		Address: dev.Address,
	})
}

// Discover returns compatible candidates not present in exclude (the
// configured address set). When nothing is cached yet it waits up to
// timeout for the watcher to observe one; an empty result is
// ErrNoDevicesFound.
func (d *Discoverer) Discover(ctx context.Context, timeout time.Duration, exclude map[string]bool) ([]Candidate, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		if candidates := d.Recent(exclude); len(candidates) > 0 {
			return candidates, nil
		}
		select {
		case <-deadline.C:
			return nil, ErrNoDevicesFound
		case <-ctx.Done():
			return nil, ErrNoDevicesFound
		case <-ticker.C:
		}
	}
}

// Recent returns the cached candidates, subject to the exclusion.
func (d *Discoverer) Recent(exclude map[string]bool) []Candidate {
	items := d.seen.GetItems()
	candidates := make([]Candidate, 0, len(items))
	for address, item := range items {
		if exclude[address] {
			continue
		}
		if candidate, ok := item.(Candidate); ok {
			candidates = append(candidates, candidate)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Address < candidates[j].Address })
	return candidates
}

// Lookup returns a cached candidate by address, for the adopt step.
func (d *Discoverer) Lookup(address string) (Candidate, bool) {
	item, err := d.seen.Get(address)
	if err != nil {
		return Candidate{}, false
	}
	candidate, ok := item.(Candidate)
	return candidate, ok
}

func (d *Discoverer) Close() {
	_ = d.seen.Close()
}
