// Package poller keeps configured devices fresh: a full connected
// refresh on an interval, with passive advertisement updates flowing
// in between.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/joshp123/senso4s/internal/ble"
	"github.com/joshp123/senso4s/internal/core"
	"github.com/joshp123/senso4s/senso4s"
)

// Publisher receives device updates. MQTT and the history sink
// implement this.
type Publisher interface {
	Publish(ctx context.Context, entry core.Entry, dev *senso4s.Device) error
}

// Observer receives every advertisement the passive watcher sees,
// configured or not. The discoverer implements this; a single scan
// serves both polling and the setup flow, since the adapter only
// supports one advertisement handler.
type Observer interface {
	Observe(adv senso4s.Advertisement)
}

// DefaultInterval between full connected refreshes.
const DefaultInterval = 5 * time.Minute

const refreshTimeout = 45 * time.Second

// Poller drives updates for all configured devices.
type Poller struct {
	// Observer, when set, is fed every received advertisement.
	Observer Observer

	registry   *core.Registry
	store      *core.Store
	scanner    ble.Scanner
	connector  ble.Connector
	publishers []Publisher
	interval   time.Duration

	mu      sync.Mutex
	lastAdv map[string]senso4s.Advertisement
}

func New(registry *core.Registry, store *core.Store, scanner ble.Scanner, connector ble.Connector, interval time.Duration, publishers ...Publisher) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		registry:   registry,
		store:      store,
		scanner:    scanner,
		connector:  connector,
		publishers: publishers,
		interval:   interval,
		lastAdv:    make(map[string]senso4s.Advertisement),
	}
}

// Run blocks until ctx is done. It keeps a passive scan open for
// advertisement updates and triggers full refreshes on the interval.
func (p *Poller) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.watchAdvertisements(ctx)
	}()

	// First refresh immediately so entities appear without waiting a
	// full interval.
	p.refreshAll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			p.refreshAll(ctx)
		}
	}
}

func (p *Poller) watchAdvertisements(ctx context.Context) {
	for ctx.Err() == nil {
		err := p.scanner.Scan(ctx, func(adv senso4s.Advertisement) {
			if p.Observer != nil {
				p.Observer.Observe(adv)
			}
			p.handleAdvertisement(adv)
		})
		if err != nil && ctx.Err() == nil {
			glog.Errorf("advertisement scan: %v", err)
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
			}
		}
	}
}

func (p *Poller) handleAdvertisement(adv senso4s.Advertisement) {
	entry, ok := p.registry.Get(adv.Address)
	if !ok {
		return
	}

	dev, err := senso4s.ParseAdvertisement(adv)
	if err != nil {
		p.store.Fail(entry.Address, err)
		glog.Warningf("%s: bad advertisement: %v", entry.Address, err)
		return
	}

	p.mu.Lock()
	p.lastAdv[entry.Address] = adv
	p.mu.Unlock()

	// Keep connected-only values from the previous snapshot; the
	// advertisement knows nothing about them.
	if snap, ok := p.store.Get(entry.Address); ok && snap.Device != nil {
		prev := snap.Device.Reading
		dev.Reading.MassKg = prev.MassKg
		dev.Reading.CylinderCapacityKg = prev.CylinderCapacityKg
		dev.Reading.CylinderWeightKg = prev.CylinderWeightKg
		dev.Reading.SetupTime = prev.SetupTime
		dev.Reading.LastMeasurement = prev.LastMeasurement
		dev.History = snap.Device.History
	}

	p.store.Update(entry.Address, dev, false)
	p.publish(context.Background(), entry, dev)
}

func (p *Poller) refreshAll(ctx context.Context) {
	for _, entry := range p.registry.List() {
		if ctx.Err() != nil {
			return
		}
		if err := p.Refresh(ctx, entry); err != nil {
			glog.Errorf("refresh %s: %v", entry.Address, err)
		}
	}
}

// Refresh performs a full connected update of one device.
func (p *Poller) Refresh(ctx context.Context, entry core.Entry) error {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	p.mu.Lock()
	adv, seen := p.lastAdv[entry.Address]
	p.mu.Unlock()

	var dev *senso4s.Device
	if seen {
		parsed, err := senso4s.ParseAdvertisement(adv)
		if err != nil {
			p.store.Fail(entry.Address, err)
			return err
		}
		dev = parsed
	} else {
		// No advertisement yet; start from the config entry alone.
		dev = &senso4s.Device{
			Manufacturer: "Senso4s",
			Model:        senso4s.Model(entry.Model),
			Name:         entry.Name,
			Address:      entry.Address,
			Identifier:   senso4s.IdentifierFromAddress(entry.Address),
		}
	}

	conn, err := p.connector.Connect(ctx, entry.Address)
	if err != nil {
		p.store.Fail(entry.Address, err)
		return fmt.Errorf("connect: %w", err)
	}
	defer func() {
		if err := conn.Disconnect(); err != nil {
			glog.V(1).Infof("disconnect %s: %v", entry.Address, err)
		}
	}()

	if err := senso4s.Refresh(ctx, conn, dev); err != nil {
		// Partial data may still be usable; record the failure but
		// keep what we got.
		p.store.Update(entry.Address, dev, false)
		p.store.Fail(entry.Address, err)
		p.publish(ctx, entry, dev)
		return fmt.Errorf("refresh: %w", err)
	}

	p.store.Update(entry.Address, dev, true)
	p.publish(ctx, entry, dev)
	return nil
}

func (p *Poller) publish(ctx context.Context, entry core.Entry, dev *senso4s.Device) {
	for _, publisher := range p.publishers {
		if err := publisher.Publish(ctx, entry, dev); err != nil {
			glog.Warningf("publish %s: %v", entry.Address, err)
		}
	}
}
