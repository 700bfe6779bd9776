// Package ble adapts the go-ble HCI stack to the narrow scan/connect
// surface the daemon needs, so everything above it can run against
// fakes in tests.
package ble

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/golang/glog"

	"github.com/joshp123/senso4s/senso4s"
)

// Scanner watches for BLE advertisements.
type Scanner interface {
	// Scan runs until ctx is done, invoking handler for every
	// received advertisement.
	Scan(ctx context.Context, handler func(senso4s.Advertisement)) error
}

// Connector establishes GATT connections to devices by address.
type Connector interface {
	Connect(ctx context.Context, address string) (senso4s.Conn, error)
}

const connectTimeout = 30 * time.Second

// Adapter owns the HCI device and implements Scanner and Connector.
type Adapter struct {
	device *linux.Device
}

// NewAdapter opens the given HCI device (e.g. "hci0", empty for the
// default) and installs it as the ble default device.
func NewAdapter(name string) (*Adapter, error) {
	opts := []ble.Option{}
	if name != "" {
		id, err := hciID(name)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ble.OptDeviceID(id))
	}
	device, err := linux.NewDevice(opts...)
	if err != nil {
		return nil, fmt.Errorf("open bluetooth adapter: %w", err)
	}
	ble.SetDefaultDevice(device)
	return &Adapter{device: device}, nil
}

func (a *Adapter) Scan(ctx context.Context, handler func(senso4s.Advertisement)) error {
	err := ble.Scan(ctx, true, func(adv ble.Advertisement) {
		handler(convertAdvertisement(adv))
	}, nil)
	// Hitting the ctx deadline is the normal way a scan ends.
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("scan: %w", err)
	}
	return nil
}

func (a *Adapter) Connect(ctx context.Context, address string) (senso4s.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	want := strings.ToUpper(address)
	client, err := ble.Connect(ctx, func(adv ble.Advertisement) bool {
		return strings.ToUpper(adv.Addr().String()) == want
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", address, err)
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		_ = client.CancelConnection()
		return nil, fmt.Errorf("discover profile %s: %w", address, err)
	}

	return &gattConn{client: client, profile: profile}, nil
}

func (a *Adapter) Close() error {
	return a.device.Stop()
}

// gattConn implements senso4s.Conn over a live go-ble client.
type gattConn struct {
	client  ble.Client
	profile *ble.Profile
}

func (c *gattConn) characteristic(uuid string) (*ble.Characteristic, error) {
	parsed, err := ble.Parse(uuid)
	if err != nil {
		return nil, fmt.Errorf("parse uuid %s: %w", uuid, err)
	}
	if u := c.profile.Find(ble.NewCharacteristic(parsed)); u != nil {
		if char, ok := u.(*ble.Characteristic); ok {
			return char, nil
		}
	}
	return nil, fmt.Errorf("characteristic %s not found", uuid)
}

func (c *gattConn) ReadCharacteristic(_ context.Context, uuid string) ([]byte, error) {
	char, err := c.characteristic(uuid)
	if err != nil {
		return nil, err
	}
	return c.client.ReadCharacteristic(char)
}

func (c *gattConn) WriteCharacteristic(_ context.Context, uuid string, data []byte) error {
	char, err := c.characteristic(uuid)
	if err != nil {
		return err
	}
	return c.client.WriteCharacteristic(char, data, false)
}

func (c *gattConn) Subscribe(_ context.Context, uuid string, handler func([]byte)) error {
	char, err := c.characteristic(uuid)
	if err != nil {
		return err
	}
	return c.client.Subscribe(char, false, func(data []byte) {
		handler(data)
	})
}

func (c *gattConn) Unsubscribe(_ context.Context, uuid string) error {
	char, err := c.characteristic(uuid)
	if err != nil {
		return err
	}
	return c.client.Unsubscribe(char, false)
}

func (c *gattConn) Disconnect() error {
	return c.client.CancelConnection()
}

// convertAdvertisement maps a go-ble advertisement to the neutral
// form. go-ble exposes manufacturer data as raw bytes with the
// company identifier in the leading two little-endian bytes.
func convertAdvertisement(adv ble.Advertisement) senso4s.Advertisement {
	out := senso4s.Advertisement{
		Address:          strings.ToUpper(adv.Addr().String()),
		Name:             adv.LocalName(),
		RSSI:             adv.RSSI(),
		ManufacturerData: map[uint16][]byte{},
	}
	if data := adv.ManufacturerData(); len(data) >= 2 {
		companyID := binary.LittleEndian.Uint16(data[:2])
		out.ManufacturerData[companyID] = data[2:]
	}
	return out
}

func hciID(name string) (int, error) {
	var id int
	if _, err := fmt.Sscanf(name, "hci%d", &id); err != nil {
		return 0, fmt.Errorf("invalid adapter name %q (want hciN): %w", name, err)
	}
	glog.V(1).Infof("using bluetooth adapter %s", name)
	return id, nil
}
