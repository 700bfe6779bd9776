package senso4s

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
)

// Conn is an established GATT connection to a Senso4s device.
// internal/ble provides the real implementation; tests use fakes.
type Conn interface {
	ReadCharacteristic(ctx context.Context, uuid string) ([]byte, error)
	WriteCharacteristic(ctx context.Context, uuid string, data []byte) error
	Subscribe(ctx context.Context, uuid string, handler func([]byte)) error
	Unsubscribe(ctx context.Context, uuid string) error
	Disconnect() error
}

// historyWait bounds how long we listen for history notifications
// after triggering the dump.
const historyWait = time.Second

// Refresh reads the connected-only characteristics (mass, cylinder
// parameters, history, setup time) into dev, on top of whatever the
// advertisement already provided. The four reads run concurrently
// over the single connection. Partial data survives individual read
// failures; the joined error reports what went wrong.
func Refresh(ctx context.Context, conn Conn, dev *Device) error {
	r := &refresher{dev: dev}

	var wg sync.WaitGroup
	for _, step := range []func(context.Context, Conn){
		r.readMass,
		r.readParameters,
		r.readHistory,
		r.readSetupTime,
	} {
		step := step
		wg.Add(1)
		go func() {
			defer wg.Done()
			step(ctx, conn)
		}()
	}
	wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Anchoring the history needs the setup time, which a sibling
	// goroutine reads; resolve timestamps only once every read is in.
	if len(r.history) > 0 {
		dev.History = r.history.build(dev.Reading.SetupTime)
	}

	// Last measurement time is the setup time plus the last history
	// point's offset.
	if dev.Reading.SetupTime != nil && r.latestOffset != nil {
		t := dev.Reading.SetupTime.Add(time.Duration(*r.latestOffset+1) * HistorySlotMinutes * time.Minute)
		dev.Reading.LastMeasurement = &t
	}

	return errors.Join(r.errs...)
}

type refresher struct {
	mu           sync.Mutex
	dev          *Device
	errs         []error
	history      RawHistory
	latestOffset *uint16
}

func (r *refresher) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *refresher) readMass(ctx context.Context, conn Conn) {
	// The device refuses plain reads of this characteristic until
	// notifications are enabled.
	if err := conn.Subscribe(ctx, MassCharUUID, func(data []byte) {
		glog.V(2).Infof("mass notification bytes: %x", data)
	}); err != nil {
		r.fail(fmt.Errorf("subscribe mass: %w", err))
		return
	}
	defer func() { _ = conn.Unsubscribe(ctx, MassCharUUID) }()

	value, err := conn.ReadCharacteristic(ctx, MassCharUUID)
	if err != nil {
		r.fail(fmt.Errorf("read mass: %w", err))
		return
	}
	if len(value) < 1 {
		r.fail(fmt.Errorf("read mass: empty value"))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if value[0] > 100 {
		r.dev.Reading.MassPercent = nil
		r.dev.Reading.Status = statusFromByte(value[0])
		return
	}
	r.dev.Reading.MassPercent = float64p(float64(value[0]))
	r.dev.Reading.Status = StatusOK
}

func (r *refresher) readParameters(ctx context.Context, conn Conn) {
	value, err := conn.ReadCharacteristic(ctx, ParamsCharUUID)
	if err != nil {
		r.fail(fmt.Errorf("read parameters: %w", err))
		return
	}
	weightKg, capacityKg, err := DecodeParams(value)
	if err != nil {
		r.fail(err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.dev.Reading.CylinderWeightKg = float64p(weightKg)
	r.dev.Reading.CylinderCapacityKg = float64p(capacityKg)
}

func (r *refresher) readSetupTime(ctx context.Context, conn Conn) {
	value, err := conn.ReadCharacteristic(ctx, SetupTimeCharUUID)
	if err != nil {
		r.fail(fmt.Errorf("read setup time: %w", err))
		return
	}
	setup, err := DecodeSetupTime(value, time.Local)
	if err != nil {
		r.fail(err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.dev.Reading.SetupTime = setup
}

func (r *refresher) readHistory(ctx context.Context, conn Conn) {
	var bufMu sync.Mutex
	var buf []byte
	if err := conn.Subscribe(ctx, HistoryCharUUID, func(data []byte) {
		glog.V(2).Infof("history notification bytes: %x", data)
		bufMu.Lock()
		buf = append(buf, data...)
		bufMu.Unlock()
	}); err != nil {
		r.fail(fmt.Errorf("subscribe history: %w", err))
		return
	}
	defer func() { _ = conn.Unsubscribe(ctx, HistoryCharUUID) }()

	// Writing two zero bytes triggers the dump on the same
	// characteristic.
	if err := conn.WriteCharacteristic(ctx, HistoryCharUUID, []byte{0x00, 0x00}); err != nil {
		r.fail(fmt.Errorf("trigger history: %w", err))
		return
	}

	select {
	case <-time.After(historyWait):
	case <-ctx.Done():
	}

	bufMu.Lock()
	entries := DecodeHistory(buf)
	bufMu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(entries) == 0 {
		glog.V(1).Infof("%s: no measurement history received", r.dev.Address)
		r.dev.Reading.MassKg = nil
		return
	}
	// Entries arrive oldest to newest; the final one is the current
	// reading.
	last := entries[len(entries)-1]
	r.dev.Reading.MassKg = float64p(last.massKg())
	r.latestOffset = &last.DurationUnits
	r.history = entries
}

// RawHistoryEntry is one undecoded 4-byte history record: mass in
// decagrams and a duration in 15-minute units.
type RawHistoryEntry struct {
	MassDag       uint16
	DurationUnits uint16
}

func (e RawHistoryEntry) massKg() float64 { return float64(e.MassDag) / 100 }

// RawHistory is the ordered on-board log, oldest first.
type RawHistory []RawHistoryEntry

// DecodeHistory splits a history notification stream into raw
// entries. Trailing bytes that do not fill a record are dropped.
func DecodeHistory(data []byte) RawHistory {
	if len(data)%4 != 0 {
		glog.V(1).Infof("history length %d not a multiple of 4", len(data))
	}
	entries := make(RawHistory, 0, len(data)/4)
	for i := 0; i+4 <= len(data); i += 4 {
		entries = append(entries, RawHistoryEntry{
			MassDag:       binary.LittleEndian.Uint16(data[i : i+2]),
			DurationUnits: binary.LittleEndian.Uint16(data[i+2 : i+4]),
		})
	}
	return entries
}

// build resolves raw entries against the setup time: each entry's
// timestamp is the setup time plus the cumulative duration of all
// entries up to and including it.
func (h RawHistory) build(setup *time.Time) []HistoryEntry {
	entries := make([]HistoryEntry, 0, len(h))
	var offset uint32
	for _, raw := range h {
		offset += uint32(raw.DurationUnits)
		entry := HistoryEntry{
			MassKg:   raw.massKg(),
			Duration: time.Duration(raw.DurationUnits) * HistorySlotMinutes * time.Minute,
		}
		if setup != nil {
			entry.Time = setup.Add(time.Duration(offset) * HistorySlotMinutes * time.Minute)
		}
		entries = append(entries, entry)
	}
	return entries
}

// DecodeParams decodes the cylinder parameters characteristic: empty
// cylinder weight and total gas capacity, both reported in decagrams.
func DecodeParams(value []byte) (weightKg, capacityKg float64, err error) {
	if len(value) < 5 {
		return 0, 0, fmt.Errorf("params value too short: %d bytes", len(value))
	}
	weightKg = float64(binary.LittleEndian.Uint16(value[0:2])) / 100
	capacityKg = float64(binary.LittleEndian.Uint16(value[2:4])) / 100
	return weightKg, capacityKg, nil
}

// DecodeSetupTime decodes the setup time characteristic. The device
// reports wall-clock fields in the local time of whatever set it up;
// we assume that aligns with ours. A zero year means the device has
// no measuring cycle configured and yields nil.
func DecodeSetupTime(value []byte, loc *time.Location) (*time.Time, error) {
	if len(value) < 7 {
		return nil, fmt.Errorf("setup time value too short: %d bytes", len(value))
	}
	year := int(binary.LittleEndian.Uint16(value[0:2]))
	if year == 0 {
		return nil, nil
	}
	t := time.Date(year, time.Month(value[2]), int(value[3]), int(value[4]), int(value[5]), 0, 0, loc)
	return &t, nil
}
