package senso4s

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/golang/glog"
)

var (
	// ErrNotSenso4s is returned when an advertisement carries no
	// Senso4s manufacturer data.
	ErrNotSenso4s = errors.New("not a Senso4s device")

	// ErrAdvTooShort is returned for truncated manufacturer payloads.
	ErrAdvTooShort = errors.New("advertising data too short")

	// ErrInvalidModel is returned when the model bits match neither
	// the BASIC nor the PLUS layout.
	ErrInvalidModel = errors.New("invalid model")
)

// ParseAdvertisement decodes a Senso4s advertisement into a Device.
// It covers everything the device broadcasts without a connection:
// model, warnings, status, mass percentage, depletion prediction,
// battery level and RSSI.
func ParseAdvertisement(adv Advertisement) (*Device, error) {
	dev := &Device{
		Manufacturer: "Senso4s",
		Name:         adv.Name,
		Address:      adv.Address,
		Identifier:   IdentifierFromAddress(adv.Address),
	}

	data, ok := adv.ManufacturerData[ManufacturerSenso4s]
	if !ok {
		data, ok = adv.ManufacturerData[ManufacturerNordic]
	}
	if !ok {
		return nil, ErrNotSenso4s
	}
	glog.V(2).Infof("%s adv data: %x", adv.Address, data)

	if len(data) < 12 {
		return nil, fmt.Errorf("%w: %s", ErrAdvTooShort, adv.Address)
	}

	dev.Reading.RSSIDbm = float64p(float64(adv.RSSI))
	dev.Reading.BatteryPercent = float64p(float64(data[4]))
	dev.Reading.Status = statusFromByte(data[1])

	switch {
	case data[0]&0b11110000 == 0b10000000:
		dev.Model = ModelBasic
	case data[0]&0b10001111 == 0b00000011:
		dev.Model = ModelPlus
		// Warning flags only exist on the PLUS model.
		if data[0]&0b01000000 > 0 {
			dev.Reading.Warnings = append(dev.Reading.Warnings, WarningMovement)
		}
		if data[0]&0b00100000 > 0 {
			dev.Reading.Warnings = append(dev.Reading.Warnings, WarningInclination)
		}
		if data[0]&0b00010000 > 0 {
			dev.Reading.Warnings = append(dev.Reading.Warnings, WarningTemperature)
		}
	default:
		return nil, fmt.Errorf("%w: 0x%02X", ErrInvalidModel, data[0])
	}

	if data[1] <= 100 {
		dev.Reading.MassPercent = float64p(float64(data[1]))
	} else {
		glog.V(2).Infof("%s mass percentage out of range: 0x%02X", adv.Address, data[1])
	}

	if prediction := binary.LittleEndian.Uint16(data[2:4]); prediction != 0xFFFF {
		dev.Reading.PredictionMinutes = float64p(float64(prediction) * HistorySlotMinutes)
	}

	return dev, nil
}

// statusFromByte maps a mass byte to a device status. Values other
// than the known sentinels count as a normal measurement.
func statusFromByte(b byte) Status {
	switch b {
	case sentinelBatteryEmpty:
		return StatusBatteryEmpty
	case sentinelErrorStarting:
		return StatusErrorStarting
	case sentinelNotConfigured:
		return StatusNotConfigured
	default:
		return StatusOK
	}
}

// IdentifierFromAddress flattens a MAC address into the compact
// lowercase form used in topics and unique ids.
func IdentifierFromAddress(address string) string {
	return strings.ToLower(strings.NewReplacer(":", "", "-", "").Replace(address))
}
