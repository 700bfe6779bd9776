package senso4s

// Bluetooth SIG company identifiers seen in Senso4s advertisements.
// Older firmware advertises under the Nordic Semiconductor ID.
const (
	ManufacturerSenso4s uint16 = 0x09CC
	ManufacturerNordic  uint16 = 0x0059
)

// Senso4s GATT service and characteristics.
const (
	ServiceUUID = "00007081-a20b-4d4d-a4de-7f071dbbc1d8"

	// Read; the device requires notifications enabled before the read.
	MassCharUUID = "00007082-a20b-4d4d-a4de-7f071dbbc1d8"

	// Read/write: empty cylinder weight and total gas capacity.
	ParamsCharUUID = "00007083-a20b-4d4d-a4de-7f071dbbc1d8"

	// Notify/write: writing 0x0000 triggers a history dump as a
	// stream of notifications on the same characteristic.
	HistoryCharUUID = "00007085-a20b-4d4d-a4de-7f071dbbc1d8"

	// Read: time the current measuring cycle was started.
	SetupTimeCharUUID = "00007087-a20b-4d4d-a4de-7f071dbbc1d8"
)

// Sentinel values reported in place of a mass percentage, both in the
// advertisement and in the mass characteristic.
const (
	sentinelBatteryEmpty  = 0xFE
	sentinelErrorStarting = 0xFC
	sentinelNotConfigured = 0xFF
)

// History and prediction values are reported in 15-minute units.
const HistorySlotMinutes = 15
