package action

// TypeBleDidFailToConnect is published when connecting to a hub over BLE fails.
const TypeBleDidFailToConnect Type = "bleDevice.action.didFailToConnect"

// BleFailReason is the closed set of BLE connection failure reasons.
type BleFailReason string

const (
	// BleFailNoGatt means the browser/host has no GATT permission or support.
	BleFailNoGatt BleFailReason = "noGatt"
	// BleFailNoService means the hub does not expose the expected GATT service.
	BleFailNoService BleFailReason = "noService"
	// BleFailNoWebBluetooth means Bluetooth is not available at all.
	BleFailNoWebBluetooth BleFailReason = "noWebBluetooth"
	// BleFailUnknown is any other failure.
	BleFailUnknown BleFailReason = "unknown"
)

// BleFailReasons returns every declared reason.
func BleFailReasons() []BleFailReason {
	return []BleFailReason{BleFailNoGatt, BleFailNoService, BleFailNoWebBluetooth, BleFailUnknown}
}

// Valid reports whether r is one of the declared reasons.
func (r BleFailReason) Valid() bool {
	switch r {
	case BleFailNoGatt, BleFailNoService, BleFailNoWebBluetooth, BleFailUnknown:
		return true
	default:
		return false
	}
}

// BleDidFailToConnect reports a failed BLE connection attempt.
type BleDidFailToConnect struct {
	Reason BleFailReason `json:"reason"`
	// Err carries the transport error text for the unknown reason.
	Err string `json:"err,omitempty"`
}

func (BleDidFailToConnect) Type() Type { return TypeBleDidFailToConnect }
