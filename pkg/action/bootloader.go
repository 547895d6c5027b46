package action

// TypeBootloaderDidFailToConnect is published when connecting to a hub in
// bootloader mode fails.
const TypeBootloaderDidFailToConnect Type = "bootloader.action.connection.didFailToConnect"

// BootloaderFailReason is the closed set of bootloader connection failure reasons.
type BootloaderFailReason string

const (
	BootloaderFailNoGatt              BootloaderFailReason = "noGatt"
	BootloaderFailGattServiceNotFound BootloaderFailReason = "gattServiceNotFound"
	BootloaderFailNoWebBluetooth      BootloaderFailReason = "noWebBluetooth"
	BootloaderFailUnknown             BootloaderFailReason = "unknown"
)

// BootloaderFailReasons returns every declared reason.
func BootloaderFailReasons() []BootloaderFailReason {
	return []BootloaderFailReason{
		BootloaderFailNoGatt, BootloaderFailGattServiceNotFound, BootloaderFailNoWebBluetooth, BootloaderFailUnknown,
	}
}

// Valid reports whether r is one of the declared reasons.
func (r BootloaderFailReason) Valid() bool {
	switch r {
	case BootloaderFailNoGatt, BootloaderFailGattServiceNotFound, BootloaderFailNoWebBluetooth, BootloaderFailUnknown:
		return true
	default:
		return false
	}
}

// BootloaderDidFailToConnect reports a failed bootloader connection attempt.
type BootloaderDidFailToConnect struct {
	Reason BootloaderFailReason `json:"reason"`
	Err    string               `json:"err,omitempty"`
}

func (BootloaderDidFailToConnect) Type() Type { return TypeBootloaderDidFailToConnect }
