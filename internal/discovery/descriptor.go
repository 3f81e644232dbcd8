// Package discovery finds devices on the local network over mDNS and keeps
// a live registry of them. Devices advertise one service type per product,
// `_arsdk-<id>._udp`; the registry folds advertisements in as they arrive
// and expires entries whose advertisement is not renewed.
package discovery

import "net"

// Well-known device ids, as they appear in the advertised service type.
const (
	DeviceBebop          = "0901"
	DeviceJumpingSumo    = "0902"
	DeviceSkyController  = "0903"
	DeviceJumpingNight   = "0905"
	DeviceJumpingRace    = "0906"
	DeviceBebop2         = "090c"
	DeviceSkyController2 = "090f"
)

// AllDeviceIDs lists every product this package knows how to search for.
func AllDeviceIDs() []string {
	return []string{
		DeviceBebop,
		DeviceBebop2,
		DeviceJumpingSumo,
		DeviceJumpingRace,
		DeviceJumpingNight,
		DeviceSkyController,
		DeviceSkyController2,
	}
}

// DeviceDescriptor identifies one discovered device. It is immutable once
// constructed; Devices hands out copies.
type DeviceDescriptor struct {
	// Name is the advertised instance name, unique per device on the network.
	Name string

	// DeviceID is the product id extracted from the service type.
	DeviceID string

	// Addr and Port locate the device's handshake endpoint.
	Addr net.IP
	Port int

	// HostName is the advertised mDNS host, kept for diagnostics.
	HostName string

	// Txt carries the advertisement's raw TXT records, including the
	// device serial on products that publish one.
	Txt []string
}

func serviceType(deviceID string) string {
	return "_arsdk-" + deviceID + "._udp"
}
