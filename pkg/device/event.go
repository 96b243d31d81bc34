package device

import (
	"fmt"
	"strings"
	"time"
)

// DeviceClass selects which kind of device a source reports on.
type DeviceClass uint

const (
	UnknownClass DeviceClass = iota

	// SerialPortClass covers USB serial adapters and CDC ACM devices.
	SerialPortClass

	HIDClass
)

func (c DeviceClass) String() string {
	switch c {
	case SerialPortClass:
		return "serial"
	case HIDClass:
		return "hid"
	default:
		return "unknown"
	}
}

// ParseDeviceClass parses a class name as used in configuration files.
func ParseDeviceClass(s string) (DeviceClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "serial", "serial_port", "tty":
		return SerialPortClass, nil
	case "hid", "hidraw":
		return HIDClass, nil
	default:
		return UnknownClass, fmt.Errorf("unknown device class: %q", s)
	}
}

// Action is the raw kind of change a notification reports.
type Action string

const (
	ActionAdd    Action = "add"
	ActionRemove Action = "remove"
	ActionChange Action = "change"
	ActionBind   Action = "bind"
	ActionUnbind Action = "unbind"
)

// Notification is a raw arrival/removal notification as delivered by a
// Source. Err is set for in-band delivery errors; all other fields are then
// zero.
type Notification struct {
	Action    Action
	Class     DeviceClass
	VendorID  string
	ProductID string
	Port      string
	DevPath   string
	Timestamp time.Time
	Err       error
}

// EventKind discriminates a classified Event.
type EventKind int

const (
	Plug EventKind = iota + 1
	Unplug
)

func (k EventKind) String() string {
	switch k {
	case Plug:
		return "plug"
	case Unplug:
		return "unplug"
	default:
		return "unknown"
	}
}

// Event is a classified plug or unplug of a device at a port.
type Event struct {
	Kind      EventKind
	VendorID  string
	ProductID string
	Port      string
}

// Identity returns the vendor:product pair of the event.
func (e Event) Identity() Identity {
	return Identity{VendorID: e.VendorID, ProductID: e.ProductID}
}

// Identity is a USB vendor:product id pair. Both halves are four hex digits
// in upper case once normalized.
type Identity struct {
	VendorID  string `json:"vendor" yaml:"vendor"`
	ProductID string `json:"product" yaml:"product"`
}

// ID builds an Identity from a vendor and product string without validating.
func ID(vendorID, productID string) Identity {
	return Identity{VendorID: vendorID, ProductID: productID}
}

// ParseIdentity parses "VVVV:PPPP".
func ParseIdentity(s string) (Identity, error) {
	vid, pid, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Identity{}, newError(InvalidIdentity, "parse identity",
			fmt.Errorf("%q is not in VVVV:PPPP form", s))
	}
	return Identity{VendorID: vid, ProductID: pid}.Normalize()
}

// Normalize validates both halves and returns them upper-cased.
func (id Identity) Normalize() (Identity, error) {
	vid, err := normalizeHexID(id.VendorID)
	if err != nil {
		return Identity{}, newError(InvalidIdentity, "vendor id", err)
	}
	pid, err := normalizeHexID(id.ProductID)
	if err != nil {
		return Identity{}, newError(InvalidIdentity, "product id", err)
	}
	return Identity{VendorID: vid, ProductID: pid}, nil
}

func (id Identity) String() string {
	return id.VendorID + ":" + id.ProductID
}

func normalizeHexID(s string) (string, error) {
	if len(s) != 4 {
		return "", fmt.Errorf("%q must be exactly 4 hex digits", s)
	}
	for i := 0; i < len(s); i++ {
		if !isHexDigit(s[i]) {
			return "", fmt.Errorf("%q must be exactly 4 hex digits", s)
		}
	}
	return strings.ToUpper(s), nil
}

func isHexDigit(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

// canonicalHexID pads and upper-cases an id as reported by the OS, which may
// drop leading zeros (e.g. "100" in a uevent PRODUCT= line). It returns ""
// when s is not a hex number that fits in 16 bits.
func canonicalHexID(s string) string {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	if s == "" || len(s) > 4 {
		return ""
	}
	for i := 0; i < len(s); i++ {
		if !isHexDigit(s[i]) {
			return ""
		}
	}
	return strings.ToUpper(strings.Repeat("0", 4-len(s)) + s)
}
