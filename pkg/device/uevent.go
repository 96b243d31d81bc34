package device

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// classSubsystems maps a DeviceClass to the kernel subsystem its device
// nodes are announced under.
var classSubsystems = map[DeviceClass]string{
	SerialPortClass: "tty",
	HIDClass:        "hidraw",
}

// parseUevent splits a kernel uevent datagram into its environment. The
// datagram is a "action@devpath" header followed by NUL separated KEY=VALUE
// pairs.
func parseUevent(msg []byte) (map[string]string, error) {
	if bytes.HasPrefix(msg, []byte("libudev\x00")) {
		return nil, errors.New("udevd message on kernel uevent group")
	}
	parts := bytes.Split(msg, []byte{0})
	if len(parts) < 2 || !bytes.Contains(parts[0], []byte("@")) {
		return nil, fmt.Errorf("malformed uevent header %q", parts[0])
	}
	env := make(map[string]string, len(parts))
	for _, p := range parts[1:] {
		if len(p) == 0 {
			continue
		}
		k, v, ok := strings.Cut(string(p), "=")
		if !ok {
			continue
		}
		env[k] = v
	}
	if env["ACTION"] == "" || env["DEVPATH"] == "" {
		return nil, errors.New("uevent missing ACTION or DEVPATH")
	}
	return env, nil
}

// ueventTranslator turns uevent environments into Notifications. Removal
// events no longer have a sysfs node to read the identity from, so the
// identity seen on arrival is remembered per devpath.
type ueventTranslator struct {
	sysfsRoot  string
	subsystems map[string]DeviceClass
	known      map[string]Identity
}

func newUeventTranslator(sysfsRoot string, classes []DeviceClass) (*ueventTranslator, error) {
	t := &ueventTranslator{
		sysfsRoot:  sysfsRoot,
		subsystems: make(map[string]DeviceClass, len(classes)),
		known:      make(map[string]Identity),
	}
	for _, c := range classes {
		subsystem, ok := classSubsystems[c]
		if !ok {
			return nil, fmt.Errorf("device class %s has no kernel subsystem", c)
		}
		t.subsystems[subsystem] = c
	}
	return t, nil
}

// translate reports false for events outside the configured classes.
func (t *ueventTranslator) translate(env map[string]string) (Notification, bool) {
	class, ok := t.subsystems[env["SUBSYSTEM"]]
	if !ok {
		return Notification{}, false
	}

	devpath := env["DEVPATH"]
	n := Notification{
		Action:  Action(env["ACTION"]),
		Class:   class,
		DevPath: devpath,
	}
	if name := env["DEVNAME"]; name != "" {
		if filepath.IsAbs(name) {
			n.Port = name
		} else {
			n.Port = "/dev/" + name
		}
	}

	switch n.Action {
	case ActionAdd:
		if id, ok := lookupUSBIdentity(t.sysfsRoot, devpath); ok {
			t.known[devpath] = id
			n.VendorID, n.ProductID = id.VendorID, id.ProductID
		}
	case ActionRemove:
		if id, ok := t.known[devpath]; ok {
			delete(t.known, devpath)
			n.VendorID, n.ProductID = id.VendorID, id.ProductID
		}
	default:
		if id, ok := t.known[devpath]; ok {
			n.VendorID, n.ProductID = id.VendorID, id.ProductID
		}
	}
	return n, true
}

// enumerate reports every device currently present in the configured
// subsystems as an add.
func (t *ueventTranslator) enumerate() ([]Notification, error) {
	root, err := filepath.EvalSymlinks(t.sysfsRoot)
	if err != nil {
		return nil, err
	}

	var out []Notification
	for subsystem := range t.subsystems {
		classDir := filepath.Join(root, "class", subsystem)
		entries, err := os.ReadDir(classDir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, e := range entries {
			target, err := filepath.EvalSymlinks(filepath.Join(classDir, e.Name()))
			if err != nil {
				continue
			}
			rel, err := filepath.Rel(root, target)
			if err != nil || strings.HasPrefix(rel, "..") {
				continue
			}
			env := readUeventFile(filepath.Join(target, "uevent"))
			env["ACTION"] = string(ActionAdd)
			env["SUBSYSTEM"] = subsystem
			env["DEVPATH"] = "/" + filepath.ToSlash(rel)
			if env["DEVNAME"] == "" {
				env["DEVNAME"] = e.Name()
			}
			if n, ok := t.translate(env); ok && n.VendorID != "" {
				out = append(out, n)
			}
		}
	}
	return out, nil
}

// lookupUSBIdentity walks from devpath towards the sysfs root looking for the
// owning USB device.
func lookupUSBIdentity(sysfsRoot, devpath string) (Identity, bool) {
	root := filepath.Clean(sysfsRoot)
	dir := filepath.Join(root, filepath.FromSlash(devpath))
	for dir != root && strings.HasPrefix(dir, root) {
		vid, verr := os.ReadFile(filepath.Join(dir, "idVendor"))
		pid, perr := os.ReadFile(filepath.Join(dir, "idProduct"))
		if verr == nil && perr == nil {
			id := Identity{
				VendorID:  canonicalHexID(string(vid)),
				ProductID: canonicalHexID(string(pid)),
			}
			if id.VendorID != "" && id.ProductID != "" {
				return id, true
			}
		}

		if product := readUeventFile(filepath.Join(dir, "uevent"))["PRODUCT"]; product != "" {
			// PRODUCT=vid/pid/bcdDevice, hex without leading zeros
			fields := strings.Split(product, "/")
			if len(fields) >= 2 {
				id := Identity{
					VendorID:  canonicalHexID(fields[0]),
					ProductID: canonicalHexID(fields[1]),
				}
				if id.VendorID != "" && id.ProductID != "" {
					return id, true
				}
			}
		}

		dir = filepath.Dir(dir)
	}
	return Identity{}, false
}

func readUeventFile(path string) map[string]string {
	env := make(map[string]string)
	f, err := os.Open(path)
	if err != nil {
		return env
	}
	defer func() {
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		k, v, ok := strings.Cut(scanner.Text(), "=")
		if ok {
			env[k] = v
		}
	}
	return env
}
