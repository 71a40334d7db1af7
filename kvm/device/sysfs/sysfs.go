// Package sysfs enumerates bridge devices by walking the Linux USB
// sysfs tree, without talking to the devices themselves.
package sysfs

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/allape/gogger"
	"github.com/allape/kvmbridge/kvm/device"
)

var l = gogger.New("kvm.device.sysfs")

const (
	DefaultSysfsRoot = "/sys/bus/usb/devices"
	DefaultDevRoot   = "/dev"
)

// Enumerator discovers devices from sysfs attribute files. The roots are
// settable so tests can point it at a fixture tree.
type Enumerator struct {
	SysfsRoot string
	DevRoot   string
}

func New() *Enumerator {
	return &Enumerator{}
}

func (e *Enumerator) sysfsRoot() string {
	if e.SysfsRoot != "" {
		return e.SysfsRoot
	}
	return DefaultSysfsRoot
}

func (e *Enumerator) devRoot() string {
	if e.DevRoot != "" {
		return e.DevRoot
	}
	return DefaultDevRoot
}

// Enumerate walks the device directory and assembles one record per
// capture composite, attaching the serial adapter that shares its hub
// port. A serial adapter with no capture sibling gets a record of its
// own so callers still see it come and go.
func (e *Enumerator) Enumerate(f device.Filter) ([]device.Record, error) {
	f = f.Normalize()
	entries, err := os.ReadDir(e.sysfsRoot())
	if err != nil {
		return nil, err
	}

	type anchor struct {
		rec      device.Record
		mainPort string
	}
	type serialNode struct {
		portChain string
		mainPort  string
		port      string
	}

	var anchors []anchor
	var serials []serialNode

	for _, entry := range entries {
		name := entry.Name()
		// Root hubs are named usb1, usb2, ... and interface entries
		// carry a colon. Devices look like 1-2 or 1-5.1.
		if strings.HasPrefix(name, "usb") || strings.Contains(name, ":") {
			continue
		}
		devPath := filepath.Join(e.sysfsRoot(), name)
		vid, err := readAttr(filepath.Join(devPath, "idVendor"))
		if err != nil {
			l.Verbose().Printf("Skipping %s: %v", name, err)
			continue
		}
		pid, err := readAttr(filepath.Join(devPath, "idProduct"))
		if err != nil {
			l.Verbose().Printf("Skipping %s: %v", name, err)
			continue
		}
		switch {
		case vid == f.HIDVID && pid == f.HIDPID:
			rec := device.Record{PortChain: e.portChain(devPath, name)}
			e.fillEndpoints(devPath, name, &rec)
			anchors = append(anchors, anchor{rec: rec, mainPort: mainPort(name)})
		case vid == f.SerialVID && pid == f.SerialPID:
			port := e.findTTY(devPath, name)
			if port == "" {
				l.Verbose().Printf("Serial adapter %s has no tty node", name)
				continue
			}
			serials = append(serials, serialNode{
				portChain: e.portChain(devPath, name),
				mainPort:  mainPort(name),
				port:      port,
			})
		}
	}

	var records []device.Record
	used := make([]bool, len(serials))
	for _, a := range anchors {
		for i, s := range serials {
			if used[i] || s.mainPort != a.mainPort {
				continue
			}
			a.rec.SerialPort = s.port
			used[i] = true
			break
		}
		records = append(records, a.rec)
	}
	for i, s := range serials {
		if used[i] {
			continue
		}
		records = append(records, device.Record{PortChain: s.portChain, SerialPort: s.port})
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].PortChain < records[j].PortChain
	})
	return records, nil
}

// portChain renders the device position as usb<bus>-<name>, e.g.
// usb1-1-5.1 for device 1-5.1 on bus 1.
func (e *Enumerator) portChain(devPath, name string) string {
	bus, err := readAttr(filepath.Join(devPath, "busnum"))
	if err != nil {
		return name
	}
	return "usb" + bus + "-" + name
}

// mainPort is the device name up to the first sub-port: both children
// of a hub at 1-5, such as 1-5.1 and 1-5.2, map to 1-5.
func mainPort(name string) string {
	head, _, _ := strings.Cut(name, ".")
	return head
}

// fillEndpoints scans the interface directories of a device for the
// class nodes the bridge exposes: hidraw, video4linux and sound.
func (e *Enumerator) fillEndpoints(devPath, name string, rec *device.Record) {
	entries, err := os.ReadDir(devPath)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), name+":") {
			continue
		}
		ifacePath := filepath.Join(devPath, entry.Name())
		if rec.HIDPath == "" {
			rec.HIDPath = e.findHidraw(ifacePath)
		}
		if rec.CameraPath == "" {
			rec.CameraPath = e.findVideo(ifacePath)
		}
		if rec.AudioPath == "" {
			rec.AudioPath = e.findAudio(ifacePath)
		}
	}
}

// findHidraw locates the hidraw class directory, which sits either
// directly under the interface or below a 0003:VID:PID.N child created
// by the hid bus.
func (e *Enumerator) findHidraw(ifacePath string) string {
	if node := firstEntry(filepath.Join(ifacePath, "hidraw"), "hidraw"); node != "" {
		return filepath.Join(e.devRoot(), node)
	}
	entries, err := os.ReadDir(ifacePath)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), "0003:") {
			continue
		}
		if node := firstEntry(filepath.Join(ifacePath, entry.Name(), "hidraw"), "hidraw"); node != "" {
			return filepath.Join(e.devRoot(), node)
		}
	}
	return ""
}

func (e *Enumerator) findVideo(ifacePath string) string {
	if node := firstEntry(filepath.Join(ifacePath, "video4linux"), "video"); node != "" {
		return filepath.Join(e.devRoot(), node)
	}
	return ""
}

// findAudio picks a PCM node under the interface's sound card,
// preferring the capture direction.
func (e *Enumerator) findAudio(ifacePath string) string {
	soundPath := filepath.Join(ifacePath, "sound")
	card := firstEntry(soundPath, "card")
	if card == "" {
		return ""
	}
	entries, err := os.ReadDir(filepath.Join(soundPath, card))
	if err != nil {
		return ""
	}
	var fallback string
	for _, entry := range entries {
		n := entry.Name()
		if !strings.HasPrefix(n, "pcmC") {
			continue
		}
		if strings.HasSuffix(n, "c") {
			return filepath.Join(e.devRoot(), "snd", n)
		}
		if fallback == "" {
			fallback = n
		}
	}
	if fallback == "" {
		return ""
	}
	return filepath.Join(e.devRoot(), "snd", fallback)
}

// findTTY locates the tty node of a serial adapter. Depending on the
// kernel the node appears directly in the interface directory or under
// a tty subdirectory.
func (e *Enumerator) findTTY(devPath, name string) string {
	ifaces, err := os.ReadDir(devPath)
	if err != nil {
		return ""
	}
	for _, entry := range ifaces {
		if !strings.HasPrefix(entry.Name(), name+":") {
			continue
		}
		ifacePath := filepath.Join(devPath, entry.Name())
		children, err := os.ReadDir(ifacePath)
		if err != nil {
			continue
		}
		for _, child := range children {
			n := child.Name()
			if strings.HasPrefix(n, "ttyUSB") || strings.HasPrefix(n, "ttyACM") {
				return filepath.Join(e.devRoot(), n)
			}
			if n == "tty" {
				if node := firstEntry(filepath.Join(ifacePath, "tty"), "tty"); node != "" {
					return filepath.Join(e.devRoot(), node)
				}
			}
		}
	}
	return ""
}

func firstEntry(dir, prefix string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), prefix) {
			return entry.Name()
		}
	}
	return ""
}

func readAttr(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(string(data))), nil
}
