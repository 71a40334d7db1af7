// Package device models the bridge hardware as seen from the host: per
// device records, point-in-time snapshots, diffs between them, and a
// polling monitor for hotplug changes.
package device

import (
	"strings"
	"time"
)

// Record is one discovered bridge device and its host-side endpoints.
// Fields are empty when the matching node was not found.
type Record struct {
	PortChain  string `json:"port_chain"`
	SerialPort string `json:"serial_port,omitempty"`
	HIDPath    string `json:"hid_path,omitempty"`
	CameraPath string `json:"camera_path,omitempty"`
	AudioPath  string `json:"audio_path,omitempty"`
}

// Key is the stable identity of a record across polls: the serial port,
// else the HID path, else the camera path, else the port chain.
func (r Record) Key() string {
	switch {
	case r.SerialPort != "":
		return r.SerialPort
	case r.HIDPath != "":
		return r.HIDPath
	case r.CameraPath != "":
		return r.CameraPath
	}
	return r.PortChain
}

// Snapshot is the device population at one instant.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Devices   []Record  `json:"devices"`
}

// Change pairs the two sides of a modified record.
type Change struct {
	Old Record `json:"old"`
	New Record `json:"new"`
}

// Diff is the difference between two snapshots.
type Diff struct {
	Added    []Record `json:"added"`
	Removed  []Record `json:"removed"`
	Modified []Change `json:"modified"`
}

func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// Compare diffs current against previous by record identity. A record
// present on both sides with different endpoints counts as modified.
func Compare(current, previous Snapshot) Diff {
	var diff Diff
	prev := make(map[string]Record, len(previous.Devices))
	for _, r := range previous.Devices {
		prev[r.Key()] = r
	}
	for _, r := range current.Devices {
		old, ok := prev[r.Key()]
		if !ok {
			diff.Added = append(diff.Added, r)
			continue
		}
		delete(prev, r.Key())
		if old != r {
			diff.Modified = append(diff.Modified, Change{Old: old, New: r})
		}
	}
	for _, r := range previous.Devices {
		if _, ok := prev[r.Key()]; ok {
			diff.Removed = append(diff.Removed, r)
		}
	}
	return diff
}

// Filter selects the USB identities that make up one bridge device:
// a serial bridge function and a HID-bearing capture composite.
type Filter struct {
	SerialVID string
	SerialPID string
	HIDVID    string
	HIDPID    string
}

// DefaultFilter matches the stock hardware: a CH340 serial bridge paired
// with an MS2109 capture composite.
func DefaultFilter() Filter {
	return Filter{SerialVID: "1a86", SerialPID: "7523", HIDVID: "534d", HIDPID: "2109"}
}

// Normalize lowercases the hex identities for comparison against sysfs.
func (f Filter) Normalize() Filter {
	return Filter{
		SerialVID: strings.ToLower(f.SerialVID),
		SerialPID: strings.ToLower(f.SerialPID),
		HIDVID:    strings.ToLower(f.HIDVID),
		HIDPID:    strings.ToLower(f.HIDPID),
	}
}

// Enumerator discovers the devices currently attached.
type Enumerator interface {
	Enumerate(f Filter) ([]Record, error)
}

// Capture takes a snapshot through an enumerator.
func Capture(e Enumerator, f Filter) (Snapshot, error) {
	devices, err := e.Enumerate(f)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Timestamp: time.Now(), Devices: devices}, nil
}
