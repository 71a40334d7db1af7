package command

import (
	"encoding/binary"
	"fmt"

	"github.com/allape/kvmbridge/kvm/frame"
)

// Ack status codes carried in single-byte response payloads.
const (
	StatusSuccess      byte = 0x00
	StatusTimeout      byte = 0xE1
	StatusBadHeader    byte = 0xE2
	StatusBadCommand   byte = 0xE3
	StatusBadChecksum  byte = 0xE4
	StatusBadParameter byte = 0xE5
	StatusFailed       byte = 0xE6
)

// StatusText describes an ack status code.
func StatusText(status byte) string {
	switch status {
	case StatusSuccess:
		return "success"
	case StatusTimeout:
		return "serial receive timeout"
	case StatusBadHeader:
		return "bad frame header"
	case StatusBadCommand:
		return "unknown command"
	case StatusBadChecksum:
		return "checksum mismatch"
	case StatusBadParameter:
		return "bad parameter"
	case StatusFailed:
		return "operation failed"
	}
	return fmt.Sprintf("status 0x%02X", status)
}

// StatusError is a non-success ack from the chip.
type StatusError struct {
	Command byte
	Status  byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("command: %02X rejected: %s", e.Command, StatusText(e.Status))
}

// AckStatus extracts the status byte from a single-byte ack payload.
func AckStatus(f *frame.Frame) (byte, bool) {
	if len(f.Payload) != 1 {
		return 0, false
	}
	return f.Payload[0], true
}

// CheckAck returns a StatusError when f is an ack carrying a non-success
// status, and nil for success acks and non-ack frames.
func CheckAck(f *frame.Frame) error {
	status, ok := AckStatus(f)
	if !ok || status == StatusSuccess {
		return nil
	}
	return &StatusError{Command: f.Command &^ errorBits, Status: status}
}

// Indicator bits in the chip info block.
const (
	IndicatorNumLock    byte = 0x01
	IndicatorCapsLock   byte = 0x02
	IndicatorScrollLock byte = 0x04
)

// Indicators are the target's lock-key states as reported by the chip.
type Indicators struct {
	NumLock    bool `json:"num_lock"`
	CapsLock   bool `json:"caps_lock"`
	ScrollLock bool `json:"scroll_lock"`
}

// InfoSize is the payload length of a get-info response.
const InfoSize = 8

// ChipInfo is the decoded get-info response.
type ChipInfo struct {
	Version         byte       `json:"version"`
	TargetConnected bool       `json:"target_connected"`
	Indicators      Indicators `json:"indicators"`
}

// VersionString renders the chip firmware version, which the chip reports
// as an offset from 0x30.
func (i ChipInfo) VersionString() string {
	if i.Version >= 0x30 {
		return fmt.Sprintf("1.%d", i.Version-0x30)
	}
	return fmt.Sprintf("0x%02X", i.Version)
}

// ParseInfo decodes a get-info response payload.
func ParseInfo(payload []byte) (*ChipInfo, error) {
	if len(payload) != InfoSize {
		return nil, fmt.Errorf("%w: chip info takes %d bytes, got %d",
			ErrBadResponse, InfoSize, len(payload))
	}
	return &ChipInfo{
		Version:         payload[0],
		TargetConnected: payload[1] != 0,
		Indicators: Indicators{
			NumLock:    payload[2]&IndicatorNumLock != 0,
			CapsLock:   payload[2]&IndicatorCapsLock != 0,
			ScrollLock: payload[2]&IndicatorScrollLock != 0,
		},
	}, nil
}

// ParaCfgSize is the parameter block length used by both
// get-parameter-config and set-parameter-config.
const ParaCfgSize = 50

// Defaults for the leading parameter block fields: composite
// keyboard-and-mouse protocol mode, frame-mode serial flags.
const (
	ModeDefault byte = 0x82
	CfgDefault  byte = 0x80
)

// paraCfgTail is the fixed remainder of the parameter block: packet
// intervals, USB identity, enter keys and filters, byte-exact as the chip
// ships them. Only mode, cfg, address and baud vary between hosts.
var paraCfgTail = []byte{
	0x08, 0x00, 0x00, 0x03, 0x86, 0x1A, 0x29, 0xE1,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x0D, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00,
}

// BuildParaCfg assembles the 50-byte set-parameter-config payload selecting
// the chip address and serial baud rate.
func BuildParaCfg(addr byte, baud uint32) []byte {
	p := make([]byte, 0, ParaCfgSize)
	p = append(p, ModeDefault, CfgDefault, addr)
	p = binary.BigEndian.AppendUint32(p, baud)
	return append(p, paraCfgTail...)
}

// ParaCfg is the decoded parameter block. Raw keeps the full block for
// fields not broken out here.
type ParaCfg struct {
	Mode    byte   `json:"mode"`
	Cfg     byte   `json:"cfg"`
	Address byte   `json:"address"`
	Baud    uint32 `json:"baud"`
	VID     uint16 `json:"vid"`
	PID     uint16 `json:"pid"`
	Raw     []byte `json:"raw"`
}

// ParseParaCfg decodes a get-parameter-config response payload. The baud
// travels big-endian, the USB identity little-endian.
func ParseParaCfg(payload []byte) (*ParaCfg, error) {
	if len(payload) != ParaCfgSize {
		return nil, fmt.Errorf("%w: parameter block takes %d bytes, got %d",
			ErrBadResponse, ParaCfgSize, len(payload))
	}
	return &ParaCfg{
		Mode:    payload[0],
		Cfg:     payload[1],
		Address: payload[2],
		Baud:    binary.BigEndian.Uint32(payload[3:7]),
		VID:     binary.LittleEndian.Uint16(payload[11:13]),
		PID:     binary.LittleEndian.Uint16(payload[13:15]),
		Raw:     append([]byte(nil), payload...),
	}, nil
}
