package frame

import (
	"errors"
	"fmt"
)

// Header marks the start of every frame on the wire.
var Header = [2]byte{0x57, 0xAB}

// DefaultAddress is the chip address used unless a frame overrides it.
const DefaultAddress byte = 0x00

// MaxPayload is the largest payload a single frame can carry,
// limited by the one-byte length field.
const MaxPayload = 255

// header(2) + address + command + length + checksum
const overhead = 6

var (
	ErrPayloadTooLarge = errors.New("frame: payload too large")
	ErrIncomplete      = errors.New("frame: incomplete")
	ErrChecksum        = errors.New("frame: checksum mismatch")
	ErrHeader          = errors.New("frame: bad header")
)

// Frame is one unit on the serial wire:
// header, address, command, length, payload, checksum.
type Frame struct {
	Address byte
	Command byte
	Payload []byte
}

// New returns a frame for the default chip address.
func New(command byte, payload []byte) *Frame {
	return &Frame{Address: DefaultAddress, Command: command, Payload: payload}
}

func (f *Frame) String() string {
	return fmt.Sprintf("addr=%02X cmd=%02X payload=[% 02X]", f.Address, f.Command, f.Payload)
}

// Sum is the frame checksum: the byte sum of data, truncated to one byte.
func Sum(data []byte) byte {
	var s byte
	for _, b := range data {
		s += b
	}
	return s
}

// Encode serializes the frame, appending the checksum.
func (f *Frame) Encode() ([]byte, error) {
	if len(f.Payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(f.Payload))
	}
	buf := make([]byte, 0, overhead+len(f.Payload))
	buf = append(buf, Header[0], Header[1], f.Address, f.Command, byte(len(f.Payload)))
	buf = append(buf, f.Payload...)
	buf = append(buf, Sum(buf))
	return buf, nil
}

// Decode parses one frame at the start of buf and returns it together with
// the number of bytes consumed. It fails with ErrHeader when buf does not
// start with the header signature, ErrIncomplete when more bytes are needed,
// and ErrChecksum when the trailing sum does not match.
func Decode(buf []byte) (*Frame, int, error) {
	if len(buf) == 0 {
		return nil, 0, ErrIncomplete
	}
	if buf[0] != Header[0] {
		return nil, 0, ErrHeader
	}
	if len(buf) > 1 && buf[1] != Header[1] {
		return nil, 0, ErrHeader
	}
	if len(buf) < 5 {
		return nil, 0, ErrIncomplete
	}
	total := overhead + int(buf[4])
	if len(buf) < total {
		return nil, 0, ErrIncomplete
	}
	if Sum(buf[:total-1]) != buf[total-1] {
		return nil, 0, ErrChecksum
	}
	f := &Frame{
		Address: buf[2],
		Command: buf[3],
		Payload: append([]byte(nil), buf[5:total-1]...),
	}
	return f, total, nil
}

// Scan decodes the first complete frame in buf, skipping leading noise.
// The returned count is always safe to discard from the front of buf:
// on success it covers the noise plus the frame, on ErrIncomplete it covers
// noise that can never start a frame, and on ErrChecksum it advances a
// single byte past the corrupt header so a valid successor frame is still
// found even when the corrupt length field lies.
func Scan(buf []byte) (*Frame, int, error) {
	for i := 0; i < len(buf); i++ {
		if buf[i] != Header[0] {
			continue
		}
		f, n, err := Decode(buf[i:])
		switch {
		case err == nil:
			return f, i + n, nil
		case errors.Is(err, ErrIncomplete):
			return nil, i, ErrIncomplete
		case errors.Is(err, ErrChecksum):
			return nil, i + 1, ErrChecksum
		}
		// first header byte without the second, keep scanning
	}
	return nil, len(buf), ErrIncomplete
}
