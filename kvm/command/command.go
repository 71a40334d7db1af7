// Package command is the registry of operations the chip understands:
// opcodes, payload shapes, and response semantics. It is pure data over
// kvm/frame and owns no I/O.
package command

import (
	"errors"
	"fmt"
	"slices"

	"github.com/allape/kvmbridge/kvm/frame"
)

const (
	CodeGetInfo       byte = 0x01
	CodeKeyboard      byte = 0x02
	CodeMedia         byte = 0x03
	CodeMouseAbsolute byte = 0x04
	CodeMouseRelative byte = 0x05
	CodeGetParaCfg    byte = 0x08
	CodeSetParaCfg    byte = 0x09
	CodeSetUSBString  byte = 0x0B
	CodeSetDefaultCfg byte = 0x0C
	CodeReset         byte = 0x0F
)

// Responses echo the request opcode with the response bit set; the chip
// raises both high bits when it rejects a frame outright.
const (
	responseBit byte = 0x80
	errorBits   byte = 0xC0
)

var (
	ErrUnknownCommand   = errors.New("command: unknown command")
	ErrInvalidArguments = errors.New("command: invalid arguments")
	ErrBadResponse      = errors.New("command: malformed response")
)

// VariablePayload marks descriptors whose payload length is not fixed.
const VariablePayload = -1

// Descriptor describes one chip operation. Acked reports whether the chip
// always answers; keyboard and mouse reports are acked only when the chip
// configuration asks for it, so senders must not rely on a reply.
type Descriptor struct {
	Name        string
	Code        byte
	PayloadSize int
	Acked       bool
}

var registry = []Descriptor{
	{Name: "get-info", Code: CodeGetInfo, PayloadSize: 0, Acked: true},
	{Name: "keyboard-report", Code: CodeKeyboard, PayloadSize: 8},
	{Name: "media-report", Code: CodeMedia, PayloadSize: VariablePayload},
	{Name: "mouse-absolute", Code: CodeMouseAbsolute, PayloadSize: 7},
	{Name: "mouse-relative", Code: CodeMouseRelative, PayloadSize: 5},
	{Name: "get-parameter-config", Code: CodeGetParaCfg, PayloadSize: 0, Acked: true},
	{Name: "set-parameter-config", Code: CodeSetParaCfg, PayloadSize: ParaCfgSize, Acked: true},
	{Name: "set-usb-string", Code: CodeSetUSBString, PayloadSize: VariablePayload, Acked: true},
	{Name: "restore-factory-defaults", Code: CodeSetDefaultCfg, PayloadSize: 0, Acked: true},
	{Name: "reset", Code: CodeReset, PayloadSize: 0, Acked: true},
}

var (
	byName = map[string]Descriptor{}
	byCode = map[byte]Descriptor{}
)

func init() {
	for _, d := range registry {
		byName[d.Name] = d
		byCode[d.Code] = d
	}
}

// Get looks a descriptor up by name.
func Get(name string) (Descriptor, error) {
	d, ok := byName[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	return d, nil
}

// ByCode looks a descriptor up by opcode, ignoring response and error bits,
// so it resolves inbound frames as well as outbound ones.
func ByCode(code byte) (Descriptor, bool) {
	d, ok := byCode[code&^errorBits]
	return d, ok
}

// Names lists every registered command name, sorted.
func Names() []string {
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Build assembles a frame for the named command, validating the payload
// shape against the descriptor.
func Build(name string, payload []byte) (*frame.Frame, error) {
	d, err := Get(name)
	if err != nil {
		return nil, err
	}
	if d.PayloadSize != VariablePayload && len(payload) != d.PayloadSize {
		return nil, fmt.Errorf("%w: %s takes %d payload bytes, got %d",
			ErrInvalidArguments, name, d.PayloadSize, len(payload))
	}
	if len(payload) > frame.MaxPayload {
		return nil, fmt.Errorf("%w: %s payload is %d bytes, limit is %d",
			ErrInvalidArguments, name, len(payload), frame.MaxPayload)
	}
	return frame.New(d.Code, payload), nil
}

// IsResponse reports whether code is an inbound answer rather than a request.
func IsResponse(code byte) bool {
	return code&responseBit != 0
}

// IsError reports whether code is the chip's rejection echo.
func IsError(code byte) bool {
	return code&errorBits == errorBits
}

// RespondsTo reports whether an inbound opcode answers the given request
// opcode, on either the success or the rejection path.
func RespondsTo(request, inbound byte) bool {
	return inbound == request|responseBit || inbound == request|errorBits
}
