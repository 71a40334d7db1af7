// Package keymouse defines the keyboard and mouse emulation surface and
// the character layout tables shared by its implementations.
package keymouse

import (
	"errors"
	"time"

	"github.com/allape/kvmbridge/kvm/frame"
)

var (
	ErrUnsupportedCharacter = errors.New("keymouse: unsupported character")
	ErrOutOfRange           = errors.New("keymouse: coordinates out of range")
)

// Modifier is the modifier bitmask of a keyboard report.
type Modifier byte

const (
	ModNone       Modifier = 0x00
	ModLeftCtrl   Modifier = 0x01
	ModLeftShift  Modifier = 0x02
	ModLeftAlt    Modifier = 0x04
	ModLeftGUI    Modifier = 0x08
	ModRightCtrl  Modifier = 0x10
	ModRightShift Modifier = 0x20
	ModRightAlt   Modifier = 0x40
	ModRightGUI   Modifier = 0x80
)

// Button is the button bitmask of a mouse report.
type Button byte

const (
	ButtonNone   Button = 0x00
	ButtonLeft   Button = 0x01
	ButtonRight  Button = 0x02
	ButtonMiddle Button = 0x04
)

// Commander is the slice of the connection manager the drivers use:
// fire-and-forget sends, and acknowledged sends for callers that want
// confirmation.
type Commander interface {
	SendAsync(f *frame.Frame) error
	SendSync(f *frame.Frame, timeout time.Duration) (*frame.Frame, error)
}

// Keyboard emulates the keyboard half of the HID bridge.
type Keyboard interface {
	SendKeyDown(code byte, mods Modifier) error
	SendKeyUp() error
	SendKeyPress(code byte, mods Modifier) error
	SendKeyCombination(mods Modifier, codes ...byte) error
	SendText(text string) error
}

// Mouse emulates the pointer half of the HID bridge.
type Mouse interface {
	SendAbsolute(x, y int, buttons Button) error
	SendRelative(dx, dy int, buttons Button) error
	SendWheel(delta int) error
	Click(button Button) error
}
