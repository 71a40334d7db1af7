package ch9329

import (
	"fmt"
	"time"

	"github.com/allape/kvmbridge/kvm/keymouse"
)

const (
	DefaultWidth  = 1920
	DefaultHeight = 1080
)

type MouseOptions struct {
	// Width and Height declare the target screen SendAbsolute coordinates
	// refer to.
	Width  int
	Height int
	// Clamp pulls out-of-range coordinates to the nearest edge instead of
	// rejecting them.
	Clamp bool
	// AckTimeout, when positive, makes every report an acknowledged send.
	AckTimeout time.Duration
}

type Mouse struct {
	commander  keymouse.Commander
	width      int
	height     int
	clamp      bool
	ackTimeout time.Duration
}

func NewMouse(c keymouse.Commander, opts MouseOptions) *Mouse {
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	return &Mouse{
		commander:  c,
		width:      opts.Width,
		height:     opts.Height,
		clamp:      opts.Clamp,
		ackTimeout: opts.AckTimeout,
	}
}

// SendAbsolute positions the pointer in declared screen coordinates,
// scaled onto the chip's absolute space.
func (m *Mouse) SendAbsolute(x, y int, buttons keymouse.Button) error {
	fx, ok := fit(x, m.width, m.clamp)
	if !ok {
		return fmt.Errorf("%w: x=%d outside 0..%d", keymouse.ErrOutOfRange, x, m.width-1)
	}
	fy, ok := fit(y, m.height, m.clamp)
	if !ok {
		return fmt.Errorf("%w: y=%d outside 0..%d", keymouse.ErrOutOfRange, y, m.height-1)
	}
	xs := scale(fx, m.width)
	ys := scale(fy, m.height)
	payload := []byte{
		subAbsolute, byte(buttons),
		byte(xs), byte(xs >> 8),
		byte(ys), byte(ys >> 8),
		0x00,
	}
	return send(m.commander, m.ackTimeout, "mouse-absolute", payload)
}

// SendRelative nudges the pointer. Deltas clamp to the report's one-byte
// signed range.
func (m *Mouse) SendRelative(dx, dy int, buttons keymouse.Button) error {
	payload := []byte{subRelative, byte(buttons), relByte(dx), relByte(dy), 0x00}
	return send(m.commander, m.ackTimeout, "mouse-relative", payload)
}

// SendWheel scrolls by delta notches, positive away from the user.
func (m *Mouse) SendWheel(delta int) error {
	payload := []byte{subRelative, 0x00, 0x00, 0x00, relByte(delta)}
	return send(m.commander, m.ackTimeout, "mouse-relative", payload)
}

// Click presses and releases a button in place.
func (m *Mouse) Click(button keymouse.Button) error {
	if err := m.SendRelative(0, 0, button); err != nil {
		return err
	}
	return m.SendRelative(0, 0, keymouse.ButtonNone)
}

func fit(v, limit int, clamp bool) (int, bool) {
	if v >= 0 && v < limit {
		return v, true
	}
	if !clamp {
		return 0, false
	}
	if v < 0 {
		return 0, true
	}
	return limit - 1, true
}

// scale maps a screen coordinate onto 0..absMax, edges inclusive.
func scale(v, limit int) int {
	if limit <= 1 {
		return 0
	}
	return v * absMax / (limit - 1)
}

// relByte encodes a clamped delta the way the chip reads negatives.
func relByte(v int) byte {
	if v > relMax {
		v = relMax
	}
	if v < -relMax {
		v = -relMax
	}
	if v < 0 {
		v += 256
	}
	return byte(v)
}
