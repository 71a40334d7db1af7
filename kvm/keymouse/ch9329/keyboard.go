package ch9329

import (
	"fmt"
	"time"

	"github.com/allape/kvmbridge/kvm/keymouse"
)

type KeyboardOptions struct {
	// Layout translates SendText characters; nil selects the US layout.
	Layout keymouse.Layout
	// CharDelay paces SendText for targets that drop back-to-back reports.
	CharDelay time.Duration
	// AckTimeout, when positive, makes every report an acknowledged send.
	AckTimeout time.Duration
}

type Keyboard struct {
	commander  keymouse.Commander
	layout     keymouse.Layout
	charDelay  time.Duration
	ackTimeout time.Duration
}

func NewKeyboard(c keymouse.Commander, opts KeyboardOptions) *Keyboard {
	if opts.Layout == nil {
		opts.Layout = keymouse.USLayout()
	}
	return &Keyboard{
		commander:  c,
		layout:     opts.Layout,
		charDelay:  opts.CharDelay,
		ackTimeout: opts.AckTimeout,
	}
}

// report sends one keyboard frame: modifier, reserved byte, six key slots.
func (k *Keyboard) report(mods keymouse.Modifier, codes []byte) error {
	payload := make([]byte, 8)
	payload[0] = byte(mods)
	for i, code := range codes {
		if i >= keySlots {
			break
		}
		payload[2+i] = code
	}
	return send(k.commander, k.ackTimeout, "keyboard-report", payload)
}

func (k *Keyboard) SendKeyDown(code byte, mods keymouse.Modifier) error {
	return k.report(mods, []byte{code})
}

// SendKeyUp releases everything, modifiers included.
func (k *Keyboard) SendKeyUp() error {
	return k.report(keymouse.ModNone, nil)
}

func (k *Keyboard) SendKeyPress(code byte, mods keymouse.Modifier) error {
	if err := k.SendKeyDown(code, mods); err != nil {
		return err
	}
	return k.SendKeyUp()
}

// SendKeyCombination presses up to six keys in a single report, then
// releases. Extra keys beyond the report's slots are ignored.
func (k *Keyboard) SendKeyCombination(mods keymouse.Modifier, codes ...byte) error {
	if len(codes) > keySlots {
		codes = codes[:keySlots]
	}
	if err := k.report(mods, codes); err != nil {
		return err
	}
	return k.SendKeyUp()
}

// SendText types text on the target, one press and one release per
// character, in order.
func (k *Keyboard) SendText(text string) error {
	for _, r := range text {
		stroke, ok := k.layout[r]
		if !ok {
			return fmt.Errorf("%w: %q", keymouse.ErrUnsupportedCharacter, r)
		}
		if err := k.SendKeyPress(stroke.Code, stroke.Mods); err != nil {
			return err
		}
		if k.charDelay > 0 {
			time.Sleep(k.charDelay)
		}
	}
	return nil
}
