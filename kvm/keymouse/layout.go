package keymouse

import (
	"fmt"
	"strings"
)

// Stroke is the key code and modifier set that produces one character.
type Stroke struct {
	Code byte
	Mods Modifier
}

// Layout maps characters to strokes.
type Layout map[rune]Stroke

// usLayout covers printable ASCII plus newline and tab for a US keyboard
// on the target.
var usLayout = Layout{
	'a': {0x04, ModNone}, 'b': {0x05, ModNone}, 'c': {0x06, ModNone},
	'd': {0x07, ModNone}, 'e': {0x08, ModNone}, 'f': {0x09, ModNone},
	'g': {0x0A, ModNone}, 'h': {0x0B, ModNone}, 'i': {0x0C, ModNone},
	'j': {0x0D, ModNone}, 'k': {0x0E, ModNone}, 'l': {0x0F, ModNone},
	'm': {0x10, ModNone}, 'n': {0x11, ModNone}, 'o': {0x12, ModNone},
	'p': {0x13, ModNone}, 'q': {0x14, ModNone}, 'r': {0x15, ModNone},
	's': {0x16, ModNone}, 't': {0x17, ModNone}, 'u': {0x18, ModNone},
	'v': {0x19, ModNone}, 'w': {0x1A, ModNone}, 'x': {0x1B, ModNone},
	'y': {0x1C, ModNone}, 'z': {0x1D, ModNone},

	'A': {0x04, ModLeftShift}, 'B': {0x05, ModLeftShift}, 'C': {0x06, ModLeftShift},
	'D': {0x07, ModLeftShift}, 'E': {0x08, ModLeftShift}, 'F': {0x09, ModLeftShift},
	'G': {0x0A, ModLeftShift}, 'H': {0x0B, ModLeftShift}, 'I': {0x0C, ModLeftShift},
	'J': {0x0D, ModLeftShift}, 'K': {0x0E, ModLeftShift}, 'L': {0x0F, ModLeftShift},
	'M': {0x10, ModLeftShift}, 'N': {0x11, ModLeftShift}, 'O': {0x12, ModLeftShift},
	'P': {0x13, ModLeftShift}, 'Q': {0x14, ModLeftShift}, 'R': {0x15, ModLeftShift},
	'S': {0x16, ModLeftShift}, 'T': {0x17, ModLeftShift}, 'U': {0x18, ModLeftShift},
	'V': {0x19, ModLeftShift}, 'W': {0x1A, ModLeftShift}, 'X': {0x1B, ModLeftShift},
	'Y': {0x1C, ModLeftShift}, 'Z': {0x1D, ModLeftShift},

	'1': {0x1E, ModNone}, '2': {0x1F, ModNone}, '3': {0x20, ModNone},
	'4': {0x21, ModNone}, '5': {0x22, ModNone}, '6': {0x23, ModNone},
	'7': {0x24, ModNone}, '8': {0x25, ModNone}, '9': {0x26, ModNone},
	'0': {0x27, ModNone},

	'!': {0x1E, ModLeftShift}, '@': {0x1F, ModLeftShift}, '#': {0x20, ModLeftShift},
	'$': {0x21, ModLeftShift}, '%': {0x22, ModLeftShift}, '^': {0x23, ModLeftShift},
	'&': {0x24, ModLeftShift}, '*': {0x25, ModLeftShift}, '(': {0x26, ModLeftShift},
	')': {0x27, ModLeftShift},

	'\n': {0x28, ModNone},
	'\t': {0x2B, ModNone},
	' ':  {0x2C, ModNone},

	'-':  {0x2D, ModNone}, '_': {0x2D, ModLeftShift},
	'=':  {0x2E, ModNone}, '+': {0x2E, ModLeftShift},
	'[':  {0x2F, ModNone}, '{': {0x2F, ModLeftShift},
	']':  {0x30, ModNone}, '}': {0x30, ModLeftShift},
	'\\': {0x31, ModNone}, '|': {0x31, ModLeftShift},
	';':  {0x33, ModNone}, ':': {0x33, ModLeftShift},
	'\'': {0x34, ModNone}, '"': {0x34, ModLeftShift},
	'`':  {0x35, ModNone}, '~': {0x35, ModLeftShift},
	',':  {0x36, ModNone}, '<': {0x36, ModLeftShift},
	'.':  {0x37, ModNone}, '>': {0x37, ModLeftShift},
	'/':  {0x38, ModNone}, '?': {0x38, ModLeftShift},
}

// USLayout is the default character layout.
func USLayout() Layout {
	return usLayout
}

// keyNames maps named keys to raw HID codes for combinations and the API.
var keyNames = map[string]byte{
	"enter": 0x28, "return": 0x28,
	"esc": 0x29, "escape": 0x29,
	"backspace": 0x2A,
	"tab":       0x2B,
	"space":     0x2C,
	"capslock":  0x39,
	"f1":        0x3A, "f2": 0x3B, "f3": 0x3C, "f4": 0x3D,
	"f5": 0x3E, "f6": 0x3F, "f7": 0x40, "f8": 0x41,
	"f9": 0x42, "f10": 0x43, "f11": 0x44, "f12": 0x45,
	"insert": 0x49, "home": 0x4A, "pageup": 0x4B,
	"delete": 0x4C, "end": 0x4D, "pagedown": 0x4E,
	"right": 0x4F, "left": 0x50, "down": 0x51, "up": 0x52,
}

// KeyCode resolves a named key, falling back to single characters through
// the US layout.
func KeyCode(name string) (byte, Modifier, bool) {
	if code, ok := keyNames[strings.ToLower(name)]; ok {
		return code, ModNone, true
	}
	if runes := []rune(name); len(runes) == 1 {
		if s, ok := usLayout[runes[0]]; ok {
			return s.Code, s.Mods, true
		}
	}
	return 0, ModNone, false
}

var modifierNames = map[string]Modifier{
	"ctrl": ModLeftCtrl, "control": ModLeftCtrl,
	"shift": ModLeftShift,
	"alt":   ModLeftAlt,
	"gui":   ModLeftGUI, "win": ModLeftGUI, "meta": ModLeftGUI, "cmd": ModLeftGUI,
	"rctrl": ModRightCtrl, "rshift": ModRightShift, "ralt": ModRightAlt, "rgui": ModRightGUI,
}

// ParseModifiers folds modifier names into a bitmask.
func ParseModifiers(names []string) (Modifier, error) {
	var mods Modifier
	for _, name := range names {
		m, ok := modifierNames[strings.ToLower(name)]
		if !ok {
			return ModNone, fmt.Errorf("keymouse: unknown modifier %q", name)
		}
		mods |= m
	}
	return mods, nil
}

var buttonNames = map[string]Button{
	"left": ButtonLeft, "right": ButtonRight, "middle": ButtonMiddle,
}

// ParseButton resolves a mouse button name.
func ParseButton(name string) (Button, error) {
	b, ok := buttonNames[strings.ToLower(name)]
	if !ok {
		return ButtonNone, fmt.Errorf("keymouse: unknown button %q", name)
	}
	return b, nil
}

// ParseButtons folds button names into a bitmask.
func ParseButtons(names []string) (Button, error) {
	var buttons Button
	for _, name := range names {
		b, err := ParseButton(name)
		if err != nil {
			return ButtonNone, err
		}
		buttons |= b
	}
	return buttons, nil
}
