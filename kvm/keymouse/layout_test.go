package keymouse

import "testing"

func TestUSLayoutCoversPrintableASCII(t *testing.T) {
	layout := USLayout()
	for r := rune(0x20); r <= 0x7E; r++ {
		if _, ok := layout[r]; !ok {
			t.Fatalf("Expected %q in the US layout", r)
		}
	}
	for _, r := range "\n\t" {
		if _, ok := layout[r]; !ok {
			t.Fatalf("Expected %q in the US layout", r)
		}
	}
}

func TestUSLayoutStrokes(t *testing.T) {
	cases := []struct {
		r    rune
		code byte
		mods Modifier
	}{
		{'a', 0x04, ModNone},
		{'z', 0x1D, ModNone},
		{'A', 0x04, ModLeftShift},
		{'1', 0x1E, ModNone},
		{'0', 0x27, ModNone},
		{'!', 0x1E, ModLeftShift},
		{')', 0x27, ModLeftShift},
		{' ', 0x2C, ModNone},
		{'\n', 0x28, ModNone},
		{'\t', 0x2B, ModNone},
		{'~', 0x35, ModLeftShift},
		{'?', 0x38, ModLeftShift},
		{'\\', 0x31, ModNone},
	}
	for _, c := range cases {
		s, ok := USLayout()[c.r]
		if !ok {
			t.Fatalf("Expected %q in the US layout", c.r)
		}
		if s.Code != c.code || s.Mods != c.mods {
			t.Fatalf("Expected %q to be %02X/%02X, got %02X/%02X", c.r, c.code, c.mods, s.Code, s.Mods)
		}
	}
}

func TestKeyCode(t *testing.T) {
	code, mods, ok := KeyCode("enter")
	if !ok || code != 0x28 || mods != ModNone {
		t.Fatalf("Expected enter to be 28, got %02X/%02X/%v", code, mods, ok)
	}
	code, _, ok = KeyCode("F5")
	if !ok || code != 0x3E {
		t.Fatalf("Expected F5 to be 3E, got %02X/%v", code, ok)
	}
	code, mods, ok = KeyCode("A")
	if !ok || code != 0x04 || mods != ModLeftShift {
		t.Fatalf("Expected A to be shift+04, got %02X/%02X/%v", code, mods, ok)
	}
	if _, _, ok = KeyCode("hyperkey"); ok {
		t.Fatal("Expected hyperkey to be unknown")
	}
}

func TestParseModifiers(t *testing.T) {
	mods, err := ParseModifiers([]string{"Ctrl", "shift"})
	if err != nil {
		t.Fatal(err)
	}
	if mods != ModLeftCtrl|ModLeftShift {
		t.Fatalf("Expected 03, got %02X", mods)
	}
	if _, err = ParseModifiers([]string{"hyper"}); err == nil {
		t.Fatal("Expected an error for an unknown modifier")
	}
}

func TestParseButtons(t *testing.T) {
	buttons, err := ParseButtons([]string{"left", "Middle"})
	if err != nil {
		t.Fatal(err)
	}
	if buttons != ButtonLeft|ButtonMiddle {
		t.Fatalf("Expected 05, got %02X", buttons)
	}
	if _, err = ParseButtons([]string{"fourth"}); err == nil {
		t.Fatal("Expected an error for an unknown button")
	}
}
