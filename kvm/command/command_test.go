package command

import (
	"bytes"
	"errors"
	"testing"

	"github.com/allape/kvmbridge/kvm/frame"
)

func TestBuildGetInfo(t *testing.T) {
	f, err := Build("get-info", nil)
	if err != nil {
		t.Fatal(err)
	}
	data, err := f.Encode()
	if err != nil {
		t.Fatal(err)
	}
	expected := []byte{0x57, 0xAB, 0x00, 0x01, 0x00, 0x03}
	if !bytes.Equal(data, expected) {
		t.Fatalf("Expected % 02X, got % 02X", expected, data)
	}
}

func TestBuildUnknownCommand(t *testing.T) {
	_, err := Build("get-inf0", nil)
	if !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("Expected ErrUnknownCommand, got %v", err)
	}
}

func TestBuildPayloadShape(t *testing.T) {
	_, err := Build("keyboard-report", []byte{0x00, 0x00, 0x04})
	if !errors.Is(err, ErrInvalidArguments) {
		t.Fatalf("Expected ErrInvalidArguments, got %v", err)
	}

	f, err := Build("keyboard-report", make([]byte, 8))
	if err != nil {
		t.Fatal(err)
	}
	if f.Command != CodeKeyboard {
		t.Fatalf("Expected command %02X, got %02X", CodeKeyboard, f.Command)
	}

	// variable-size commands take what they are given
	if _, err = Build("set-usb-string", []byte{0x00, 0x01, 'a'}); err != nil {
		t.Fatal(err)
	}
}

func TestRespondsTo(t *testing.T) {
	if !RespondsTo(CodeGetInfo, 0x81) {
		t.Fatal("Expected 81 to answer 01")
	}
	if !RespondsTo(CodeGetInfo, 0xC1) {
		t.Fatal("Expected C1 to answer 01")
	}
	if RespondsTo(CodeGetInfo, 0x82) {
		t.Fatal("Expected 82 not to answer 01")
	}
	if RespondsTo(CodeGetInfo, CodeGetInfo) {
		t.Fatal("Expected a request echo not to count as an answer")
	}
}

func TestByCode(t *testing.T) {
	d, ok := ByCode(0x81)
	if !ok || d.Name != "get-info" {
		t.Fatalf("Expected get-info, got %v %v", d, ok)
	}
	d, ok = ByCode(0xC4)
	if !ok || d.Name != "mouse-absolute" {
		t.Fatalf("Expected mouse-absolute, got %v %v", d, ok)
	}
	if _, ok = ByCode(0x3F); ok {
		t.Fatal("Expected 3F to be unknown")
	}
}

func TestCheckAck(t *testing.T) {
	err := CheckAck(frame.New(0xC2, []byte{StatusBadChecksum}))
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Expected StatusError, got %v", err)
	}
	if statusErr.Command != CodeKeyboard || statusErr.Status != StatusBadChecksum {
		t.Fatalf("Expected 02/E4, got %02X/%02X", statusErr.Command, statusErr.Status)
	}

	if err = CheckAck(frame.New(0x82, []byte{StatusSuccess})); err != nil {
		t.Fatalf("Expected success ack to pass, got %v", err)
	}
	if err = CheckAck(frame.New(0x81, make([]byte, InfoSize))); err != nil {
		t.Fatalf("Expected non-ack frame to pass, got %v", err)
	}
}

func TestParseInfo(t *testing.T) {
	info, err := ParseInfo([]byte{0x30, 0x01, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00})
	if err != nil {
		t.Fatal(err)
	}
	if info.VersionString() != "1.0" {
		t.Fatalf("Expected version 1.0, got %s", info.VersionString())
	}
	if !info.TargetConnected {
		t.Fatal("Expected target connected")
	}
	if !info.Indicators.NumLock || !info.Indicators.CapsLock || info.Indicators.ScrollLock {
		t.Fatalf("Expected num+caps, got %+v", info.Indicators)
	}

	if _, err = ParseInfo([]byte{0x30}); !errors.Is(err, ErrBadResponse) {
		t.Fatalf("Expected ErrBadResponse, got %v", err)
	}
}

func TestBuildParaCfg(t *testing.T) {
	p := BuildParaCfg(0x00, 115200)
	if len(p) != ParaCfgSize {
		t.Fatalf("Expected %d bytes, got %d", ParaCfgSize, len(p))
	}
	expected := []byte{0x82, 0x80, 0x00, 0x00, 0x01, 0xC2, 0x00}
	if !bytes.Equal(p[:7], expected) {
		t.Fatalf("Expected prefix % 02X, got % 02X", expected, p[:7])
	}

	cfg, err := ParseParaCfg(p)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Baud != 115200 {
		t.Fatalf("Expected baud 115200, got %d", cfg.Baud)
	}
	if cfg.Mode != ModeDefault || cfg.Cfg != CfgDefault || cfg.Address != 0 {
		t.Fatalf("Expected default mode bytes, got %+v", cfg)
	}
	if cfg.VID != 0x1A86 || cfg.PID != 0xE129 {
		t.Fatalf("Expected 1A86:E129, got %04X:%04X", cfg.VID, cfg.PID)
	}
}
