package conn

import (
	"fmt"
	"time"

	"github.com/allape/kvmbridge/kvm/command"
	"github.com/allape/kvmbridge/kvm/frame"
)

// USB string descriptor kinds accepted by SetUSBString.
const (
	USBStringManufacturer byte = 0x00
	USBStringProduct      byte = 0x01
	USBStringSerial       byte = 0x02
)

// The chip stores string descriptors in a fixed slot this wide.
const maxUSBStringLen = 23

func (c *Conn) request(name string, payload []byte, timeout time.Duration) (*frame.Frame, error) {
	f, err := command.Build(name, payload)
	if err != nil {
		return nil, err
	}
	return c.SendSync(f, timeout)
}

// GetInfo queries the chip for its version, target attachment and lock-key
// state.
func (c *Conn) GetInfo() (*command.ChipInfo, error) {
	f, err := c.request("get-info", nil, 0)
	if err != nil {
		return nil, err
	}
	return command.ParseInfo(f.Payload)
}

// ParamConfig reads the chip's parameter block.
func (c *Conn) ParamConfig() (*command.ParaCfg, error) {
	f, err := c.request("get-parameter-config", nil, 0)
	if err != nil {
		return nil, err
	}
	if err = command.CheckAck(f); err != nil {
		return nil, err
	}
	return command.ParseParaCfg(f.Payload)
}

// SetUSBString rewrites one of the chip's USB string descriptors. The chip
// applies it on its next reset.
func (c *Conn) SetUSBString(kind byte, text string) error {
	if kind > USBStringSerial {
		return fmt.Errorf("%w: usb string kind %d", command.ErrInvalidArguments, kind)
	}
	if len(text) > maxUSBStringLen {
		return fmt.Errorf("%w: usb string %q longer than %d bytes", command.ErrInvalidArguments, text, maxUSBStringLen)
	}
	payload := make([]byte, 0, 2+len(text))
	payload = append(payload, kind, byte(len(text)))
	payload = append(payload, text...)
	f, err := c.request("set-usb-string", payload, 0)
	if err != nil {
		return err
	}
	return command.CheckAck(f)
}

// RestoreFactoryDefaults asks the chip to wipe its stored configuration.
func (c *Conn) RestoreFactoryDefaults() error {
	f, err := c.request("restore-factory-defaults", nil, 0)
	if err != nil {
		return err
	}
	return command.CheckAck(f)
}

// Reset reboots the chip. The link usually survives; callers that change
// the baud rate must reconnect instead.
func (c *Conn) Reset() error {
	f, err := c.request("reset", nil, 0)
	if err != nil {
		return err
	}
	return command.CheckAck(f)
}
