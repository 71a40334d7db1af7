// Package ch9329 drives the chip's keyboard and mouse endpoints over a
// frame commander.
package ch9329

import (
	"time"

	"github.com/allape/kvmbridge/kvm/command"
	"github.com/allape/kvmbridge/kvm/keymouse"
)

const (
	// chip's absolute coordinate space
	absMax = 32767
	// one-byte signed range of relative reports
	relMax = 127

	subRelative byte = 0x01
	subAbsolute byte = 0x02

	keySlots = 6
)

// send pushes a report through the commander. A positive ackTimeout turns
// the send into an acknowledged exchange.
func send(c keymouse.Commander, ackTimeout time.Duration, name string, payload []byte) error {
	f, err := command.Build(name, payload)
	if err != nil {
		return err
	}
	if ackTimeout > 0 {
		resp, err := c.SendSync(f, ackTimeout)
		if err != nil {
			return err
		}
		return command.CheckAck(resp)
	}
	return c.SendAsync(f)
}
