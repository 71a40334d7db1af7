// Package factory builds the drivers named in the config file.
package factory

import (
	"fmt"
	"time"

	"github.com/allape/gogger"
	"github.com/allape/kvmbridge/config"
	"github.com/allape/kvmbridge/kvm/conn"
	"github.com/allape/kvmbridge/kvm/device"
	"github.com/allape/kvmbridge/kvm/device/sysfs"
	"github.com/allape/kvmbridge/kvm/frame"
	"github.com/allape/kvmbridge/kvm/keymouse"
	"github.com/allape/kvmbridge/kvm/keymouse/ch9329"
)

var l = gogger.New("factory")

func ConnFromConfig(conf config.Config) (*conn.Conn, error) {
	addr, err := conf.Serial.Ext.GetAddress(frame.DefaultAddress)
	if err != nil {
		return nil, err
	}

	delayMs, err := conf.Serial.Ext.GetReconfigureDelayMs(int(conn.DefaultReconfigureDelay / time.Millisecond))
	if err != nil {
		return nil, err
	}

	return conn.New(&conn.Options{
		Baud:             conf.Serial.Baud,
		LegacyBauds:      conf.Serial.LegacyBauds,
		Address:          addr,
		ConnectTimeout:   conf.Serial.ConnectTimeout(),
		ResponseTimeout:  conf.Serial.ResponseTimeout(),
		PollInterval:     conf.Serial.PollInterval(),
		ReconfigureDelay: time.Duration(delayMs) * time.Millisecond,
	}), nil
}

func KeyboardFromConfig(conf config.Config, c *conn.Conn) (keymouse.Keyboard, error) {
	switch conf.Keyboard.Type {
	case config.KeyboardNone:
		l.Warn().Println("keyboard driver is none, no keyboard output")
		return nil, nil
	case config.KeyboardCH9329:
		layout, err := layoutByName(conf.Keyboard.Layout)
		if err != nil {
			return nil, err
		}
		return ch9329.NewKeyboard(c, ch9329.KeyboardOptions{
			Layout:     layout,
			CharDelay:  conf.Keyboard.CharDelay(),
			AckTimeout: conf.Keyboard.AckTimeout(),
		}), nil
	}
	return nil, fmt.Errorf("unknown keyboard driver: %s", conf.Keyboard.Type)
}

func MouseFromConfig(conf config.Config, c *conn.Conn) (keymouse.Mouse, error) {
	switch conf.Mouse.Type {
	case config.MouseNone:
		l.Warn().Println("mouse driver is none, no mouse output")
		return nil, nil
	case config.MouseCH9329:
		return ch9329.NewMouse(c, ch9329.MouseOptions{
			Width:      conf.Mouse.Width,
			Height:     conf.Mouse.Height,
			Clamp:      conf.Mouse.Clamp,
			AckTimeout: conf.Mouse.AckTimeout(),
		}), nil
	}
	return nil, fmt.Errorf("unknown mouse driver: %s", conf.Mouse.Type)
}

func layoutByName(name string) (keymouse.Layout, error) {
	switch name {
	case "", "us":
		return keymouse.USLayout(), nil
	}
	return nil, fmt.Errorf("unknown keyboard layout: %s", name)
}

func EnumeratorFromConfig(conf config.Config) (device.Enumerator, error) {
	switch conf.Device.Type {
	case config.DeviceNone:
		l.Warn().Println("device driver is none, no hotplug monitoring")
		return nil, nil
	case config.DeviceSysfs:
		return sysfs.New(), nil
	}
	return nil, fmt.Errorf("unknown device driver: %s", conf.Device.Type)
}

func FilterFromConfig(conf config.Config) device.Filter {
	return device.Filter{
		SerialVID: conf.Device.SerialVID,
		SerialPID: conf.Device.SerialPID,
		HIDVID:    conf.Device.HIDVID,
		HIDPID:    conf.Device.HIDPID,
	}
}

func MonitorFromConfig(conf config.Config) (*device.Monitor, error) {
	enum, err := EnumeratorFromConfig(conf)
	if err != nil || enum == nil {
		return nil, err
	}
	return device.NewMonitor(enum, FilterFromConfig(conf), conf.Device.PollInterval()), nil
}

// ResolveSerialPort turns the configured port into a real device path,
// asking the enumerator when the config says auto.
func ResolveSerialPort(conf config.Config, enum device.Enumerator) (string, error) {
	if conf.Serial.Port != config.PortAuto {
		return conf.Serial.Port, nil
	}

	if enum == nil {
		return "", fmt.Errorf("serial port is %q but no device driver is configured", config.PortAuto)
	}

	snapshot, err := device.Capture(enum, FilterFromConfig(conf))
	if err != nil {
		return "", err
	}

	for _, r := range snapshot.Devices {
		if r.SerialPort != "" {
			l.Info().Printf("Using serial port %s on %s", r.SerialPort, r.PortChain)
			return r.SerialPort, nil
		}
	}

	return "", fmt.Errorf("%w: no bridge serial port found", conn.ErrPortUnavailable)
}
