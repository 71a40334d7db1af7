package config

import (
	"fmt"
	"strconv"
)

type ExtMap map[string]any

// SerialExt carries the rarely touched serial knobs so the main table
// stays small. TOML integers arrive as int64 and quoted numbers as
// strings, both are accepted.
type SerialExt ExtMap

func (e SerialExt) GetInt(key string, defaultValue int) (int, error) {
	v, ok := e[key]
	if !ok {
		return defaultValue, nil
	}

	switch n := v.(type) {
	case int64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	}

	return defaultValue, nil
}

// GetAddress is the chip address placed in outgoing frames.
func (e SerialExt) GetAddress(defaultValue byte) (byte, error) {
	n, err := e.GetInt("address", int(defaultValue))
	if err != nil {
		return defaultValue, err
	}
	if n < 0 || n > 0xFF {
		return defaultValue, fmt.Errorf("address %d out of range", n)
	}
	return byte(n), nil
}

// GetReconfigureDelayMs is the settle time after moving the chip to a
// new baud rate.
func (e SerialExt) GetReconfigureDelayMs(defaultValue int) (int, error) {
	return e.GetInt("reconfigure_delay_ms", defaultValue)
}
