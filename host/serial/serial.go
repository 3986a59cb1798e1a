// Package serial opens the serial line that carries an external tick
// source, typically a microcontroller that writes one byte per tick.
package serial

import (
	"io"
)

// Port is a serial line. Tests substitute an in-memory implementation.
type Port interface {
	io.ReadWriteCloser

	// Flush discards data received but not yet read.
	Flush() error
}

// Config holds serial port settings.
type Config struct {
	// Device path, e.g. "/dev/ttyACM0" or "COM3".
	Device string `yaml:"device"`

	// Baud rate. USB CDC devices ignore it.
	Baud int `yaml:"baud"`

	// ReadTimeoutMs bounds each read in milliseconds; 0 blocks.
	ReadTimeoutMs int `yaml:"readTimeoutMs"`
}

// DefaultConfig returns settings for a tick device at device.
func DefaultConfig(device string) Config {
	return Config{
		Device:        device,
		Baud:          115200,
		ReadTimeoutMs: 100,
	}
}
