//go:build tinygo

package main

import "machine"

const (
	// HX711 pins
	PIN_DOUT = machine.D2 // HX711 DOUT, input
	PIN_SCK  = machine.D3 // HX711 PD_SCK, output

	// Timing
	READY_TIMEOUT_MS = 1000 // Give up on a conversion after this long (10 Hz mode needs ~100ms)
	POWER_SETTLE_US  = 100  // PD_SCK hold for power down and wake up (chip needs >60us)

	// Serial configuration
	// Longest reply is "D" + 6 hex digits + "\n" = 8 bytes. At 80 conversions/sec
	// that is 640 bytes/sec; 115200 baud leaves plenty of headroom for commands.
	UART_BAUD_RATE = 115200
)
