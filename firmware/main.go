//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"context"
	"machine"
	"time"

	"github.com/itohio/gohx711/pkg/protocol"
)

const hexDigits = "0123456789ABCDEF"

// hx711 is the chip wired to PIN_DOUT and PIN_SCK.
type hx711 struct{}

func (hx711) SetClock(high bool) error {
	PIN_SCK.Set(high)
	return nil
}

func (hx711) ReadData() (bool, error) {
	return PIN_DOUT.Get(), nil
}

var (
	uart = machine.UART0
	chip hx711

	// Serial buffer for reading lines
	serialBuffer [16]byte
	serialPos    int
)

func main() {
	PIN_SCK.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_SCK.Low()
	PIN_DOUT.Configure(machine.PinConfig{Mode: machine.PinInput})

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	// Main loop
	for {
		processSerial()

		// Small delay to prevent tight loop
		time.Sleep(100 * time.Microsecond)
	}
}

func processSerial() {
	// Read available bytes from serial
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		// Check for newline (end of line)
		if data == '\n' || data == '\r' {
			if serialPos > 0 {
				handleCommand(serialBuffer[:serialPos])
			}
			serialPos = 0
			continue
		}

		// Ignore whitespace
		if data == ' ' || data == '\t' {
			continue
		}

		if serialPos < len(serialBuffer) {
			serialBuffer[serialPos] = data
			serialPos++
		}
	}
}

// handleCommand answers one command. The #<seq> suffix of the command is
// echoed on the reply:
//
//	R<pulses><M|L>  read a conversion -> D<hex>
//	P               power down        -> OK
//	U               power up          -> OK
func handleCommand(line []byte) {
	cmd, tag := line, ""
	for i := len(line) - 1; i >= 0; i-- {
		if line[i] == '#' {
			cmd, tag = line[:i], string(line[i:])
			break
		}
	}
	if len(cmd) == 0 {
		replyError("empty command", tag)
		return
	}

	switch cmd[0] {
	case 'R':
		readConversion(cmd[1:], tag)
	case 'P':
		PIN_SCK.Low()
		PIN_SCK.High()
		time.Sleep(POWER_SETTLE_US * time.Microsecond)
		print("OK", tag, "\n")
	case 'U':
		PIN_SCK.Low()
		time.Sleep(POWER_SETTLE_US * time.Microsecond)
		print("OK", tag, "\n")
	default:
		replyError("unknown command", tag)
	}
}

func readConversion(args []byte, tag string) {
	if len(args) != 2 || args[0] < '1' || args[0] > '3' {
		replyError("usage: R<1-3><M|L>", tag)
		return
	}

	order := protocol.MSB
	switch args[1] {
	case 'M':
	case 'L':
		order = protocol.LSB
	default:
		replyError("bit order must be M or L", tag)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), READY_TIMEOUT_MS*time.Millisecond)
	defer cancel()

	data, err := protocol.ReadFrame(ctx, chip, protocol.Frame{
		Pulses:   int(args[0] - '0'),
		BitOrder: order,
	})
	if err != nil {
		replyError(err.Error(), tag)
		return
	}

	// Output format: "D" + three bytes in acquisition order as hex + tag + "\n"
	// Example: "D0007D0#12\n"
	print("D")
	for _, b := range data {
		print(string(hexDigits[b>>4]), string(hexDigits[b&0x0F]))
	}
	print(tag, "\n")
}

func replyError(msg, tag string) {
	print("E", msg, tag, "\n")
}
