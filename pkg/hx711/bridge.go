package hx711

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/itohio/gohx711/pkg/protocol"
)

const (
	// DefaultBaudRate matches the bridge firmware UART.
	DefaultBaudRate = 115200
	// BridgePollInterval bounds each serial read so cancellation is noticed.
	BridgePollInterval = 20 * time.Millisecond
)

// ErrBridge is returned when the bridge firmware reports a failure or sends
// something unparseable.
var ErrBridge = errors.New("bridge error")

// Bridge talks to a microcontroller running the bridge firmware, which does
// the bit-banging and answers one line per command:
//
//	R<pulses><M|L>#<seq>\n  ->  D<6 hex digits>#<seq>\n   read one conversion
//	P#<seq>\n               ->  OK#<seq>\n                power down
//	U#<seq>\n               ->  OK#<seq>\n                power up
//
// Failures are answered with E<message>#<seq>\n. Replies carrying another
// sequence number belong to abandoned requests and are skipped.
type Bridge struct {
	port    io.ReadWriteCloser
	name    string
	seq     uint8
	pending []byte
	chunk   []byte
}

// Ports returns the serial ports a bridge may be attached to.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

// OpenBridge opens the serial port the bridge is attached to.
func OpenBridge(port string, baudRate int) (*Bridge, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}

	p, err := serial.Open(port, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", port, err)
	}
	if err := p.SetReadTimeout(BridgePollInterval); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", port, err)
	}

	b := NewBridge(p)
	b.name = port
	return b, nil
}

// NewBridge uses an already open connection. Reads on rw should return
// periodically, with or without data, so that cancellation is observed.
func NewBridge(rw io.ReadWriteCloser) *Bridge {
	return &Bridge{
		port:  rw,
		chunk: make([]byte, 64),
	}
}

func (b *Bridge) Read(ctx context.Context, pulses int, order protocol.Order) ([protocol.FrameBytes]byte, error) {
	var data [protocol.FrameBytes]byte

	code := "M"
	if order == protocol.LSB {
		code = "L"
	}
	resp, err := b.roundTrip(ctx, fmt.Sprintf("R%d%s", pulses, code))
	if err != nil {
		return data, err
	}
	return parseData(resp)
}

func (b *Bridge) PowerDown(ctx context.Context) error {
	return b.command(ctx, "P")
}

func (b *Bridge) PowerUp(ctx context.Context) error {
	return b.command(ctx, "U")
}

func (b *Bridge) Close() error {
	return b.port.Close()
}

func (b *Bridge) String() string {
	return fmt.Sprintf("bridge{%s}", b.name)
}

func (b *Bridge) command(ctx context.Context, cmd string) error {
	resp, err := b.roundTrip(ctx, cmd)
	if err != nil {
		return err
	}
	if resp != "OK" {
		return fmt.Errorf("%w: unexpected response %q", ErrBridge, resp)
	}
	return nil
}

func (b *Bridge) roundTrip(ctx context.Context, cmd string) (string, error) {
	b.seq++
	tag := strconv.Itoa(int(b.seq))

	if _, err := io.WriteString(b.port, cmd+"#"+tag+"\n"); err != nil {
		return "", fmt.Errorf("failed to send %q: %w", cmd, err)
	}

	for {
		line, err := b.readLine(ctx)
		if err != nil {
			return "", err
		}
		body, seq, ok := cutTag(line)
		if !ok || seq != tag {
			continue
		}
		if msg, ok := strings.CutPrefix(body, "E"); ok {
			return "", fmt.Errorf("%w: %s", ErrBridge, msg)
		}
		return body, nil
	}
}

// cutTag splits a reply into its body and sequence number.
func cutTag(line string) (body, seq string, ok bool) {
	i := strings.LastIndexByte(line, '#')
	if i < 0 {
		return line, "", false
	}
	return line[:i], line[i+1:], true
}

func (b *Bridge) readLine(ctx context.Context) (string, error) {
	for {
		if i := bytes.IndexByte(b.pending, '\n'); i >= 0 {
			line := strings.TrimSpace(string(b.pending[:i]))
			b.pending = append(b.pending[:0], b.pending[i+1:]...)
			if line == "" {
				continue
			}
			return line, nil
		}

		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%w: %w", protocol.ErrTimeout, err)
		}

		n, err := b.port.Read(b.chunk)
		b.pending = append(b.pending, b.chunk[:n]...)
		if err != nil {
			return "", fmt.Errorf("failed to read from bridge: %w", err)
		}
	}
}

// parseData parses a D<hex> response.
func parseData(line string) ([protocol.FrameBytes]byte, error) {
	var data [protocol.FrameBytes]byte

	payload, ok := strings.CutPrefix(line, "D")
	if !ok {
		return data, fmt.Errorf("%w: unexpected response %q", ErrBridge, line)
	}
	raw, err := hex.DecodeString(payload)
	if err != nil {
		return data, fmt.Errorf("%w: invalid sample %q: %w", ErrBridge, payload, err)
	}
	if len(raw) != protocol.FrameBytes {
		return data, fmt.Errorf("%w: expected %d bytes, got %d", ErrBridge, protocol.FrameBytes, len(raw))
	}
	copy(data[:], raw)
	return data, nil
}
