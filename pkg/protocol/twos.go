package protocol

const (
	// MaxValue is the largest conversion the HX711 reports.
	MaxValue = 0x7FFFFF
	// MinValue is the smallest conversion the HX711 reports.
	MinValue = -0x800000

	signBit = 0x800000
	mask24  = 0xFFFFFF
)

// Decode24 converts a 24-bit two's complement value to a signed integer.
// Bits above bit 23 are ignored.
func Decode24(u uint32) int32 {
	return int32(u&MaxValue) - int32(u&signBit)
}

// Encode24 converts a signed value to 24-bit two's complement, saturating
// the way the HX711 does at the ends of its range.
func Encode24(v int64) uint32 {
	switch {
	case v >= MaxValue:
		return MaxValue
	case v < MinValue:
		v = MinValue
	}
	return uint32(v) & mask24
}

// Join assembles three big-endian bytes into a 24-bit value.
func Join(b [FrameBytes]byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// Split breaks a 24-bit value into three big-endian bytes.
func Split(u uint32) [FrameBytes]byte {
	return [FrameBytes]byte{byte(u >> 16), byte(u >> 8), byte(u)}
}
