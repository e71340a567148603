package servo

import (
	"encoding/binary"
	"fmt"
)

type signKind uint8

const (
	signNone signKind = iota
	signMagnitude
)

// SignConvention describes how negative values are stored in a register.
type SignConvention struct {
	kind signKind
	bit  uint
}

// Unsigned stores the value as-is, truncated to the register width.
func Unsigned() SignConvention {
	return SignConvention{kind: signNone}
}

// SignMagnitude stores the magnitude in bits [0, bit) and the sign at bit.
func SignMagnitude(bit uint) SignConvention {
	return SignConvention{kind: signMagnitude, bit: bit}
}

// IsSignMagnitude reports whether c is a sign-magnitude convention and
// returns its sign bit.
func (c SignConvention) IsSignMagnitude() (uint, bool) {
	return c.bit, c.kind == signMagnitude
}

func (c SignConvention) String() string {
	if c.kind == signMagnitude {
		return fmt.Sprintf("sign_magnitude(%d)", c.bit)
	}
	return "none"
}

// Descriptor locates a register in the control table.
type Descriptor struct {
	Address uint16
	Width   int // 1 or 2 bytes
	Sign    SignConvention
}

// NewDescriptor validates and returns a register descriptor.
func NewDescriptor(address uint16, width int, sign SignConvention) (Descriptor, error) {
	if width != 1 && width != 2 {
		return Descriptor{}, fmt.Errorf("%w: register width %d (must be 1 or 2)", ErrInvalidArgument, width)
	}
	if bit, ok := sign.IsSignMagnitude(); ok && bit >= uint(8*width) {
		return Descriptor{}, fmt.Errorf("%w: sign bit %d outside %d-byte register", ErrInvalidArgument, bit, width)
	}
	return Descriptor{Address: address, Width: width, Sign: sign}, nil
}

func (d Descriptor) mask() uint64 {
	return 1<<(8*uint(d.Width)) - 1
}

// Encode converts value to its little-endian register representation.
// Unsigned values are silently truncated to the register width; callers
// validate range. Sign-magnitude magnitudes saturate at 2^bit-1.
func Encode(value int64, d Descriptor) []byte {
	var u uint64
	if bit, ok := d.Sign.IsSignMagnitude(); ok {
		maxMag := uint64(1)<<bit - 1
		mag := uint64(value)
		if value < 0 {
			mag = -mag
		}
		if mag > maxMag {
			mag = maxMag
		}
		u = mag
		if value < 0 {
			u |= 1 << bit
		}
	} else {
		u = uint64(value)
	}
	u &= d.mask()

	out := make([]byte, d.Width)
	switch d.Width {
	case 1:
		out[0] = byte(u)
	case 2:
		binary.LittleEndian.PutUint16(out, uint16(u))
	}
	return out
}

// Decode is the inverse of Encode.
func Decode(data []byte, d Descriptor) int64 {
	var u uint64
	for i := 0; i < d.Width && i < len(data); i++ {
		u |= uint64(data[i]) << (8 * uint(i))
	}
	u &= d.mask()

	bit, ok := d.Sign.IsSignMagnitude()
	if !ok {
		return int64(u)
	}
	mag := int64(u & (1<<bit - 1))
	if u&(1<<bit) != 0 {
		return -mag
	}
	return mag
}
