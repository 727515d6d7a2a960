package render

// Point ids in the picking framebuffer are 1-based so that id 0 (all
// channels zero) denotes background. A pixel encodes the id across the
// r/g/b channels little-endian; alpha is always opaque.

// NoHit is returned when no point lies under the queried pixel.
const NoHit = -1

// MaxPickIndex is the largest point index the 3-channel encoding can carry.
const MaxPickIndex = 0xFFFFFF - 1

// EncodeID writes the RGBA pixel for point index i (id = i+1).
func EncodeID(i int) [4]byte {
	id := uint32(i + 1)
	return [4]byte{
		byte(id),
		byte(id >> 8),
		byte(id >> 16),
		0xFF,
	}
}

// DecodeID recovers the point index from a readback pixel, or NoHit for
// the background id.
func DecodeID(r, g, b byte) int {
	id := int(r) + int(g)*256 + int(b)*65536
	return id - 1
}
