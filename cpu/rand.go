package cpu

import "math/rand"

// randByte returns a random byte for Cxkk. math/rand is fine here since
// a CHIP-8 RNG has no security requirement.
func randByte() uint8 {
	return uint8(rand.Intn(256))
}
