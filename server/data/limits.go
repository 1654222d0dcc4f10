package data

// Size limits enforced by the store and relied upon
// by every on-disk scanner when sizing its buffers
const (
	MaxKeySize   = 2 << 8
	MaxValueSize = 2 << 16
)
