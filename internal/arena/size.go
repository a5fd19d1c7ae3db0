package arena

// Per-call scratch requirements, in 4-byte words or bytes, of the algorithms
// that draw from an arena. Kept next to ScratchSize so the two stay in sync.
const (
	slack = 64 // alignment padding across all sub-allocations of one call

	accumBytes = 8 * 10 // one patch accumulator: 10 float64
)

// ScratchSize returns an arena capacity, in bytes, large enough for any single
// fan sort, overdraw partition or patch geometry call on a mesh of the given
// size.
func ScratchSize(numVertices, numFaces, cacheSize int) int {
	// fan sort: emitted F, fan list V, fan positions V, and four 3F tables
	// (triangle list, start stack, valence, cache position plus a sentinel).
	sortWords := numFaces + 2*numVertices + 4*3*numFaces + 1
	// overdraw partition: the simulated FIFO, one int64 per slot.
	partWords := 2 * cacheSize
	// patch geometry: one accumulator per patch, at most one patch per face.
	geomBytes := accumBytes * (numFaces + 1)

	return max(4*(sortWords+partWords), geomBytes) + slack
}
