// Package chunk splits document text into overlapping windows for embedding.
//
// The splitter operates on runes, not bytes, so multi-byte content never gets
// cut mid-character. Consecutive chunks share a configurable overlap so that
// statements near a boundary stay retrievable from either side.
package chunk

const (
	// DefaultSize is the default chunk window in runes.
	DefaultSize = 1000

	// DefaultOverlap is the default shared span between consecutive chunks.
	DefaultOverlap = 200
)

// Split cuts text into overlapping chunks of up to size runes.
//
// Chunks start at offsets 0, size-overlap, 2*(size-overlap), ... and the last
// chunk may be shorter than size. Invalid parameters are normalized rather
// than rejected: size <= 0 falls back to DefaultSize, negative overlap is
// treated as 0, and overlap >= size is clamped to size-1 so the stride stays
// positive. Empty input yields no chunks.
func Split(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	stride := size - overlap
	chunks := make([]string, 0, (len(runes)+stride-1)/stride)
	for start := 0; start < len(runes); start += stride {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
