package translate

// DefaultChunkSize is the number of runes submitted to the translator per call.
const DefaultChunkSize = 500

// Split slices text into fixed-size rune chunks. The last chunk may be shorter.
// Chunking ignores sentence boundaries.
func Split(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
