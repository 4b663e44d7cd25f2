package upload

// Range is an inclusive byte range [From, To].
type Range struct {
	From int64
	To   int64
}

// Len is the number of bytes in the range.
func (r Range) Len() int64 {
	return r.To - r.From + 1
}

// ChunkRanges splits total bytes into consecutive chunkSize ranges. The last
// range holds the remainder. A non-positive total or chunkSize yields nil.
func ChunkRanges(total, chunkSize int64) []Range {
	if total <= 0 || chunkSize <= 0 {
		return nil
	}

	ranges := make([]Range, 0, (total+chunkSize-1)/chunkSize)

	for from := int64(0); from < total; from += chunkSize {
		ranges = append(ranges, Range{From: from, To: min(from+chunkSize, total) - 1})
	}

	return ranges
}
