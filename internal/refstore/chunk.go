package refstore

import "unicode"

// Chunking defaults. Windows overlap so a passage split across a chunk
// boundary is still retrievable from at least one side.
const (
	chunkWords   = 180
	overlapWords = 40
)

type wordSpan struct {
	start, end int
}

// wordSpans returns the byte ranges of the non-space runs in text.
func wordSpans(text string) []wordSpan {
	var spans []wordSpan
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				spans = append(spans, wordSpan{start, i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		spans = append(spans, wordSpan{start, len(text)})
	}
	return spans
}

// splitChunks slices text into overlapping windows of roughly size words.
// Slices are cut from the original text between word boundaries, so
// internal whitespace and line structure survive into the stored chunk.
func splitChunks(text string, size, overlap int) []string {
	if size <= 0 {
		size = chunkWords
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 4
	}

	spans := wordSpans(text)
	if len(spans) == 0 {
		return nil
	}

	step := size - overlap
	var chunks []string
	for start := 0; start < len(spans); start += step {
		end := start + size
		if end > len(spans) {
			end = len(spans)
		}
		chunks = append(chunks, text[spans[start].start:spans[end-1].end])
		if end == len(spans) {
			break
		}
	}
	return chunks
}
