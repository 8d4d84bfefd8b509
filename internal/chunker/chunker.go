// Package chunker splits streamed agent text into sentence-sized pieces
// for the TTS Scheduler, grounded on the spec's own prose (no teacher
// file performs text chunking; written in the plain-function style the
// teacher uses for its own small string utilities).
package chunker

import "strings"

const asciiBoundaryChars = ".!?\n" // period, bang, question mark, newline
const emDash = "—"                 // multi-byte; checked separately from the ASCII set

// Chunk is one sentence-sized piece of output text with its dense,
// per-response sequence number.
type Chunk struct {
	Seq  int
	Text string
}

// Chunker accumulates text deltas and emits chunks whose length lies in
// [minChars, maxChars], preferring a sentence boundary at or after
// minChars (spec §4.6).
type Chunker struct {
	minChars int
	maxChars int
	buf      strings.Builder
	nextSeq  int
}

func New(minChars, maxChars int) *Chunker {
	if minChars <= 0 {
		minChars = 20
	}
	if maxChars <= minChars {
		maxChars = minChars * 2
	}
	return &Chunker{minChars: minChars, maxChars: maxChars}
}

// Feed appends delta to the internal buffer and returns zero or more
// chunks that are now ready to emit, in source order.
func (c *Chunker) Feed(delta string) []Chunk {
	c.buf.WriteString(delta)
	var chunks []Chunk

	for {
		text := c.buf.String()
		if len(text) < c.minChars {
			return chunks
		}

		cut, found := findBoundary(text, c.minChars, c.maxChars)
		if !found {
			return chunks
		}

		chunk := strings.TrimSpace(text[:cut])
		remainder := text[cut:]

		c.buf.Reset()
		c.buf.WriteString(remainder)

		if chunk == "" {
			continue
		}

		chunks = append(chunks, Chunk{Seq: c.nextSeq, Text: chunk})
		c.nextSeq++
	}
}

// Flush emits whatever remains in the buffer as a final chunk, if any.
func (c *Chunker) Flush() *Chunk {
	text := strings.TrimSpace(c.buf.String())
	c.buf.Reset()
	if text == "" {
		return nil
	}
	chunk := Chunk{Seq: c.nextSeq, Text: text}
	c.nextSeq++
	return &chunk
}

// findBoundary looks for a sentence-boundary character at or after
// minChars and before maxChars. Failing that, it falls back to the last
// whitespace before maxChars, then to a hard cut at maxChars. It returns
// found=false if text hasn't yet reached maxChars and no boundary exists,
// meaning the caller should wait for more input.
func findBoundary(text string, minChars, maxChars int) (cut int, found bool) {
	limit := maxChars
	if limit > len(text) {
		limit = len(text)
	}

	for i := minChars; i < limit; i++ {
		if strings.IndexByte(asciiBoundaryChars, text[i]) >= 0 {
			return i + 1, true
		}
		if strings.HasPrefix(text[i:], emDash) {
			return i + len(emDash), true
		}
	}

	if len(text) < maxChars {
		return 0, false
	}

	// No boundary found before maxChars; fall back to last whitespace.
	for i := maxChars - 1; i > 0; i-- {
		if text[i] == ' ' || text[i] == '\t' {
			return i + 1, true
		}
	}

	// No whitespace either; hard cut.
	return maxChars, true
}
