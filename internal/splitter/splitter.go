// Package splitter turns extracted document text into overlapping chunks
// sized for embedding.
//
// The splitter is a pure function over strings: identical input always
// produces identical chunks, which is what makes retrieval results
// reproducible across re-ingestions.
package splitter

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultChunkSize is the sliding window width in characters.
	DefaultChunkSize = 1000

	// DefaultOverlap is how far the window retreats when no sentence
	// boundary is found, so trailing context reappears in the next chunk.
	DefaultOverlap = 200

	// MinChunkLength is the floor below which a trimmed chunk is dropped.
	// Near-empty fragments embed poorly and pollute retrieval.
	MinChunkLength = 50

	// breakFraction is the minimum window position (as a fraction of the
	// chunk size) at which a sentence boundary is preferred over a raw cut.
	breakFraction = 0.7
)

// Splitter holds configured chunking parameters.
type Splitter struct {
	chunkSize int
	overlap   int
}

// New returns a Splitter. Non-positive size or negative overlap fall back to
// the defaults. An overlap >= chunkSize would stall the window, so it is
// clamped to zero (non-overlapping advance).
func New(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	if overlap >= chunkSize {
		overlap = 0
	}
	return &Splitter{chunkSize: chunkSize, overlap: overlap}
}

// ChunkSize returns the configured window width.
func (s *Splitter) ChunkSize() int { return s.chunkSize }

// Split scans text left to right with a sliding window, preferring to cut at
// the last period or newline when that boundary sits past 70% of the window.
// Chunks are trimmed; those at or under MinChunkLength characters are
// discarded. Empty input yields nil.
func (s *Splitter) Split(text string) []string {
	return Split(text, s.chunkSize, s.overlap)
}

// Split is the package-level form of Splitter.Split for callers that carry
// their own parameters.
func Split(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}

	var chunks []string
	start := 0

	for start < len(text) {
		end := start + chunkSize
		if end >= len(text) {
			end = len(text)
		} else {
			// A raw window edge can land mid-rune in multi-byte text;
			// cutting there would emit invalid UTF-8.
			end = runeStart(text, end)
			if end <= start {
				_, size := utf8.DecodeRuneInString(text[start:])
				end = start + size
			}
		}
		window := text[start:end]

		if end < len(text) {
			// Search backward from the window end for a sentence or
			// line boundary.
			lastPeriod := strings.LastIndexByte(window, '.')
			lastNewline := strings.LastIndexByte(window, '\n')
			rel := lastPeriod
			if lastNewline > rel {
				rel = lastNewline
			}

			if rel > int(float64(chunkSize)*breakFraction) {
				// Cut at the boundary, keeping the boundary character.
				window = text[start : start+rel+1]
				start += rel + 1
			} else {
				next := runeStart(text, end-overlap)
				if next <= start {
					next = end
				}
				start = next
			}
		} else {
			start = end
		}

		chunk := strings.TrimSpace(window)
		if len(chunk) > MinChunkLength {
			chunks = append(chunks, chunk)
		}
	}

	return chunks
}

// runeStart backs i up to the nearest rune start at or before it.
func runeStart(text string, i int) int {
	for i > 0 && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}
