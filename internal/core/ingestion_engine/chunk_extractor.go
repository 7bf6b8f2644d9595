package ingestion_engine

import (
	"strings"

	"github.com/askpdf/askpdf/internal/models"
)

// chunkPages groups page text into token-bounded chunks with optional
// overlap. Chunks never span pages, so each keeps its page number, and
// positions are assigned in document order. The result is deterministic
// for a given document and configuration, which is what makes chunk
// identities stable across re-ingestion.
func chunkPages(pages []pageText, targetTokens, overlapTokens int) []models.DocumentChunk {
	var out []models.DocumentChunk
	pos := 0

	for _, pg := range pages {
		var (
			buf     []string
			tokSum  int
			carried int // tokens held over as overlap from the last flush
		)

		// flush emits the current buffer as a chunk and seeds the next one
		// with an overlapTokens-sized tail of the buffer.
		flush := func() {
			out = append(out, models.DocumentChunk{
				Page:       pg.Page,
				Position:   pos,
				Text:       strings.Join(buf, "\n"),
				TokenCount: tokSum,
			})
			pos++

			if overlapTokens > 0 {
				keep := []string{}
				remain := overlapTokens
				for j := len(buf) - 1; j >= 0 && remain > 0; j-- {
					keep = append([]string{buf[j]}, keep...) // prepend to keep original order
					remain -= approxTokens(buf[j])
				}
				buf = keep
				tokSum = 0
				for _, s := range buf {
					tokSum += approxTokens(s)
				}
			} else {
				buf = nil
				tokSum = 0
			}
			carried = tokSum
		}

		for _, line := range strings.Split(pg.Text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			buf = append(buf, line)
			tokSum += approxTokens(line)

			if tokSum >= targetTokens {
				flush()
			}
		}

		// Emit the page tail unless the buffer holds nothing beyond the
		// overlap already emitted; overlap never bleeds across pages.
		if tokSum > carried || (tokSum > 0 && carried == 0) {
			out = append(out, models.DocumentChunk{
				Page:       pg.Page,
				Position:   pos,
				Text:       strings.Join(buf, "\n"),
				TokenCount: tokSum,
			})
			pos++
		}
	}
	return out
}

// approxTokens is a cheap token estimator (~4 chars ≈ 1 token).
// Replace with a real tokenizer later to improve chunk boundaries.
func approxTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}
