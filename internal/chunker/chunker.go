package chunker

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sjproject/dartsearch/pkg/models"
)

// TruncatedMarker is appended to a table row that had to be cut to fit the
// per-chunk token budget. Rows are never split across chunks, so an
// over-budget row is cut visibly rather than dropped.
const TruncatedMarker = "[truncated]"

var (
	tableSplit    = regexp.MustCompile(`\n[ \t]*\n`)
	sentenceSplit = regexp.MustCompile(`[^.!?\n]+[.!?]?`)
)

// Chunker splits a normalized document into typed chunks. STRUCTURED
// sections are chunked per table with row-group packing; NARRATIVE sections
// are packed from sentence units with a sliding-window overlap.
type Chunker struct {
	ChunkSize    int // target narrative chunk size, in tokens
	ChunkOverlap int // tokens carried into the next narrative chunk
	MaxTokens    int // hard budget for any chunk
}

func New(chunkSize, chunkOverlap, maxTokens int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 800
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if maxTokens < chunkSize {
		maxTokens = chunkSize
	}
	return &Chunker{ChunkSize: chunkSize, ChunkOverlap: chunkOverlap, MaxTokens: maxTokens}
}

// Chunk never fails on well-formed input. Sections it cannot make sense of
// are skipped with a warning; chunk IDs are derived from
// (document, section, sequence) so re-chunking reproduces identical IDs.
func (c *Chunker) Chunk(doc models.Document) []models.Chunk {
	var chunks []models.Chunk
	for _, sec := range doc.Sections {
		if strings.TrimSpace(sec.Text) == "" {
			log.Warn().Str("document_id", doc.ID).Int("section", sec.Index).
				Msg("skipping empty section")
			continue
		}
		switch sec.Kind {
		case models.KindStructured:
			chunks = append(chunks, c.chunkStructured(doc.ID, sec)...)
		case models.KindNarrative:
			chunks = append(chunks, c.chunkNarrative(doc.ID, sec)...)
		default:
			log.Warn().Str("document_id", doc.ID).Int("section", sec.Index).
				Str("kind", string(sec.Kind)).Msg("skipping section with unknown kind")
		}
	}
	return chunks
}

// chunkStructured emits one or more chunks per logical table. Tables inside
// a section are separated by blank lines; rows within a table pack greedily
// under the token budget. Two tables never share a chunk.
func (c *Chunker) chunkStructured(docID string, sec models.Section) []models.Chunk {
	var chunks []models.Chunk
	seq := 0

	for _, table := range tableSplit.Split(sec.Text, -1) {
		var rows []string
		for _, line := range strings.Split(table, "\n") {
			if strings.TrimSpace(line) != "" {
				rows = append(rows, strings.TrimRight(line, " \t"))
			}
		}
		if len(rows) == 0 {
			continue
		}

		var group []string
		groupTokens := 0
		flush := func() {
			if len(group) == 0 {
				return
			}
			text := strings.Join(group, "\n")
			chunks = append(chunks, c.newChunk(docID, sec, seq, models.KindStructured, text, false))
			seq++
			group = nil
			groupTokens = 0
		}

		for _, row := range rows {
			rowTokens := CountTokens(row)
			if rowTokens > c.MaxTokens {
				// A single row over budget is truncated, never split or dropped.
				flush()
				keep := c.MaxTokens - CountTokens(TruncatedMarker)
				row = TruncateTokens(row, keep) + " " + TruncatedMarker
				chunks = append(chunks, c.newChunk(docID, sec, seq, models.KindStructured, row, false))
				seq++
				continue
			}
			if groupTokens+rowTokens > c.MaxTokens {
				flush()
			}
			group = append(group, row)
			groupTokens += rowTokens
		}
		flush()
	}
	return chunks
}

// chunkNarrative packs sentence units up to ChunkSize tokens and seeds each
// following chunk with the trailing ChunkOverlap tokens of its predecessor.
func (c *Chunker) chunkNarrative(docID string, sec models.Section) []models.Chunk {
	units := c.sentenceUnits(sec.Text)
	if len(units) == 0 {
		log.Warn().Str("document_id", docID).Int("section", sec.Index).
			Msg("narrative section yielded no sentence units")
		return nil
	}

	var chunks []models.Chunk
	seq := 0
	var cur []string
	curTokens := 0
	overlapped := false

	flush := func() {
		if len(cur) == 0 {
			return
		}
		text := strings.Join(cur, " ")
		chunks = append(chunks, c.newChunk(docID, sec, seq, models.KindNarrative, text, overlapped))
		seq++
		seed := TailTokens(text, c.ChunkOverlap)
		cur = cur[:0]
		curTokens = 0
		overlapped = false
		if seed != "" {
			cur = append(cur, seed)
			curTokens = CountTokens(seed)
			overlapped = true
		}
	}

	// shrinkSeed trims a seed-only buffer so seed plus the next unit stays
	// within the chunk budget, rather than splitting the sentence.
	shrinkSeed := func(unitTokens int) {
		if !overlapped || len(cur) != 1 || curTokens+unitTokens <= c.ChunkSize {
			return
		}
		seed := TailTokens(cur[0], c.ChunkSize-unitTokens)
		cur = cur[:0]
		curTokens = 0
		overlapped = false
		if seed != "" {
			cur = append(cur, seed)
			curTokens = CountTokens(seed)
			overlapped = true
		}
	}

	for _, unit := range units {
		unitTokens := CountTokens(unit)
		if curTokens > 0 && curTokens+unitTokens > c.ChunkSize {
			if !(overlapped && len(cur) == 1) {
				flush()
			}
			// After a flush the buffer holds at most the fresh seed, which
			// may itself leave no room for the unit.
			shrinkSeed(unitTokens)
		}
		cur = append(cur, unit)
		curTokens += unitTokens
		if curTokens >= c.ChunkSize {
			flush()
		}
	}
	// Drop a trailing chunk that is nothing but the overlap seed.
	if len(cur) > 0 && !(overlapped && len(cur) == 1) {
		text := strings.Join(cur, " ")
		chunks = append(chunks, c.newChunk(docID, sec, seq, models.KindNarrative, text, overlapped))
	}
	return chunks
}

// sentenceUnits segments prose on sentence boundaries, hard-splitting any
// single sentence that exceeds the chunk budget on its own.
func (c *Chunker) sentenceUnits(text string) []string {
	var units []string
	for _, para := range strings.Split(text, "\n") {
		for _, s := range sentenceSplit.FindAllString(para, -1) {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			toks := Tokenize(s)
			for len(toks) > c.ChunkSize {
				units = append(units, strings.Join(toks[:c.ChunkSize], " "))
				toks = toks[c.ChunkSize:]
			}
			if len(toks) > 0 {
				units = append(units, strings.Join(toks, " "))
			}
		}
	}
	return units
}

func (c *Chunker) newChunk(docID string, sec models.Section, seq int, kind models.SectionKind, text string, overlapped bool) models.Chunk {
	return models.Chunk{
		ID:              chunkID(docID, sec.Index, seq),
		DocumentID:      docID,
		SectionIndex:    sec.Index,
		Kind:            kind,
		Text:            text,
		TokenCount:      CountTokens(text),
		OverlapWithPrev: overlapped,
	}
}

// chunkID derives a stable identifier so re-indexing a document reproduces
// the same IDs.
func chunkID(docID string, section, seq int) string {
	h := sha1.Sum([]byte(fmt.Sprintf("%s#%d:%d", docID, section, seq)))
	return hex.EncodeToString(h[:])
}
