package chunker

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/cloudnetkb/knowledge-base-api/internal/domain/docmodel"
	"github.com/cloudnetkb/knowledge-base-api/pkg/logger_i"
)

// ErrOverlapTooLarge guards the reassembly loop: with overlap >= size the
// window would never advance.
var ErrOverlapTooLarge = errors.New("chunk overlap must be smaller than chunk size")

// DefaultSeparators ordered from "best" to "worst" for semantic meaning.
// The empty string is the terminal fallback: hard character slicing.
var DefaultSeparators = []string{"\n\n", "\n", "。", "！", "？", "；", " ", ""}

// Splitter budgets in characters, not bytes: a 1000-character budget
// holds 1000 characters of Chinese text, same as English.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
	logger       *logger_i.Logger
}

func New(chunkSize, chunkOverlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, errors.New("chunk size must be positive")
	}
	if chunkOverlap >= chunkSize {
		return nil, ErrOverlapTooLarge
	}
	return &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   DefaultSeparators,
		logger:       logger_i.NewLogger("Chunker"),
	}, nil
}

// Split cuts text into ordered, overlapping chunks numbered 0..N-1.
// It never fails: if the recursive splitter blows up the degraded
// whitespace windowing takes over, so ingestion cannot die here.
func (s *Splitter) Split(text string) []docmodel.Chunk {
	if strings.TrimSpace(text) == "" {
		return []docmodel.Chunk{}
	}

	pieces := s.protectedSplit(text)
	return s.assemble(pieces)
}

func (s *Splitter) protectedSplit(text string) (pieces []string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("recursive splitter failed, using whitespace fallback", "panic", r)
			pieces = s.fallbackPieces(text)
		}
	}()
	return s.splitRecursive(text, s.separators)
}

// splitRecursive tries the first separator present in the text; any piece
// still larger than chunkSize is re-split with the remaining separators.
// The "" separator hard-slices as the final resort.
func (s *Splitter) splitRecursive(text string, separators []string) []string {
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= s.chunkSize {
		return []string{text}
	}

	separator := ""
	rest := separators
	for i, sep := range separators {
		if sep == "" || strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	if separator == "" {
		return s.hardSlice(text)
	}

	var pieces []string
	parts := strings.SplitAfter(text, separator)
	for _, part := range parts {
		if part == "" {
			continue
		}
		if utf8.RuneCountInString(part) <= s.chunkSize {
			pieces = append(pieces, part)
			continue
		}
		pieces = append(pieces, s.splitRecursive(part, rest)...)
	}
	return pieces
}

func (s *Splitter) hardSlice(text string) []string {
	runes := []rune(text)
	var pieces []string
	for len(runes) > s.chunkSize {
		pieces = append(pieces, string(runes[:s.chunkSize]))
		runes = runes[s.chunkSize:]
	}
	if len(runes) > 0 {
		pieces = append(pieces, string(runes))
	}
	return pieces
}

// assemble greedily concatenates adjacent small pieces up to chunkSize,
// carrying chunkOverlap trailing characters of the previous chunk into
// the start of the next one.
func (s *Splitter) assemble(pieces []string) []docmodel.Chunk {
	var chunks []docmodel.Chunk
	var current strings.Builder
	size := 0 // characters in current
	position := 0
	carried := 0

	flush := func() {
		if current.Len() == 0 {
			return
		}
		content := current.String()
		chunks = append(chunks, s.newChunk(content, len(chunks), position))

		overlapTail := tail(content, s.chunkOverlap)
		carried = utf8.RuneCountInString(overlapTail)
		position += size - carried
		size = carried
		current.Reset()
		current.WriteString(overlapTail)
	}

	for _, piece := range pieces {
		n := utf8.RuneCountInString(piece)
		// Oversized atomic piece: accepted overflow, emitted on its own.
		if n > s.chunkSize {
			flush()
			current.Reset()
			size = 0
			carried = 0
			current.WriteString(piece)
			size = n
			flush()
			continue
		}
		if size+n > s.chunkSize {
			flush()
			// Carried overlap plus a near-limit piece must not push the
			// next chunk over budget; drop the overlap in that case.
			if size+n > s.chunkSize {
				current.Reset()
				size = 0
				carried = 0
			}
		}
		current.WriteString(piece)
		size += n
	}
	if strings.TrimSpace(trimCarried(current.String(), carried)) != "" || len(chunks) == 0 {
		content := current.String()
		if content != "" {
			chunks = append(chunks, s.newChunk(content, len(chunks), position))
		}
	}
	return chunks
}

func (s *Splitter) newChunk(content string, index, start int) docmodel.Chunk {
	return docmodel.Chunk{
		Content:    content,
		ChunkIndex: index,
		StartPos:   start,
		EndPos:     start + utf8.RuneCountInString(content),
		WordCount:  len(strings.Fields(content)),
	}
}

// fallbackPieces is the degraded mode: plain whitespace tokens, windowed by
// assemble with the same size/overlap budget. No separator awareness, but it
// cannot fail.
func (s *Splitter) fallbackPieces(text string) []string {
	words := strings.Fields(text)
	pieces := make([]string, 0, len(words))
	for i, word := range words {
		if utf8.RuneCountInString(word) > s.chunkSize {
			pieces = append(pieces, s.hardSlice(word)...)
			continue
		}
		if i < len(words)-1 {
			word += " "
		}
		pieces = append(pieces, word)
	}
	return pieces
}

// tail returns the last n characters of text.
func tail(text string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[len(runes)-n:])
}

// trimCarried drops the carried overlap characters from the front.
func trimCarried(text string, carried int) string {
	runes := []rune(text)
	if carried >= len(runes) {
		return ""
	}
	return string(runes[carried:])
}
