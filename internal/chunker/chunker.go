package chunker

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	// DefaultTargetTokens is the target maximum token count per chunk
	DefaultTargetTokens = 512

	// DefaultOverlapTokens is how many tokens consecutive chunks share
	DefaultOverlapTokens = 64

	// TokensPerChar is the heuristic for estimating tokens (chars/4)
	TokensPerChar = 4
)

// TokenCounter counts tokens in a piece of text. Embedding providers
// that expose their tokenizer supply one; EstimateTokens is the
// character-based stand-in.
type TokenCounter func(text string) int

// EstimateTokens estimates the number of tokens in a string
func EstimateTokens(text string) int {
	return len(text) / TokensPerChar
}

// Chunk is one token-bounded slice of a document body.
type Chunk struct {
	Text   string
	Seq    int // 0-based order within the document
	Pos    int // byte offset of Text in the original body
	Tokens int
}

// Chunker splits document bodies into overlapping chunks
type Chunker struct {
	target  int
	overlap int
	counter TokenCounter
}

// New creates a Chunker. Overlap must be smaller than the target or the
// window could not advance. A nil counter means no tokenizer is
// available; Split then returns the whole body as one chunk with an
// estimated token count instead of windowing on guessed boundaries.
func New(targetTokens, overlapTokens int, counter TokenCounter) (*Chunker, error) {
	if targetTokens <= 0 {
		return nil, fmt.Errorf("target tokens must be positive, got %d", targetTokens)
	}
	if overlapTokens < 0 || overlapTokens >= targetTokens {
		return nil, fmt.Errorf("overlap tokens must be in [0, %d), got %d", targetTokens, overlapTokens)
	}
	return &Chunker{target: targetTokens, overlap: overlapTokens, counter: counter}, nil
}

// word is a whitespace-delimited run with its byte span in the body.
type word struct {
	start  int
	end    int
	tokens int
}

// Split divides text into chunks. Whitespace-only input yields no
// chunks; text within the token target yields exactly one chunk that is
// the whole body. Without a tokenizer the whole body is one chunk.
//
// Chunk byte spans always cover the source: each chunk either overlaps
// the next or runs right up to its first byte, so stripping the overlap
// and concatenating reconstructs the original text.
func (c *Chunker) Split(text string) []Chunk {
	if c.counter == nil {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []Chunk{{Text: text, Seq: 0, Pos: 0, Tokens: EstimateTokens(text)}}
	}

	words := c.splitWords(text)
	if len(words) == 0 {
		return nil
	}

	total := 0
	for _, w := range words {
		total += w.tokens
	}
	if total <= c.target {
		return []Chunk{{Text: text, Seq: 0, Pos: 0, Tokens: total}}
	}

	var chunks []Chunk
	start := 0
	for start < len(words) {
		// Grow the window until the next word would exceed the target.
		// A single oversized word still forms a chunk on its own.
		end := start
		tokens := 0
		for end < len(words) && (end == start || tokens+words[end].tokens <= c.target) {
			tokens += words[end].tokens
			end++
		}

		if end >= len(words) {
			chunks = append(chunks, Chunk{
				Text:   text[words[start].start:words[end-1].end],
				Seq:    len(chunks),
				Pos:    words[start].start,
				Tokens: tokens,
			})
			break
		}

		// Step back far enough to carry the overlap into the next
		// chunk, but always advance past the previous start.
		next := end
		carried := 0
		for next > start+1 && carried+words[next-1].tokens <= c.overlap {
			next--
			carried += words[next].tokens
		}

		// When the boundary word is bigger than the overlap budget no
		// word carries back; extend this chunk through the separator
		// so the spans still tile the source.
		textEnd := words[end-1].end
		if next == end {
			textEnd = words[next].start
		}

		chunks = append(chunks, Chunk{
			Text:   text[words[start].start:textEnd],
			Seq:    len(chunks),
			Pos:    words[start].start,
			Tokens: tokens,
		})
		start = next
	}

	return chunks
}

// splitWords scans the body into whitespace-delimited words with byte
// offsets, counting tokens per word so window sums stay cheap.
func (c *Chunker) splitWords(text string) []word {
	var words []word
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				words = append(words, c.makeWord(text, start, i))
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		words = append(words, c.makeWord(text, start, len(text)))
	}
	return words
}

func (c *Chunker) makeWord(text string, start, end int) word {
	tokens := c.counter(text[start:end])
	if tokens < 1 {
		tokens = 1
	}
	return word{start: start, end: end, tokens: tokens}
}
