// Package chunker provides the sentence-aware text splitter used at index
// time. Adapter implementing ports.Chunker.
package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts tokens in a piece of text.
type TokenCounter interface {
	Count(text string) int
}

// WordCounter approximates tokens by whitespace-separated words.
type WordCounter struct{}

// Count returns the number of words in text.
func (WordCounter) Count(text string) int {
	return len(strings.Fields(text))
}

// TikTokenCounter counts tokens with a tiktoken BPE encoding.
type TikTokenCounter struct {
	tke *tiktoken.Tiktoken
}

// NewTikTokenCounter loads the named encoding, e.g. "cl100k_base".
func NewTikTokenCounter(encoding string) (*TikTokenCounter, error) {
	tke, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("loading tiktoken encoding %q: %w", encoding, err)
	}
	return &TikTokenCounter{tke: tke}, nil
}

// Count returns the number of BPE tokens in text.
func (c *TikTokenCounter) Count(text string) int {
	return len(c.tke.Encode(text, nil, nil))
}

// NewCounter returns the counter for a tokenizer name: "words" or any
// tiktoken encoding.
func NewCounter(tokenizer string) (TokenCounter, error) {
	switch tokenizer {
	case "", "words":
		return WordCounter{}, nil
	default:
		return NewTikTokenCounter(tokenizer)
	}
}

// sentenceEnd matches sentence punctuation followed by whitespace, or a
// blank line.
var sentenceEnd = regexp.MustCompile(`([.!?]["')\]]?)\s+|\n\s*\n`)

// SentenceChunker packs whole sentences into chunks of at most size tokens,
// repeating up to overlap tokens of trailing sentences at the start of the
// next chunk. Sentences longer than size are cut at word boundaries.
type SentenceChunker struct {
	size    int
	overlap int
	counter TokenCounter
}

// NewSentenceChunker creates a chunker. Defaults: 1024 tokens, 200 overlap,
// word counting.
func NewSentenceChunker(size, overlap int, counter TokenCounter) *SentenceChunker {
	if size <= 0 {
		size = 1024
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 5
	}
	if counter == nil {
		counter = WordCounter{}
	}
	return &SentenceChunker{size: size, overlap: overlap, counter: counter}
}

// Split implements ports.Chunker.
func (c *SentenceChunker) Split(text string) []string {
	var (
		chunks []string
		cur    []string
		counts []int
		total  int
	)

	flush := func() {
		if len(cur) > 0 {
			chunks = append(chunks, strings.Join(cur, " "))
		}
	}

	for _, sentence := range c.sentences(text) {
		n := c.counter.Count(sentence)

		if total+n > c.size && len(cur) > 0 {
			flush()

			// Carry trailing sentences worth at most overlap tokens, leaving
			// room for the incoming sentence.
			keep, kept := 0, 0
			for i := len(cur) - 1; i > 0; i-- {
				if kept+counts[i] > c.overlap || kept+counts[i]+n > c.size {
					break
				}
				kept += counts[i]
				keep++
			}
			cur = append([]string(nil), cur[len(cur)-keep:]...)
			counts = append([]int(nil), counts[len(counts)-keep:]...)
			total = kept
		}

		cur = append(cur, sentence)
		counts = append(counts, n)
		total += n
	}
	flush()

	return chunks
}

// sentences splits text into trimmed sentences no longer than size tokens.
func (c *SentenceChunker) sentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var out []string
	last := 0
	for _, loc := range sentenceEnd.FindAllStringSubmatchIndex(text, -1) {
		end := loc[1]
		if loc[2] >= 0 {
			end = loc[3] // keep punctuation, drop whitespace
		}
		out = c.appendSentence(out, text[last:end])
		last = loc[1]
	}
	out = c.appendSentence(out, text[last:])
	return out
}

func (c *SentenceChunker) appendSentence(out []string, s string) []string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return out
	}
	if c.counter.Count(s) <= c.size {
		return append(out, s)
	}

	// Cut an over-long sentence at word boundaries.
	var piece []string
	tokens := 0
	for _, w := range strings.Fields(s) {
		n := c.counter.Count(w)
		if tokens+n > c.size && len(piece) > 0 {
			out = append(out, strings.Join(piece, " "))
			piece, tokens = nil, 0
		}
		piece = append(piece, w)
		tokens += n
	}
	if len(piece) > 0 {
		out = append(out, strings.Join(piece, " "))
	}
	return out
}
