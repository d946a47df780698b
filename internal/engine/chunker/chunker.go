// Package chunker splits a transcript into token-budgeted, sentence-aligned
// chunks for map-reduce summarization.
package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Chunk is one token-budgeted substring of a transcript, tagged with its
// position so map-phase results can be reassembled in order.
type Chunk struct {
	Index int
	Text  string
}

// GPT4oContextTokens is the target model's context window. ChunkWindow
// leaves a safety margin below it for prompt scaffolding and completion
// tokens, per §6: "Token window W is chosen to leave >= 25% margin below
// the model's context limit for prompt + completion."
const GPT4oContextTokens = 128_000

// DefaultWindow is W with a 25% margin already subtracted.
const DefaultWindow = GPT4oContextTokens - GPT4oContextTokens/4

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

func encoding() (*tiktoken.Tiktoken, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.GetEncoding("cl100k_base")
	})
	return enc, encErr
}

// CountTokens returns the number of cl100k_base tokens s would bill as —
// the same encoding the original implementation counted with, so chunk
// boundaries match what the model actually charges for.
func CountTokens(s string) (int, error) {
	e, err := encoding()
	if err != nil {
		return 0, fmt.Errorf("load tokenizer: %w", err)
	}
	return len(e.Encode(s, nil, nil)), nil
}

// sentenceSplitRE splits on '.', '?', '!' followed by whitespace, optionally
// with one closing quote or bracket between the punctuation and the
// whitespace. Abbreviations are handled by splitSentences, not the pattern.
var sentenceSplitRE = regexp.MustCompile(`([.?!]["')\]]?)\s+`)

var abbreviations = map[string]bool{
	"mr.": true, "mrs.": true, "ms.": true, "dr.": true, "prof.": true,
	"hon.": true, "sen.": true, "rep.": true, "gen.": true, "no.": true,
	"vs.": true, "etc.": true, "e.g.": true, "i.e.": true,
}

// splitSentences performs punctuation-aware sentence splitting, merging a
// split back into the previous sentence when the preceding token is a
// known abbreviation.
func splitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	locs := sentenceSplitRE.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []string{text}
	}

	var sentences []string
	start := 0
	for _, loc := range locs {
		end := loc[1]
		candidate := text[start:end]
		lastWord := strings.ToLower(lastToken(strings.TrimSpace(candidate)))
		if abbreviations[lastWord] {
			continue // fold into the next split point instead of breaking here
		}
		sentences = append(sentences, strings.TrimSpace(candidate))
		start = end
	}
	if start < len(text) {
		sentences = append(sentences, strings.TrimSpace(text[start:]))
	}
	return sentences
}

func lastToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// ChunkTranscript splits transcript into an ordered list of non-overlapping chunks,
// each at most window tokens, each beginning and ending on a sentence
// boundary whenever one exists within window. A single sentence exceeding
// window alone is hard-split on a token boundary (§4.E step 4).
func ChunkTranscript(transcript string, window int) ([]Chunk, error) {
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive, got %d", window)
	}
	e, err := encoding()
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	sentences := splitSentences(transcript)
	if len(sentences) == 0 {
		return nil, nil
	}

	var chunks []Chunk
	var current strings.Builder
	currentTokens := 0

	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Text: strings.TrimSpace(current.String())})
		current.Reset()
		currentTokens = 0
	}

	for _, sentence := range sentences {
		sentTokens := len(e.Encode(sentence, nil, nil))

		if sentTokens > window {
			// a single sentence alone exceeds the window: flush what we have,
			// then hard-split this sentence on a token boundary.
			flush()
			for _, part := range hardSplit(e, sentence, window) {
				chunks = append(chunks, Chunk{Index: len(chunks), Text: part})
			}
			continue
		}

		if currentTokens+sentTokens > window {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
		currentTokens += sentTokens
	}
	flush()

	return chunks, nil
}

// hardSplit splits a single oversize sentence into window-sized token
// windows, decoding each window back to text.
func hardSplit(e *tiktoken.Tiktoken, sentence string, window int) []string {
	tokens := e.Encode(sentence, nil, nil)
	var parts []string
	for i := 0; i < len(tokens); i += window {
		end := i + window
		if end > len(tokens) {
			end = len(tokens)
		}
		parts = append(parts, e.Decode(tokens[i:end]))
	}
	return parts
}
