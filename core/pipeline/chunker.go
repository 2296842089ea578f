package pipeline

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/siherrmann/securerag/model"
)

// sentenceBoundary matches terminal punctuation followed by whitespace or a run of blank lines.
var sentenceBoundary = regexp.MustCompile(`[.!?]\s+|\n[ \t\r]*\n\s*`)

// SentenceChunker creates a chunker that packs whole sentences into chunks of at most
// maxLen characters. Sentences are joined by a single space. A sentence longer than
// maxLen becomes a chunk of its own and is never split.
func SentenceChunker(maxLen int) ChunkFunc {
	return func(text string) ([]string, error) {
		if maxLen <= 0 {
			return nil, fmt.Errorf("%w: max chunk length must be positive", model.ErrValidation)
		}

		chunks := []string{}
		var buffer strings.Builder
		bufferLen := 0

		for _, sentence := range SplitSentences(text) {
			sentenceLen := utf8.RuneCountInString(sentence)
			if bufferLen > 0 && bufferLen+1+sentenceLen <= maxLen {
				buffer.WriteByte(' ')
				buffer.WriteString(sentence)
				bufferLen += 1 + sentenceLen
				continue
			}

			if bufferLen > 0 {
				chunks = append(chunks, buffer.String())
				buffer.Reset()
			}
			buffer.WriteString(sentence)
			bufferLen = sentenceLen
		}

		if bufferLen > 0 {
			chunks = append(chunks, buffer.String())
		}

		return chunks, nil
	}
}

// SplitSentences splits text at sentence boundaries and drops empty sentences.
// Terminal punctuation stays with its sentence.
func SplitSentences(text string) []string {
	var sentences []string
	start := 0
	for _, loc := range sentenceBoundary.FindAllStringIndex(text, -1) {
		end := loc[0]
		switch text[loc[0]] {
		case '.', '!', '?':
			end++
		}
		if s := strings.TrimSpace(text[start:end]); s != "" {
			sentences = append(sentences, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
