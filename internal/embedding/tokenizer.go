package embedding

import (
	"hash/fnv"
	"strings"
)

// Tokenizer converts text into the three input tensors BERT-family ONNX
// models expect: input_ids, attention_mask, token_type_ids.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// Special token ids shared by the BERT/MiniLM vocabularies, plus the range
// the hashing tokenizer maps words into.
const (
	clsTokenID = 101
	sepTokenID = 102

	defaultMaxTokens = 256
	hashVocabSize    = 30000
)

// SimpleTokenizer approximates wordpiece tokenization by hashing whitespace
// words into a fixed vocabulary range. It needs no vocab file, which makes
// it the fallback path and the test tokenizer.
type SimpleTokenizer struct{}

// Tokenize produces [CLS] word... [SEP] padded with zeros out to maxTokens.
// All three slices have length maxTokens; token_type_ids stay zero for
// single-segment input.
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	tokens := []int64{clsTokenID}
	for _, word := range SplitWords(text) {
		if len(tokens) >= maxTokens-1 {
			break
		}
		tokens = append(tokens, int64(HashString(word)%hashVocabSize))
	}
	tokens = append(tokens, sepTokenID)
	if len(tokens) > maxTokens {
		tokens = tokens[:maxTokens]
	}

	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)
	for i, id := range tokens {
		inputIDs[i] = id
		attentionMask[i] = 1
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

// SplitWords returns the non-empty whitespace-separated words of text.
func SplitWords(text string) []string {
	return strings.Fields(text)
}

// HashString maps a word onto a stable non-negative id (FNV-1a).
func HashString(s string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32())
}
