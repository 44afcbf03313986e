package embedding

import (
	"hash/fnv"
	"strings"
	"unicode"
)

// Tokenizer produces token IDs for BERT-style models (input_ids, attention_mask, token_type_ids).
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

const (
	clsToken  = 101
	sepToken  = 102
	vocabSize = 30000
)

// SimpleTokenizer maps lowercased terms to hashed vocabulary IDs. It has no
// vocabulary file, so it only approximates a real WordPiece tokenizer.
type SimpleTokenizer struct{}

// Tokenize produces [CLS] terms... [SEP] padded to maxTokens.
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 2 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0] = clsToken
	attentionMask[0] = 1
	pos := 1
	for _, term := range Terms(text) {
		if pos >= maxTokens-1 {
			break
		}
		// IDs below 1000 are reserved for special tokens.
		inputIDs[pos] = int64(1000 + HashString(term)%(vocabSize-1000))
		attentionMask[pos] = 1
		pos++
	}
	inputIDs[pos] = sepToken
	attentionMask[pos] = 1
	return inputIDs, attentionMask, tokenTypeIDs
}

// Terms lowercases text and splits it into runs of letters and digits.
func Terms(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// HashString returns a deterministic non-negative FNV-1a hash of s.
func HashString(s string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() & 0x7fffffff)
}
