package embedding

import (
	"hash/fnv"
	"strings"
	"unicode"
)

// PadID is the token id of padding positions.
const PadID uint64 = 0

// Tokens is a padded batch: every row has exactly MaxLength entries.
type Tokens struct {
	IDs  [][]uint64
	Mask [][]int
}

// Tokenizer turns text into word-boundary character trigrams. Each word w
// contributes the trigrams of "_w_", so "читать" yields "_чи", "чит", ...,
// "ть_". Sequences are truncated or padded to maxLength.
type Tokenizer struct {
	maxLength int
}

// NewTokenizer creates a Tokenizer. A non-positive maxLength uses
// DefaultMaxLength.
func NewTokenizer(maxLength int) *Tokenizer {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &Tokenizer{maxLength: maxLength}
}

// MaxLength returns the padded sequence length.
func (t *Tokenizer) MaxLength() int { return t.maxLength }

// Pieces returns the unpadded token strings of text.
func (t *Tokenizer) Pieces(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var out []string
	for _, w := range words {
		rs := []rune("_" + w + "_")
		for i := 0; i+3 <= len(rs); i++ {
			out = append(out, string(rs[i:i+3]))
			if len(out) == t.maxLength {
				return out
			}
		}
	}
	return out
}

// Encode tokenizes every text and pads the batch.
func (t *Tokenizer) Encode(texts []string) Tokens {
	tok := Tokens{
		IDs:  make([][]uint64, len(texts)),
		Mask: make([][]int, len(texts)),
	}
	for i, text := range texts {
		ids := make([]uint64, t.maxLength)
		mask := make([]int, t.maxLength)
		for j, p := range t.Pieces(text) {
			ids[j] = tokenID(p)
			mask[j] = 1
		}
		tok.IDs[i] = ids
		tok.Mask[i] = mask
	}
	return tok
}

func tokenID(piece string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(piece))
	id := h.Sum64()
	if id == PadID {
		id = 1
	}
	return id
}
