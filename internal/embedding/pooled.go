package embedding

import (
	"context"
	"fmt"
)

// Encoder maps padded token ids to one hidden state per position.
type Encoder interface {
	Encode(ctx context.Context, ids [][]uint64) ([][][]float32, error)
	Dimensions() int
}

// HashEncoder derives each token's hidden state from its id with a
// splitmix64 stream, so equal tokens always map to equal states. Padding
// positions get a constant non-zero state.
type HashEncoder struct {
	dims int
	pad  []float32
}

// NewHashEncoder creates a HashEncoder. A non-positive dims uses
// DefaultDimensions.
func NewHashEncoder(dims int) *HashEncoder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	pad := make([]float32, dims)
	for i := range pad {
		pad[i] = 1
	}
	return &HashEncoder{dims: dims, pad: pad}
}

// Dimensions returns the hidden size.
func (e *HashEncoder) Dimensions() int { return e.dims }

// Encode returns hidden states shaped [batch][position][dims].
func (e *HashEncoder) Encode(_ context.Context, ids [][]uint64) ([][][]float32, error) {
	out := make([][][]float32, len(ids))
	for i, seq := range ids {
		states := make([][]float32, len(seq))
		for j, id := range seq {
			if id == PadID {
				states[j] = e.pad
				continue
			}
			states[j] = e.state(id)
		}
		out[i] = states
	}
	return out, nil
}

func (e *HashEncoder) state(id uint64) []float32 {
	v := make([]float32, e.dims)
	x := id
	for k := range v {
		x += 0x9e3779b97f4a7c15
		z := x
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		z ^= z >> 31
		// top 53 bits to [-1, 1)
		v[k] = float32(float64(z>>11)/float64(1<<53)*2 - 1)
	}
	return v
}

// MeanPool averages hidden states over positions whose mask is 1. A row
// with no unmasked positions pools to the zero vector.
func MeanPool(hidden [][][]float32, mask [][]int) ([][]float32, error) {
	if len(hidden) != len(mask) {
		return nil, fmt.Errorf("embedding: mean pool: %d hidden rows, %d mask rows", len(hidden), len(mask))
	}
	out := make([][]float32, len(hidden))
	for i, states := range hidden {
		if len(states) != len(mask[i]) {
			return nil, fmt.Errorf("embedding: mean pool: row %d has %d states, %d mask entries", i, len(states), len(mask[i]))
		}
		var dims int
		if len(states) > 0 {
			dims = len(states[0])
		}
		sum := make([]float64, dims)
		n := 0
		for j, s := range states {
			if mask[i][j] != 1 {
				continue
			}
			n++
			for k, x := range s {
				sum[k] += float64(x)
			}
		}
		vec := make([]float32, dims)
		if n > 0 {
			for k := range sum {
				vec[k] = float32(sum[k] / float64(n))
			}
		}
		out[i] = vec
	}
	return out, nil
}

// Pooled runs a Tokenizer and Encoder in sub-batches and mean-pools the
// hidden states. It has no external dependency and never blocks.
type Pooled struct {
	name      string
	tok       *Tokenizer
	enc       Encoder
	batchSize int
}

// NewPooled creates a Pooled engine. An empty name defaults to one derived
// from the encoder size and tokenizer length.
func NewPooled(name string, tok *Tokenizer, enc Encoder, batchSize int) *Pooled {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if name == "" {
		name = fmt.Sprintf("hash-trigram-%d-%d", enc.Dimensions(), tok.MaxLength())
	}
	return &Pooled{name: name, tok: tok, enc: enc, batchSize: batchSize}
}

// Name implements Engine.
func (p *Pooled) Name() string { return p.name }

// Dimensions implements Engine.
func (p *Pooled) Dimensions() int { return p.enc.Dimensions() }

// Embed implements Engine.
func (p *Pooled) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	err := batches(texts, p.batchSize, func(batch []string) error {
		tok := p.tok.Encode(batch)
		hidden, err := p.enc.Encode(ctx, tok.IDs)
		if err != nil {
			return err
		}
		vecs, err := MeanPool(hidden, tok.Mask)
		if err != nil {
			return err
		}
		if _, err := checkDims(vecs, p.enc.Dimensions()); err != nil {
			return err
		}
		out = append(out, vecs...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: %s: %w", p.name, err)
	}
	return out, nil
}
