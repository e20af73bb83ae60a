// Package encode builds paired-sequence model inputs from a tokenizer:
// "[CLS] first [SEP] second [SEP]" with only-second truncation, padding to a
// fixed length on a declared side, and overflow reporting so that long second
// sequences can be chained across several encodings.
package encode

import (
	"github.com/gomlx/go-squad/tokenizers/api"
	"github.com/pkg/errors"
)

// Side selects which side of the sequence padding is applied on.
type Side int

const (
	PadRight Side = iota
	PadLeft
)

// String implements fmt.Stringer.
func (s Side) String() string {
	if s == PadLeft {
		return "left"
	}
	return "right"
}

// Options configures one EncodePair call.
type Options struct {
	// MaxLength is the total sequence length, special tokens included.
	MaxLength int
	// Stride is the number of second-sequence tokens repeated at the head of
	// the overflow, so consecutive encodings overlap.
	Stride int
	// PadToMaxLength pads the sequence up to MaxLength with the pad token.
	PadToMaxLength bool
	// ReturnOverflow reports the truncated-off suffix of the second sequence.
	ReturnOverflow bool
}

// Encoding is the result of one EncodePair call.
type Encoding struct {
	InputIDs          []int
	TokenTypeIDs      []int
	AttentionMask     []int
	SpecialTokensMask []int

	// OverflowingTokens is the suffix of the second sequence that did not fit,
	// prefixed by the last Stride tokens that did. Empty when everything fit.
	OverflowingTokens []string

	// NumPadding is the number of pad positions in InputIDs.
	NumPadding int
}

// Encoder assembles paired-sequence encodings for a tokenizer with BERT-style
// classification/separator/pad tokens.
type Encoder struct {
	tok                 api.Tokenizer
	clsID, sepID, padID int
	unkID               int // -1 when the vocabulary has no unknown token
	padSide             Side
}

// New creates an Encoder for the given tokenizer. It fails if the tokenizer
// does not define classification, separator and pad tokens.
func New(tok api.Tokenizer) (*Encoder, error) {
	e := &Encoder{tok: tok, unkID: -1}
	var err error
	if e.clsID, err = tok.SpecialTokenID(api.TokClassification); err != nil {
		return nil, errors.WithMessagef(err, "encoder requires a classification token")
	}
	if e.sepID, err = tok.SpecialTokenID(api.TokSeparator); err != nil {
		return nil, errors.WithMessagef(err, "encoder requires a separator token")
	}
	if e.padID, err = tok.SpecialTokenID(api.TokPad); err != nil {
		return nil, errors.WithMessagef(err, "encoder requires a pad token")
	}
	if unkID, err := tok.SpecialTokenID(api.TokUnknown); err == nil {
		e.unkID = unkID
	}
	return e, nil
}

// WithPaddingSide sets the padding side and returns the Encoder, for chaining.
func (e *Encoder) WithPaddingSide(side Side) *Encoder {
	e.padSide = side
	return e
}

// Tokenizer returns the wrapped tokenizer.
func (e *Encoder) Tokenizer() api.Tokenizer { return e.tok }

// ClsID returns the classification token id.
func (e *Encoder) ClsID() int { return e.clsID }

// SepID returns the separator token id.
func (e *Encoder) SepID() int { return e.sepID }

// PadID returns the pad token id.
func (e *Encoder) PadID() int { return e.padID }

// PaddingSide returns the side padding is applied on.
func (e *Encoder) PaddingSide() Side { return e.padSide }

// NumAddedTokens returns how many special tokens an encoding adds: 2 for a
// single sequence ([CLS] s [SEP]), 3 for a pair ([CLS] a [SEP] b [SEP]).
func (e *Encoder) NumAddedTokens(pair bool) int {
	if pair {
		return 3
	}
	return 2
}

// EncodePair encodes first (already ids) and second (token strings) into one
// fixed-layout sequence. Only the second sequence is truncated; the truncated
// suffix is reported through Encoding.OverflowingTokens when requested.
func (e *Encoder) EncodePair(firstIDs []int, secondTokens []string, opts Options) (*Encoding, error) {
	if opts.MaxLength <= 0 {
		return nil, errors.Errorf("EncodePair: MaxLength must be positive, got %d", opts.MaxLength)
	}
	capacity := opts.MaxLength - len(firstIDs) - e.NumAddedTokens(true)
	if capacity <= 0 {
		return nil, errors.Errorf(
			"EncodePair: no room for the second sequence: MaxLength=%d, first sequence length=%d, special tokens=%d",
			opts.MaxLength, len(firstIDs), e.NumAddedTokens(true))
	}
	if opts.Stride < 0 {
		return nil, errors.Errorf("EncodePair: Stride must be non-negative, got %d", opts.Stride)
	}

	kept := secondTokens
	var overflowing []string
	if len(secondTokens) > capacity {
		kept = secondTokens[:capacity]
		if opts.ReturnOverflow {
			start := capacity - opts.Stride
			if start < 0 {
				start = 0
			}
			overflowing = secondTokens[start:]
		}
	}

	keptIDs := make([]int, len(kept))
	for i, token := range kept {
		id, ok := e.tok.TokenToID(token)
		if !ok {
			if e.unkID < 0 {
				return nil, errors.Errorf("EncodePair: token %q not in vocabulary and no unknown token defined", token)
			}
			id = e.unkID
		}
		keptIDs[i] = id
	}

	seqLen := len(firstIDs) + len(keptIDs) + e.NumAddedTokens(true)
	enc := &Encoding{
		InputIDs:          make([]int, 0, opts.MaxLength),
		TokenTypeIDs:      make([]int, 0, opts.MaxLength),
		AttentionMask:     make([]int, 0, opts.MaxLength),
		SpecialTokensMask: make([]int, 0, opts.MaxLength),
		OverflowingTokens: overflowing,
	}

	appendToken := func(id, typeID, special int) {
		enc.InputIDs = append(enc.InputIDs, id)
		enc.TokenTypeIDs = append(enc.TokenTypeIDs, typeID)
		enc.AttentionMask = append(enc.AttentionMask, 1)
		enc.SpecialTokensMask = append(enc.SpecialTokensMask, special)
	}

	numPad := 0
	if opts.PadToMaxLength {
		numPad = opts.MaxLength - seqLen
	}
	enc.NumPadding = numPad
	appendPadding := func() {
		for range numPad {
			enc.InputIDs = append(enc.InputIDs, e.padID)
			enc.TokenTypeIDs = append(enc.TokenTypeIDs, 0)
			enc.AttentionMask = append(enc.AttentionMask, 0)
			enc.SpecialTokensMask = append(enc.SpecialTokensMask, 1)
		}
	}

	if e.padSide == PadLeft {
		appendPadding()
	}
	appendToken(e.clsID, 0, 1)
	for _, id := range firstIDs {
		appendToken(id, 0, 0)
	}
	appendToken(e.sepID, 0, 1)
	for _, id := range keptIDs {
		appendToken(id, 1, 0)
	}
	appendToken(e.sepID, 1, 1)
	if e.padSide == PadRight {
		appendPadding()
	}

	return enc, nil
}
