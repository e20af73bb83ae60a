// Package sentencepiece implements an api.Tokenizer based on the
// SentencePiece tokenizer.
//
// SentencePiece models don't carry BERT-style [CLS]/[SEP] markers, so this
// implementation serves the token-level operations (Tokenize, Encode, Decode,
// alignment) rather than the paired-sequence layout.
package sentencepiece

import (
	esentencepiece "github.com/eliben/go-sentencepiece"
	"github.com/gomlx/go-squad/tokenizers/api"
	"github.com/pkg/errors"
)

// New creates a SentencePiece tokenizer from a "tokenizer.model" file, which
// must be a SentencePiece Model proto.
func New(modelPath string) (*Tokenizer, error) {
	proc, err := esentencepiece.NewProcessorFromPath(modelPath)
	if err != nil {
		return nil, errors.Wrapf(err, "can't create sentencepiece tokenizer from %q", modelPath)
	}
	return &Tokenizer{
		Processor: proc,
		Info:      proc.ModelInfo(),
	}, nil
}

// Tokenizer implements api.Tokenizer based on the SentencePiece tokenizer by Google.
type Tokenizer struct {
	*esentencepiece.Processor
	Info *esentencepiece.ModelInfo
}

// Compile time assert that sentencepiece.Tokenizer implements api.Tokenizer interface.
var _ api.Tokenizer = &Tokenizer{}

// Tokenize returns the text split into sentence-piece strings.
func (p *Tokenizer) Tokenize(text string) []string {
	tokens := p.Processor.Encode(text)
	return sliceMap(tokens, func(t esentencepiece.Token) string { return t.Text })
}

// Encode returns the text encoded into a sequence of ids.
func (p *Tokenizer) Encode(text string) []int {
	tokens := p.Processor.Encode(text)
	return sliceMap(tokens, func(t esentencepiece.Token) int { return t.ID })
}

// Decode returns the text from a sequence of ids.
func (p *Tokenizer) Decode(ids []int) string {
	return p.Processor.Decode(ids)
}

// TokenToID converts a single piece to its id. Pieces that re-tokenize into
// more than one token are not in the vocabulary.
func (p *Tokenizer) TokenToID(token string) (int, bool) {
	tokens := p.Processor.Encode(token)
	if len(tokens) != 1 {
		return 0, false
	}
	return tokens[0].ID, true
}

// IDToToken converts a single id back to its text form.
func (p *Tokenizer) IDToToken(id int) (string, bool) {
	text := p.Processor.Decode([]int{id})
	if text == "" {
		return "", false
	}
	return text, true
}

// SpecialTokenID returns the token for the given symbol, or an error if not known.
func (p *Tokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	var id int
	switch token {
	case api.TokUnknown:
		id = p.Info.UnknownID
	case api.TokPad:
		id = p.Info.PadID
	case api.TokBeginningOfSentence:
		id = p.Info.BeginningOfSentenceID
	case api.TokEndOfSentence:
		id = p.Info.EndOfSentenceID
	default:
		return 0, errors.Errorf("unknown special token: %s (%d)", token, int(token))
	}
	if id < 0 {
		return 0, errors.Errorf("special token %s not defined by this model", token)
	}
	return id, nil
}

// sliceMap executes the given function sequentially for every element on in, and returns a mapped slice.
func sliceMap[In, Out any](in []In, fn func(e In) Out) (out []Out) {
	out = make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return
}
