// Package api defines the Tokenizer API consumed by the feature-conversion
// pipeline. It's kept in its own package to break the cyclic dependency, and
// allow users to import `tokenizers` and get the default implementations.
package api

// Tokenizer converts text to tokens (strings or integer ids) and back.
//
// It also maps special tokens: tokens with a common semantic (like padding)
// but that may map to different ids (int) for different tokenizers.
type Tokenizer interface {
	// Tokenize splits text into token strings, without special tokens.
	Tokenize(text string) []string

	Encode(text string) []int
	Decode(ids []int) string

	// TokenToID converts a single token string to its id.
	TokenToID(token string) (int, bool)
	// IDToToken converts a single token id back to its string form.
	IDToToken(id int) (string, bool)

	// SpecialTokenID returns ID for given special token if registered, or an error if not.
	SpecialTokenID(token SpecialToken) (int, error)
}

// SpecialToken is an enum of commonly used special tokens.
type SpecialToken int

const (
	TokBeginningOfSentence SpecialToken = iota
	TokEndOfSentence
	TokUnknown
	TokPad
	TokMask
	TokClassification
	TokSeparator
	TokSpecialTokensCount
)

var specialTokenNames = [TokSpecialTokensCount]string{
	"beginning_of_sentence",
	"end_of_sentence",
	"unknown",
	"pad",
	"mask",
	"classification",
	"separator",
}

// String implements fmt.Stringer.
func (s SpecialToken) String() string {
	if s < 0 || s >= TokSpecialTokensCount {
		return "invalid_special_token"
	}
	return specialTokenNames[s]
}
