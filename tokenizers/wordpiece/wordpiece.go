// Package wordpiece implements a BERT-style WordPiece tokenizer loaded from a
// plain vocabulary file (one token per line, the id being the line number).
// It covers the subset of HuggingFace's "BertTokenizer" behavior needed for
// span-extraction feature building: BERT text cleanup, whitespace/punctuation
// pre-tokenization and greedy longest-prefix sub-word matching.
package wordpiece

import (
	"bufio"
	"os"
	"strings"
	"unicode"

	"github.com/gomlx/go-squad/tokenizers/api"
	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"
)

// Options configures text normalization and sub-word matching.
type Options struct {
	// Lowercase applies ASCII/Unicode lower-casing before pre-tokenization.
	Lowercase bool
	// StripAccents removes combining marks after NFD decomposition.
	StripAccents bool
	// ContinuingSubwordPrefix marks non-initial sub-words. Defaults to "##".
	ContinuingSubwordPrefix string
	// MaxInputCharsPerWord maps longer words to the unknown token. Defaults to 100.
	MaxInputCharsPerWord int
}

// Tokenizer implements api.Tokenizer for WordPiece vocabularies.
type Tokenizer struct {
	vocab     map[string]int
	idToToken map[int]string
	opts      Options

	unkID, padID, clsID, sepID, maskID int
}

// Compile time assert that Tokenizer implements api.Tokenizer interface.
var _ api.Tokenizer = &Tokenizer{}

// NewFromFile creates a WordPiece tokenizer from a vocab.txt file.
func NewFromFile(filePath string, opts Options) (*Tokenizer, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open vocabulary file %q", filePath)
	}
	defer f.Close()

	var vocab []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		vocab = append(vocab, strings.TrimRight(scanner.Text(), "\r\n"))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read vocabulary file %q", filePath)
	}
	return New(vocab, opts)
}

// New creates a WordPiece tokenizer from an in-memory vocabulary, where the
// id of each token is its index in the slice. The vocabulary must define
// [UNK]; the other special tokens are optional.
func New(vocab []string, opts Options) (*Tokenizer, error) {
	if len(vocab) == 0 {
		return nil, errors.Errorf("empty vocabulary")
	}
	if opts.ContinuingSubwordPrefix == "" {
		opts.ContinuingSubwordPrefix = "##"
	}
	if opts.MaxInputCharsPerWord == 0 {
		opts.MaxInputCharsPerWord = 100
	}

	t := &Tokenizer{
		vocab:     make(map[string]int, len(vocab)),
		idToToken: make(map[int]string, len(vocab)),
		opts:      opts,
		unkID:     -1,
		padID:     -1,
		clsID:     -1,
		sepID:     -1,
		maskID:    -1,
	}
	for id, token := range vocab {
		t.vocab[token] = id
		t.idToToken[id] = token
	}

	// Resolve special tokens by their conventional BERT names.
	if id, ok := t.vocab["[UNK]"]; ok {
		t.unkID = id
	}
	if id, ok := t.vocab["[PAD]"]; ok {
		t.padID = id
	}
	if id, ok := t.vocab["[CLS]"]; ok {
		t.clsID = id
	}
	if id, ok := t.vocab["[SEP]"]; ok {
		t.sepID = id
	}
	if id, ok := t.vocab["[MASK]"]; ok {
		t.maskID = id
	}
	// Greedy sub-word matching needs somewhere to send unmatchable words;
	// without [UNK] they would vanish from the token sequence.
	if t.unkID < 0 {
		return nil, errors.Errorf("vocabulary defines no [UNK] token")
	}
	return t, nil
}

// Tokenize splits text into WordPiece token strings.
func (t *Tokenizer) Tokenize(text string) []string {
	var tokens []string
	for _, word := range t.preTokenize(t.normalize(text)) {
		tokens = append(tokens, t.wordPiece(word)...)
	}
	return tokens
}

// Encode converts text to a sequence of token ids. Tokenize only emits
// vocabulary members, so every token maps; the [UNK] fallback is kept for
// symmetry with other id lookups.
func (t *Tokenizer) Encode(text string) []int {
	words := t.Tokenize(text)
	ids := make([]int, 0, len(words))
	for _, token := range words {
		id, ok := t.vocab[token]
		if !ok {
			id = t.unkID
		}
		ids = append(ids, id)
	}
	return ids
}

// Decode converts a sequence of token ids back to text, merging sub-words.
func (t *Tokenizer) Decode(ids []int) string {
	prefix := t.opts.ContinuingSubwordPrefix
	var result strings.Builder
	first := true
	for _, id := range ids {
		token, ok := t.idToToken[id]
		if !ok {
			continue
		}
		if strings.HasPrefix(token, prefix) {
			result.WriteString(strings.TrimPrefix(token, prefix))
		} else {
			if !first {
				result.WriteString(" ")
			}
			result.WriteString(token)
		}
		first = false
	}
	return result.String()
}

// TokenToID converts a token string to its id.
func (t *Tokenizer) TokenToID(token string) (int, bool) {
	id, ok := t.vocab[token]
	return id, ok
}

// IDToToken converts a token id to its string.
func (t *Tokenizer) IDToToken(id int) (string, bool) {
	token, ok := t.idToToken[id]
	return token, ok
}

// SpecialTokenID returns the id for a given special token.
func (t *Tokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	id := -1
	switch token {
	case api.TokUnknown:
		id = t.unkID
	case api.TokPad:
		id = t.padID
	case api.TokClassification, api.TokBeginningOfSentence:
		id = t.clsID
	case api.TokSeparator, api.TokEndOfSentence:
		id = t.sepID
	case api.TokMask:
		id = t.maskID
	}
	if id < 0 {
		return 0, errors.Errorf("special token %s not found in vocabulary", token)
	}
	return id, nil
}

// VocabSize returns the size of the vocabulary.
func (t *Tokenizer) VocabSize() int {
	return len(t.vocab)
}

// normalize applies BERT text cleanup, optional lower-casing and accent stripping.
func (t *Tokenizer) normalize(text string) string {
	text = cleanText(text)
	if t.opts.Lowercase {
		text = strings.ToLower(text)
	}
	if t.opts.StripAccents {
		text = removeAccents(norm.NFD.String(text))
	}
	return text
}

// preTokenize splits normalized text on whitespace and punctuation.
func (t *Tokenizer) preTokenize(text string) []string {
	var tokens []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	for _, r := range text {
		switch {
		case isWhitespace(r):
			flush()
		case isPunctuation(r):
			flush()
			tokens = append(tokens, string(r))
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// wordPiece tokenizes a single word using greedy longest-prefix matching.
func (t *Tokenizer) wordPiece(word string) []string {
	if word == "" {
		return nil
	}
	unknown := func() []string {
		return []string{t.idToToken[t.unkID]}
	}
	if len(word) > t.opts.MaxInputCharsPerWord {
		return unknown()
	}

	prefix := t.opts.ContinuingSubwordPrefix
	var tokens []string
	start := 0
	for start < len(word) {
		end := len(word)
		found := false
		for start < end {
			substr := word[start:end]
			if start > 0 {
				substr = prefix + substr
			}
			if _, ok := t.vocab[substr]; ok {
				tokens = append(tokens, substr)
				found = true
				break
			}
			end--
		}
		if !found {
			return unknown()
		}
		start = end
	}
	return tokens
}

// Rune class helpers, matching BERT's cleanup rules.

func cleanText(text string) string {
	var result strings.Builder
	for _, r := range text {
		if r == 0 || r == 0xFFFD || isControl(r) {
			continue
		}
		if isWhitespace(r) {
			result.WriteRune(' ')
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

func isWhitespace(r rune) bool {
	if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

func isControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return unicode.IsControl(r)
}

func isPunctuation(r rune) bool {
	// ASCII punctuation first, then the Unicode punctuation category.
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) ||
		(r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

func removeAccents(text string) string {
	var result strings.Builder
	for _, r := range text {
		if !unicode.Is(unicode.Mn, r) { // Mn = Mark, Nonspacing
			result.WriteRune(r)
		}
	}
	return result.String()
}
