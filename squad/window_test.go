package squad

import (
	"testing"

	"github.com/gomlx/go-squad/tokenizers/encode"
	"github.com/gomlx/go-squad/tokenizers/wordpiece"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testVocab covers the fixtures used across the package tests. Ids are the
// slice indexes, [PAD]=0 and [CLS]=2 as in BERT vocabularies.
var testVocab = []string{
	"[PAD]", "[UNK]", "[CLS]", "[SEP]", "[MASK]",
	"the", "quick", "brown", "fox", "jumps", "over", "lazy", "dog",
	".", "?", ",", "what", "color", "is", "where",
	"a", "b", "c", "d", "e", "f", "g", "h",
	"play", "##ing",
}

func newTestEncoder(t *testing.T) *encode.Encoder {
	tok, err := wordpiece.New(testVocab, wordpiece.Options{Lowercase: true})
	require.NoError(t, err)
	enc, err := encode.New(tok)
	require.NoError(t, err)
	return enc
}

// tokenIDs converts token strings through the test vocabulary.
func tokenIDs(t *testing.T, enc *encode.Encoder, tokens []string) []int {
	ids := make([]int, len(tokens))
	for i, token := range tokens {
		id, ok := enc.Tokenizer().TokenToID(token)
		require.True(t, ok, "token %q not in test vocabulary", token)
		ids[i] = id
	}
	return ids
}

func TestSliceWindowsMatchesStrideIndexing(t *testing.T) {
	enc := newTestEncoder(t)
	queryIDs := enc.Tokenizer().Encode("what")
	docTokens := []string{"a", "b", "c", "d", "e", "f", "g", "h", "the", "brown", "fox", "."}

	maxSeqLength := 12 // capacity = 12 - 1 - 3 = 8
	docStride := 4
	windows, err := sliceWindows(enc, queryIDs, docTokens, maxSeqLength, docStride)
	require.NoError(t, err)
	// The second window [4,12) already reaches the end of the context, so the
	// chain stops there: no third window starting at 8 is produced.
	require.Len(t, windows, 2)

	prefix := len(queryIDs) + 2 // [CLS] query [SEP]
	for i, w := range windows {
		assert.Equal(t, i*docStride, w.start)
		// Overflow chaining must produce exactly the spans stride-based
		// indexing of the full token sequence would.
		wantIDs := tokenIDs(t, enc, docTokens[w.start:w.start+w.length])
		assert.Equal(t, wantIDs, w.enc.InputIDs[prefix:prefix+w.length], "window %d", i)
	}

	last := windows[len(windows)-1]
	assert.Equal(t, len(docTokens), last.start+last.length)
	assert.Empty(t, last.enc.OverflowingTokens)
}

func TestSliceWindowsChainsThirdWindow(t *testing.T) {
	enc := newTestEncoder(t)
	queryIDs := enc.Tokenizer().Encode("what")
	// One token more than two full windows cover, so the overflow of the
	// second window is non-empty and a short third window is produced.
	docTokens := make([]string, 13)
	for i := range docTokens {
		docTokens[i] = testVocab[20+i%8]
	}

	windows, err := sliceWindows(enc, queryIDs, docTokens, 12, 4)
	require.NoError(t, err)
	require.Len(t, windows, 3)
	assert.Equal(t, 8, windows[2].start)
	assert.Equal(t, 5, windows[2].length)
	assert.Empty(t, windows[2].enc.OverflowingTokens)
}

func TestSliceWindowsCoverage(t *testing.T) {
	enc := newTestEncoder(t)
	queryIDs := enc.Tokenizer().Encode("what is")

	for _, tc := range []struct {
		numTokens, maxSeqLength, docStride int
	}{
		{1, 16, 2},
		{7, 16, 2},
		{8, 13, 4},
		{20, 13, 8},
		{25, 16, 3},
	} {
		docTokens := make([]string, tc.numTokens)
		for i := range docTokens {
			docTokens[i] = testVocab[20+i%8] // a..h
		}
		windows, err := sliceWindows(enc, queryIDs, docTokens, tc.maxSeqLength, tc.docStride)
		require.NoError(t, err, "%+v", tc)

		covered := make([]bool, tc.numTokens)
		for _, w := range windows {
			for p := w.start; p < w.start+w.length; p++ {
				covered[p] = true
			}
		}
		for p, ok := range covered {
			assert.True(t, ok, "token %d not covered in %+v", p, tc)
		}
	}
}

func TestSliceWindowsSingleWindow(t *testing.T) {
	enc := newTestEncoder(t)
	queryIDs := enc.Tokenizer().Encode("what")
	docTokens := []string{"the", "quick", "brown", "fox"}

	windows, err := sliceWindows(enc, queryIDs, docTokens, 32, 4)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, 0, windows[0].start)
	assert.Equal(t, len(docTokens), windows[0].length)
	assert.Empty(t, windows[0].enc.OverflowingTokens)
}

func TestSliceWindowsEmptyContext(t *testing.T) {
	enc := newTestEncoder(t)
	windows, err := sliceWindows(enc, enc.Tokenizer().Encode("what"), nil, 16, 4)
	require.NoError(t, err)
	assert.Empty(t, windows)
}

func TestSliceWindowsStrideTooLarge(t *testing.T) {
	enc := newTestEncoder(t)
	queryIDs := enc.Tokenizer().Encode("what")
	_, err := sliceWindows(enc, queryIDs, []string{"a", "b"}, 8, 6) // capacity = 4
	assert.ErrorContains(t, err, "capacity")
}

func TestIsMaxContextPartition(t *testing.T) {
	enc := newTestEncoder(t)
	queryIDs := enc.Tokenizer().Encode("what")
	docTokens := make([]string, 22)
	for i := range docTokens {
		docTokens[i] = testVocab[20+i%8]
	}

	windows, err := sliceWindows(enc, queryIDs, docTokens, 12, 4)
	require.NoError(t, err)
	require.Greater(t, len(windows), 1)

	// Every covered position is owned by exactly one window.
	for p := range docTokens {
		owners := 0
		for i := range windows {
			if isMaxContext(windows, i, p) {
				owners++
			}
		}
		assert.Equal(t, 1, owners, "position %d", p)
	}
}

func TestIsMaxContextScores(t *testing.T) {
	// Two hand-built windows: [0,8) and [4,12). Position 4 has 4 tokens of
	// left context in the first window but none in the second.
	windows := []*window{
		{start: 0, length: 8},
		{start: 4, length: 8},
	}
	assert.True(t, isMaxContext(windows, 0, 4))
	assert.False(t, isMaxContext(windows, 1, 4))

	// Position 7 sits at the edge of the first window and mid-second.
	assert.False(t, isMaxContext(windows, 0, 7))
	assert.True(t, isMaxContext(windows, 1, 7))

	// Uncovered position has no owner.
	assert.False(t, isMaxContext(windows, 0, 20))
	assert.False(t, isMaxContext(windows, 1, 20))
}
