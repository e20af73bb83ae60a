package squad

import (
	"strings"
	"testing"

	"github.com/gomlx/go-squad/tokenizers/encode"
	"github.com/gomlx/go-squad/tokenizers/wordpiece"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExampleDerivesCharSpan(t *testing.T) {
	ex := NewExample("q1", "what color is the fox?", "The quick brown fox jumps.",
		"brown fox", 10, "animals", nil, false, false)
	assert.Equal(t, 10, ex.StartPosition)
	assert.Equal(t, 18, ex.EndPosition)
	assert.True(t, ex.answerSpanMatches())
	assert.NotNil(t, ex.Answers)

	impossible := NewExample("q2", "what?", "context", "", 0, "t", nil, true, false)
	assert.Equal(t, 0, impossible.StartPosition)
	assert.Equal(t, 0, impossible.EndPosition)
}

func TestConvertExampleSingleWindow(t *testing.T) {
	enc := newTestEncoder(t)
	ex := NewExample("q1", "what color is the fox?", "The quick brown fox jumps.",
		"brown fox", 10, "animals", nil, false, false)

	features, err := ConvertExampleToFeatures(enc, ex, ConvertOptions{
		MaxSeqLength:   64,
		DocStride:      16,
		MaxQueryLength: 24,
		IsTraining:     true,
	})
	require.NoError(t, err)
	require.Len(t, features, 1)
	f := features[0]

	assert.False(t, f.IsImpossible)
	assert.Equal(t, "q1", f.QasID)
	assert.Equal(t, 6, f.ParagraphLen)
	assert.Len(t, f.InputIDs, 64)
	assert.Len(t, f.PMask, 64)

	// The relocated span decodes back to the answer.
	assert.Equal(t, "brown fox", strings.Join(f.Tokens[f.StartPosition:f.EndPosition+1], " "))

	// And maps back to the right original token positions.
	assert.Equal(t, 2, f.TokenToOrigMap[f.StartPosition])
	assert.Equal(t, 3, f.TokenToOrigMap[f.EndPosition])
}

func TestConvertExamplePMask(t *testing.T) {
	enc := newTestEncoder(t)
	ex := NewExample("q1", "what color is the fox?", "The quick brown fox jumps.",
		"brown fox", 10, "animals", nil, false, false)

	features, err := ConvertExampleToFeatures(enc, ex, ConvertOptions{
		MaxSeqLength:   32,
		DocStride:      8,
		MaxQueryLength: 16,
		IsTraining:     false,
	})
	require.NoError(t, err)
	f := features[0]

	queryLen := len(enc.Tokenizer().Encode(ex.QuestionText))
	docOffset := queryLen + 2

	// CLS is always eligible, the query never is.
	assert.Equal(t, 0, f.PMask[f.ClsIndex])
	for i := 1; i <= queryLen; i++ {
		assert.Equal(t, 1, f.PMask[i], "query position %d", i)
	}
	// Context tokens are eligible, the trailing separator and pads are not.
	for i := docOffset; i < docOffset+f.ParagraphLen; i++ {
		assert.Equal(t, 0, f.PMask[i], "context position %d", i)
	}
	for i := docOffset + f.ParagraphLen; i < len(f.PMask); i++ {
		assert.Equal(t, 1, f.PMask[i], "position %d", i)
	}
}

func TestConvertExampleImpossibleWindows(t *testing.T) {
	enc := newTestEncoder(t)
	// 12 context tokens, answer at positions 9..10.
	context := "a b c d e f g h the brown fox ."
	ex := NewExample("q1", "what", context, "brown fox", 20, "t", nil, false, false)
	require.True(t, ex.answerSpanMatches())

	features, err := ConvertExampleToFeatures(enc, ex, ConvertOptions{
		MaxSeqLength:   12, // capacity 8 next to the 1-token query
		DocStride:      4,
		MaxQueryLength: 8,
		IsTraining:     true,
	})
	require.NoError(t, err)
	// Window [4,12) reaches the end of the context, so only two windows exist.
	require.Len(t, features, 2)

	// Window [0,8) misses the gold span: kept, but impossible.
	f0 := features[0]
	assert.True(t, f0.IsImpossible)
	assert.Equal(t, f0.ClsIndex, f0.StartPosition)
	assert.Equal(t, f0.ClsIndex, f0.EndPosition)

	// Window [4,12) covers it.
	f1 := features[1]
	require.False(t, f1.IsImpossible)
	assert.Equal(t, "brown fox", strings.Join(f1.Tokens[f1.StartPosition:f1.EndPosition+1], " "))
	assert.Equal(t, 9, f1.TokenToOrigMap[f1.StartPosition])
	assert.Equal(t, 10, f1.TokenToOrigMap[f1.EndPosition])

	// Max-context ownership for an overlapped position: original token 5 has
	// more context in the first window than in the second.
	prefix := 1 + 2 // query + [CLS]/[SEP]
	assert.True(t, features[0].TokenIsMaxContext[prefix+5])
	assert.False(t, features[1].TokenIsMaxContext[prefix+1]) // same original token 5
}

func TestConvertExampleLeftPadding(t *testing.T) {
	tok, err := wordpiece.New(testVocab, wordpiece.Options{Lowercase: true})
	require.NoError(t, err)
	enc, err := encode.New(tok)
	require.NoError(t, err)
	enc = enc.WithPaddingSide(encode.PadLeft)

	ex := NewExample("q1", "what color is the fox?", "The quick brown fox jumps.",
		"brown fox", 10, "animals", nil, false, false)
	features, err := ConvertExampleToFeatures(enc, ex, ConvertOptions{
		MaxSeqLength:   32,
		DocStride:      8,
		MaxQueryLength: 16,
		IsTraining:     true,
	})
	require.NoError(t, err)
	f := features[0]

	queryLen := len(tok.Encode(ex.QuestionText))
	numPad := 32 - (queryLen + 6 + 3)
	docOffset := numPad + queryLen + 2

	// CLS sits after the pads.
	assert.Equal(t, numPad, f.ClsIndex)
	assert.Equal(t, 0, f.PMask[f.ClsIndex])

	// The span and orig map shift by the pad count.
	assert.Equal(t, "brown fox", strings.Join(f.Tokens[f.StartPosition-numPad:f.EndPosition-numPad+1], " "))
	assert.Equal(t, 2, f.TokenToOrigMap[docOffset+2])
	assert.Equal(t, docOffset+2, f.StartPosition)
	assert.Equal(t, docOffset+3, f.EndPosition)

	// Max-context keys use bare window-local indexes on the left-padded path.
	assert.True(t, f.TokenIsMaxContext[0])

	// Pads stay masked.
	for i := range numPad {
		assert.Equal(t, 1, f.PMask[i], "pad position %d", i)
	}
}

func TestConvertExamplesAssignsIDs(t *testing.T) {
	enc := newTestEncoder(t)
	examples := []*Example{
		NewExample("q1", "what", "a b c d e f g h the brown fox .", "brown fox", 20, "t", nil, false, false),
		// Empty context: zero windows, zero features, no example-index slot.
		NewExample("q2", "what", "", "", 0, "t", nil, true, false),
		NewExample("q3", "what color is the fox?", "The quick brown fox jumps.", "brown fox", 10, "t", nil, false, false),
	}

	features, err := ConvertExamplesToFeatures(enc, examples, ConvertOptions{
		MaxSeqLength:   12,
		DocStride:      4,
		MaxQueryLength: 4,
		IsTraining:     true,
		Workers:        3,
	})
	require.NoError(t, err)
	require.Len(t, features, 4) // 2 windows for q1, 2 for q3

	var qasIDs []string
	for i, f := range features {
		assert.Equal(t, featureUniqueIDBase+i, f.UniqueID)
		qasIDs = append(qasIDs, f.QasID)
	}
	assert.Equal(t, []string{"q1", "q1", "q3", "q3"}, qasIDs)
	assert.Equal(t, 0, features[0].ExampleIndex)
	assert.Equal(t, 0, features[1].ExampleIndex)
	assert.Equal(t, 1, features[2].ExampleIndex)
	assert.Equal(t, 1, features[3].ExampleIndex)
}

func TestConvertOptionsValidation(t *testing.T) {
	enc := newTestEncoder(t)
	examples := []*Example{
		NewExample("q1", "what", "the fox", "fox", 4, "t", nil, false, false),
	}

	_, err := ConvertExamplesToFeatures(enc, examples, ConvertOptions{
		MaxSeqLength: 16, DocStride: 4, MaxQueryLength: 16,
	})
	assert.ErrorContains(t, err, "no room for context")

	_, err = ConvertExamplesToFeatures(enc, examples, ConvertOptions{
		MaxSeqLength: 16, DocStride: 12, MaxQueryLength: 4,
	})
	assert.ErrorContains(t, err, "capacity")

	_, err = ConvertExamplesToFeatures(enc, examples, ConvertOptions{
		MaxSeqLength: 16, DocStride: 0, MaxQueryLength: 4,
	})
	assert.ErrorContains(t, err, "DocStride")
}
