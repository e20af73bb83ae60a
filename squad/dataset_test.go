package squad

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func convertedTestFeatures(t *testing.T, isTraining bool) []*Feature {
	enc := newTestEncoder(t)
	examples := []*Example{
		NewExample("q1", "what", "a b c d e f g h the brown fox .", "brown fox", 20, "t", nil, false, false),
		NewExample("q2", "what color is the fox?", "The quick brown fox jumps.", "brown fox", 10, "t", nil, false, false),
	}
	features, err := ConvertExamplesToFeatures(enc, examples, ConvertOptions{
		MaxSeqLength:   12,
		DocStride:      4,
		MaxQueryLength: 4,
		IsTraining:     isTraining,
	})
	require.NoError(t, err)
	require.Len(t, features, 4) // 2 windows per example
	return features
}

func TestNewDatasetTraining(t *testing.T) {
	features := convertedTestFeatures(t, true)
	ds, err := NewDataset(features, true)
	require.NoError(t, err)

	assert.Equal(t, 4, ds.NumFeatures())
	assert.Equal(t, []int{4, 12}, ds.InputIDs.Shape().Dimensions)
	assert.Equal(t, []int{4, 12}, ds.AttentionMask.Shape().Dimensions)
	assert.Equal(t, []int{4, 12}, ds.TokenTypeIDs.Shape().Dimensions)
	assert.Equal(t, []int{4, 12}, ds.PMask.Shape().Dimensions)
	assert.Equal(t, []int{4}, ds.ClsIndex.Shape().Dimensions)
	assert.Equal(t, []int{4}, ds.StartPositions.Shape().Dimensions)
	assert.Equal(t, []int{4}, ds.EndPositions.Shape().Dimensions)
	assert.Equal(t, []int{4}, ds.IsImpossible.Shape().Dimensions)
	assert.Nil(t, ds.FeatureIndex)
}

func TestNewDatasetEval(t *testing.T) {
	features := convertedTestFeatures(t, false)
	ds, err := NewDataset(features, false)
	require.NoError(t, err)

	assert.Equal(t, 4, ds.NumFeatures())
	assert.Equal(t, []int{4}, ds.FeatureIndex.Shape().Dimensions)
	assert.Nil(t, ds.StartPositions)
	assert.Nil(t, ds.EndPositions)
	assert.Nil(t, ds.IsImpossible)
}

func TestNewDatasetErrors(t *testing.T) {
	_, err := NewDataset(nil, true)
	assert.ErrorContains(t, err, "zero features")

	features := convertedTestFeatures(t, true)
	features[1].PMask = features[1].PMask[:5]
	_, err = NewDataset(features, true)
	assert.ErrorContains(t, err, "inconsistent sequence length")
}
