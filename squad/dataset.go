package squad

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// Dataset packs an ordered feature collection into fixed-shape tensors for
// direct consumption by a training or inference loop.
//
// Ids and indexes are int64, masks that feed loss computations are float32,
// matching what span-extraction models expect.
type Dataset struct {
	InputIDs      *tensors.Tensor // int64, [numFeatures, seqLen]
	AttentionMask *tensors.Tensor // int64, [numFeatures, seqLen]
	TokenTypeIDs  *tensors.Tensor // int64, [numFeatures, seqLen]
	ClsIndex      *tensors.Tensor // int64, [numFeatures]
	PMask         *tensors.Tensor // float32, [numFeatures, seqLen]

	// FeatureIndex is an arange over features, evaluation only.
	FeatureIndex *tensors.Tensor // int64, [numFeatures]

	// Training only.
	StartPositions *tensors.Tensor // int64, [numFeatures]
	EndPositions   *tensors.Tensor // int64, [numFeatures]
	IsImpossible   *tensors.Tensor // float32, [numFeatures]
}

// NumFeatures returns the leading dimension of the dataset.
func (ds *Dataset) NumFeatures() int {
	return ds.InputIDs.Shape().Dimensions[0]
}

// NewDataset builds the tensor views over features. It fails on an empty
// collection or when features disagree on sequence length: tensor packing is
// all-or-nothing, per-feature problems must have been handled during
// conversion.
func NewDataset(features []*Feature, isTraining bool) (*Dataset, error) {
	if len(features) == 0 {
		return nil, errors.Errorf("cannot build a dataset from zero features")
	}
	seqLen := len(features[0].InputIDs)
	for _, f := range features {
		if len(f.InputIDs) != seqLen || len(f.AttentionMask) != seqLen ||
			len(f.TokenTypeIDs) != seqLen || len(f.PMask) != seqLen {
			return nil, errors.Errorf(
				"feature %d has inconsistent sequence length (want %d)", f.UniqueID, seqLen)
		}
	}

	n := len(features)
	inputIDs := make([]int64, 0, n*seqLen)
	attentionMask := make([]int64, 0, n*seqLen)
	tokenTypeIDs := make([]int64, 0, n*seqLen)
	pMask := make([]float32, 0, n*seqLen)
	clsIndex := make([]int64, 0, n)
	for _, f := range features {
		inputIDs = append(inputIDs, toInt64(f.InputIDs)...)
		attentionMask = append(attentionMask, toInt64(f.AttentionMask)...)
		tokenTypeIDs = append(tokenTypeIDs, toInt64(f.TokenTypeIDs)...)
		pMask = append(pMask, toFloat32(f.PMask)...)
		clsIndex = append(clsIndex, int64(f.ClsIndex))
	}

	ds := &Dataset{
		InputIDs:      tensors.FromFlatDataAndDimensions(inputIDs, n, seqLen),
		AttentionMask: tensors.FromFlatDataAndDimensions(attentionMask, n, seqLen),
		TokenTypeIDs:  tensors.FromFlatDataAndDimensions(tokenTypeIDs, n, seqLen),
		ClsIndex:      tensors.FromFlatDataAndDimensions(clsIndex, n),
		PMask:         tensors.FromFlatDataAndDimensions(pMask, n, seqLen),
	}

	if isTraining {
		startPositions := make([]int64, n)
		endPositions := make([]int64, n)
		isImpossible := make([]float32, n)
		for i, f := range features {
			startPositions[i] = int64(f.StartPosition)
			endPositions[i] = int64(f.EndPosition)
			if f.IsImpossible {
				isImpossible[i] = 1
			}
		}
		ds.StartPositions = tensors.FromFlatDataAndDimensions(startPositions, n)
		ds.EndPositions = tensors.FromFlatDataAndDimensions(endPositions, n)
		ds.IsImpossible = tensors.FromFlatDataAndDimensions(isImpossible, n)
	} else {
		featureIndex := make([]int64, n)
		for i := range featureIndex {
			featureIndex[i] = int64(i)
		}
		ds.FeatureIndex = tensors.FromFlatDataAndDimensions(featureIndex, n)
	}
	return ds, nil
}

func toInt64(values []int) []int64 {
	out := make([]int64, len(values))
	for i, v := range values {
		out[i] = int64(v)
	}
	return out
}

func toFloat32(values []int) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out
}
