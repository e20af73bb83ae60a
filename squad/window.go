package squad

import (
	"github.com/gomlx/go-squad/tokenizers/encode"
	"github.com/pkg/errors"
)

// window is one sliding slice of the tokenized context, sized to fit the
// model's input budget next to the (truncated) query.
type window struct {
	enc *encode.Encoding

	// start is the offset of the window's first context token in the original
	// context token sequence; it grows by docStride between windows.
	start int
	// length is the number of context tokens in this window.
	length int
}

// sliceWindows splits docTokens into overlapping windows by repeated
// pair-encoding with overflow chaining: the overflow suffix of one window is
// the input to the next, which yields exactly the spans that stride-based
// indexing of the full sequence would. A window with no overflow is the last
// one.
func sliceWindows(enc *encode.Encoder, queryIDs []int, docTokens []string,
	maxSeqLength, docStride int) ([]*window, error) {
	pairAdded := enc.NumAddedTokens(true)
	capacity := maxSeqLength - len(queryIDs) - pairAdded
	if capacity <= 0 {
		return nil, errors.Errorf(
			"no token budget left for the context: max sequence length %d, query length %d, special tokens %d",
			maxSeqLength, len(queryIDs), pairAdded)
	}
	if docStride > capacity {
		return nil, errors.Errorf(
			"doc stride %d exceeds the per-window context capacity %d", docStride, capacity)
	}

	var windows []*window
	spanTokens := docTokens
	for len(windows)*docStride < len(docTokens) {
		e, err := enc.EncodePair(queryIDs, spanTokens, encode.Options{
			MaxLength:      maxSeqLength,
			Stride:         capacity - docStride,
			PadToMaxLength: true,
			ReturnOverflow: true,
		})
		if err != nil {
			return nil, err
		}
		windows = append(windows, &window{
			enc:    e,
			start:  len(windows) * docStride,
			length: min(len(docTokens)-len(windows)*docStride, capacity),
		})
		if len(e.OverflowingTokens) == 0 {
			break
		}
		spanTokens = e.OverflowingTokens
	}
	return windows, nil
}

// isMaxContext reports whether windows[cur] gives the original-context token
// at position its maximum context. A covering window scores
// min(left, right) + 0.01*length; the strictly highest score owns the
// position, ties keeping the window scored first.
func isMaxContext(windows []*window, cur, position int) bool {
	bestScore := 0.0
	bestIndex := -1
	for i, w := range windows {
		end := w.start + w.length - 1
		if position < w.start || position > end {
			continue
		}
		left := position - w.start
		right := end - position
		score := float64(min(left, right)) + 0.01*float64(w.length)
		if bestIndex == -1 || score > bestScore {
			bestScore = score
			bestIndex = i
		}
	}
	return cur == bestIndex
}
