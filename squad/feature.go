package squad

// Feature is a single model-input record built from one window of an example.
//
// ExampleIndex and UniqueID stay 0 until ConvertExamplesToFeatures assigns
// them in a sequential pass after all examples have been converted; they are
// global and monotonically increasing across a run.
type Feature struct {
	InputIDs      []int
	AttentionMask []int
	TokenTypeIDs  []int

	// ClsIndex is the position of the classification token, used to encode
	// "no answer".
	ClsIndex int

	// PMask marks positions that cannot be part of an answer with 1 and
	// eligible positions with 0. The classification position is always 0.
	PMask []int

	ExampleIndex int
	UniqueID     int

	// ParagraphLen is the number of context tokens in this window.
	ParagraphLen int

	// TokenIsMaxContext tells, per local token index, whether this window
	// gives that token its maximum surrounding context. Predictions for
	// tokens owned by another window should be discarded.
	TokenIsMaxContext map[int]bool

	// Tokens is the non-padded token string sequence of this window.
	Tokens []string

	// TokenToOrigMap maps local token indexes back to positions in the
	// original context token sequence.
	TokenToOrigMap map[int]int

	// StartPosition/EndPosition are the relocated answer span (training
	// only); both point at ClsIndex when IsImpossible is true.
	StartPosition int
	EndPosition   int
	IsImpossible  bool

	QasID string
}

// Result wraps a model's raw output for one feature, keyed by the feature's
// UniqueID. It is consumed by downstream prediction decoding, not produced
// here.
type Result struct {
	UniqueID    int
	StartLogits []float32
	EndLogits   []float32

	// Set only by models that emit top-k indexes directly.
	StartTopIndex []int
	EndTopIndex   []int
	ClsLogits     []float32
}
