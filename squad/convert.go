package squad

import (
	"runtime"
	"sync"

	"github.com/gomlx/go-squad/tokenizers/encode"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// featureUniqueIDBase is the first UniqueID assigned in a run.
	featureUniqueIDBase = 1000000000

	// convertChunkSize is how many examples a worker takes at a time.
	convertChunkSize = 32
)

// ConvertOptions configures example-to-feature conversion.
type ConvertOptions struct {
	// MaxSeqLength is the total model input length, special tokens included.
	MaxSeqLength int
	// DocStride is the token-count step between the start offsets of
	// consecutive context windows.
	DocStride int
	// MaxQueryLength truncates the encoded question.
	MaxQueryLength int
	// IsTraining enables answer-span alignment and relocation.
	IsTraining bool
	// Workers is the number of parallel conversion goroutines.
	// Defaults to runtime.NumCPU().
	Workers int
}

func (o *ConvertOptions) validate(enc *encode.Encoder) error {
	if o.MaxSeqLength <= 0 {
		return errors.Errorf("MaxSeqLength must be positive, got %d", o.MaxSeqLength)
	}
	if o.DocStride <= 0 {
		return errors.Errorf("DocStride must be positive, got %d", o.DocStride)
	}
	if o.MaxQueryLength <= 0 {
		return errors.Errorf("MaxQueryLength must be positive, got %d", o.MaxQueryLength)
	}
	// The worst-case window capacity is reached when a query uses its full
	// budget; validating against it means no example can fail downstream.
	capacity := o.MaxSeqLength - o.MaxQueryLength - enc.NumAddedTokens(true)
	if capacity <= 0 {
		return errors.Errorf(
			"MaxSeqLength %d leaves no room for context next to a query of up to %d tokens",
			o.MaxSeqLength, o.MaxQueryLength)
	}
	if o.DocStride > capacity {
		return errors.Errorf(
			"DocStride %d exceeds the worst-case window capacity %d (MaxSeqLength %d, MaxQueryLength %d)",
			o.DocStride, capacity, o.MaxSeqLength, o.MaxQueryLength)
	}
	return nil
}

// ConvertExampleToFeatures converts a single example into one Feature per
// context window. ExampleIndex and UniqueID are left at 0; they are assigned
// by ConvertExamplesToFeatures once all per-example feature counts are known.
func ConvertExampleToFeatures(enc *encode.Encoder, ex *Example, opts ConvertOptions) ([]*Feature, error) {
	tok := enc.Tokenizer()
	docTokens := tok.Tokenize(ex.ContextText)

	// The gold span is aligned once per example against the full context
	// token sequence; the character positions serve as the fallback pair.
	var tokStart, tokEnd int
	if opts.IsTraining && !ex.IsImpossible {
		answerTokens := tok.Tokenize(ex.AnswerText)
		tokStart, tokEnd = AlignAnswerSpan(docTokens, answerTokens, ex.StartPosition, ex.EndPosition)
	}

	queryIDs := tok.Encode(ex.QuestionText)
	if len(queryIDs) > opts.MaxQueryLength {
		queryIDs = queryIDs[:opts.MaxQueryLength]
	}

	windows, err := sliceWindows(enc, queryIDs, docTokens, opts.MaxSeqLength, opts.DocStride)
	if err != nil {
		return nil, err
	}

	features := make([]*Feature, 0, len(windows))
	for i := range windows {
		features = append(features,
			assembleFeature(enc, ex, windows, i, queryIDs, tokStart, tokEnd, opts.IsTraining))
	}
	return features, nil
}

// assembleFeature builds the Feature for windows[cur].
func assembleFeature(enc *encode.Encoder, ex *Example, windows []*window, cur int,
	queryIDs []int, tokStart, tokEnd int, isTraining bool) *Feature {
	w := windows[cur]
	e := w.enc
	tok := enc.Tokenizer()
	leftPadded := enc.PaddingSide() == encode.PadLeft

	// prefixLen is the query plus its leading special tokens; docOffset is
	// the local index where context tokens begin, which shifts by the pad
	// count when padding is applied on the left.
	prefixLen := len(queryIDs) + enc.NumAddedTokens(false)
	docOffset := prefixLen
	if leftPadded {
		docOffset += e.NumPadding
	}

	nonPadded := e.InputIDs[:len(e.InputIDs)-e.NumPadding]
	if leftPadded {
		nonPadded = e.InputIDs[e.NumPadding:]
	}
	tokens := make([]string, 0, len(nonPadded))
	for _, id := range nonPadded {
		if s, ok := tok.IDToToken(id); ok {
			tokens = append(tokens, s)
		}
	}

	tokenToOrig := make(map[int]int, w.length)
	for i := range w.length {
		tokenToOrig[docOffset+i] = w.start + i
	}

	tokenIsMax := make(map[int]bool, w.length)
	for j := range w.length {
		key := prefixLen + j
		if leftPadded {
			key = j
		}
		tokenIsMax[key] = isMaxContext(windows, cur, w.start+j)
	}

	clsIndex := 0
	for i, id := range e.InputIDs {
		if id == enc.ClsID() {
			clsIndex = i
			break
		}
	}

	// p_mask override order is load-bearing: context positions become
	// eligible, pads and special tokens are masked back, and the
	// classification position is forced eligible last.
	pMask := make([]int, len(e.InputIDs))
	for i := range pMask {
		pMask[i] = 1
	}
	for i := docOffset; i < len(pMask); i++ {
		pMask[i] = 0
	}
	for i, id := range e.InputIDs {
		if id == enc.PadID() {
			pMask[i] = 1
		}
	}
	for i, special := range e.SpecialTokensMask {
		if special != 0 {
			pMask[i] = 1
		}
	}
	pMask[clsIndex] = 0

	spanImpossible := ex.IsImpossible
	startPosition, endPosition := 0, 0
	if isTraining && !spanImpossible {
		docStart := w.start
		docEnd := w.start + w.length - 1
		if tokStart >= docStart && tokEnd <= docEnd {
			startPosition = tokStart - docStart + docOffset
			endPosition = tokEnd - docStart + docOffset
		} else {
			// The window doesn't cover the gold span: keep the feature but
			// point the span at the classification position.
			startPosition = clsIndex
			endPosition = clsIndex
			spanImpossible = true
		}
	}

	return &Feature{
		InputIDs:          e.InputIDs,
		AttentionMask:     e.AttentionMask,
		TokenTypeIDs:      e.TokenTypeIDs,
		ClsIndex:          clsIndex,
		PMask:             pMask,
		ParagraphLen:      w.length,
		TokenIsMaxContext: tokenIsMax,
		Tokens:            tokens,
		TokenToOrigMap:    tokenToOrig,
		StartPosition:     startPosition,
		EndPosition:       endPosition,
		IsImpossible:      spanImpossible,
		QasID:             ex.QasID,
	}
}

// ConvertExamplesToFeatures converts examples into the ordered feature
// collection. Conversion fans out over a worker pool sharing the read-only
// encoder; results are gathered in input order, then a single sequential pass
// assigns ExampleIndex (examples producing no features get no slot) and
// UniqueID starting at 1000000000.
func ConvertExamplesToFeatures(enc *encode.Encoder, examples []*Example, opts ConvertOptions) ([]*Feature, error) {
	if err := opts.validate(enc); err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	type span struct{ start, end int }
	chunks := make(chan span)
	perExample := make([][]*Feature, len(examples))

	var wg sync.WaitGroup
	var errOnce sync.Once
	var firstErr error
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range chunks {
				for i := c.start; i < c.end; i++ {
					feats, err := ConvertExampleToFeatures(enc, examples[i], opts)
					if err != nil {
						errOnce.Do(func() {
							firstErr = errors.WithMessagef(err, "converting example %q", examples[i].QasID)
						})
						continue
					}
					perExample[i] = feats
				}
			}
		}()
	}
	for start := 0; start < len(examples); start += convertChunkSize {
		chunks <- span{start, min(start+convertChunkSize, len(examples))}
	}
	close(chunks)
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	var features []*Feature
	uniqueID := featureUniqueIDBase
	exampleIndex := 0
	for _, feats := range perExample {
		if len(feats) == 0 {
			continue
		}
		for _, f := range feats {
			f.ExampleIndex = exampleIndex
			f.UniqueID = uniqueID
			uniqueID++
			features = append(features, f)
		}
		exampleIndex++
	}
	klog.V(1).Infof("Converted %d examples into %d features", len(examples), len(features))
	return features, nil
}
