// Package squad converts question-answering annotations (question, context,
// answer span) into fixed-length token-index feature records for
// span-extraction models.
//
// Contexts too long for a single model input are split into overlapping
// windows; the gold answer span is relocated from character offsets into
// token offsets inside the window that covers it, and windows that don't
// cover it are kept but marked answer-impossible.
package squad

// Answer is one annotated answer for a question, with its character offset
// into the context.
type Answer struct {
	Text        string `json:"text"`
	AnswerStart int    `json:"answer_start"`
}

// Example is a single training/test example, as loaded from disk.
//
// StartPosition and EndPosition are rune offsets into ContextText (the
// dataset format counts characters, not bytes) and are derived from the
// answer at construction time.
type Example struct {
	QasID        string
	QuestionText string
	ContextText  string
	AnswerText   string
	Title        string
	IsImpossible bool
	IsChallenge  bool
	Answers      []Answer

	StartPosition int
	EndPosition   int
}

// NewExample builds an Example and derives the character-offset answer span:
// EndPosition = startChar + len(answerText) - 1 when the example is possible
// and has an answer, otherwise both positions are 0.
//
// answerText and startChar carry the gold answer during training; evaluation
// examples pass the full answers list instead.
func NewExample(qasID, questionText, contextText, answerText string, startChar int,
	title string, answers []Answer, isImpossible, isChallenge bool) *Example {
	if answers == nil {
		answers = []Answer{}
	}
	ex := &Example{
		QasID:        qasID,
		QuestionText: questionText,
		ContextText:  contextText,
		AnswerText:   answerText,
		Title:        title,
		IsImpossible: isImpossible,
		IsChallenge:  isChallenge,
		Answers:      answers,
	}
	if !isImpossible && answerText != "" {
		ex.StartPosition = startChar
		ex.EndPosition = startChar + len([]rune(answerText)) - 1
	}
	return ex
}

// answerSpanMatches reports whether the derived character span reproduces the
// literal answer text. A mismatch means the annotation drifted from the
// context and the example must be rejected.
func (ex *Example) answerSpanMatches() bool {
	runes := []rune(ex.ContextText)
	if ex.StartPosition < 0 || ex.EndPosition+1 > len(runes) || ex.StartPosition > ex.EndPosition {
		return false
	}
	return string(runes[ex.StartPosition:ex.EndPosition+1]) == ex.AnswerText
}
