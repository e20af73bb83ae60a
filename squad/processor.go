package squad

import (
	"encoding/json"
	"os"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Dataset JSON schema: {"data": [{"title", "paragraphs": [{"context",
// "qas": [{"id", "question", "is_impossible", "is_challenge", "answers"}]}]}]}.
type datasetFile struct {
	Version string         `json:"version"`
	Data    []datasetEntry `json:"data"`
}

type datasetEntry struct {
	Title      string             `json:"title"`
	Paragraphs []datasetParagraph `json:"paragraphs"`
}

type datasetParagraph struct {
	Context string      `json:"context"`
	Qas     []datasetQA `json:"qas"`
}

type datasetQA struct {
	ID           string   `json:"id"`
	Question     string   `json:"question"`
	IsImpossible bool     `json:"is_impossible"`
	IsChallenge  bool     `json:"is_challenge"`
	Answers      []Answer `json:"answers"`
}

// Processor loads question-answering examples from dataset JSON files.
//
// Rejected examples are logged and recorded in InvalidIDs, never silently
// dropped; they produce no features.
type Processor struct {
	// InvalidIDs collects the qas ids of rejected examples, in file order,
	// accumulated across Read calls.
	InvalidIDs []string
}

// ReadTrainExamples loads training examples: the first annotated answer of
// each question becomes the gold answer, and examples whose character-offset
// answer span does not reproduce the answer text are rejected.
func (p *Processor) ReadTrainExamples(filePath string) ([]*Example, error) {
	return p.read(filePath, true)
}

// ReadDevExamples loads evaluation examples, keeping the full answers list of
// each question.
func (p *Processor) ReadDevExamples(filePath string) ([]*Example, error) {
	return p.read(filePath, false)
}

func (p *Processor) read(filePath string, isTraining bool) ([]*Example, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open dataset file %q", filePath)
	}
	defer f.Close()

	// Dataset files can be large; map instead of reading into memory.
	// json.Unmarshal copies everything it keeps, so the mapping can be
	// released on return.
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to mmap dataset file %q", filePath)
	}
	defer data.Unmap()

	var file datasetFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrapf(err, "failed to parse dataset file %q", filePath)
	}
	return p.createExamples(file.Data, isTraining), nil
}

func (p *Processor) createExamples(entries []datasetEntry, isTraining bool) []*Example {
	var examples []*Example
	maxContextLen, maxQuestionLen, maxAnswerLen := 0, 0, 0

	for _, entry := range entries {
		for _, paragraph := range entry.Paragraphs {
			for _, qa := range paragraph.Qas {
				qasID := qa.ID
				if qasID == "" {
					qasID = uuid.NewString()
					klog.Warningf("Example missing id, assigned %s", qasID)
				}

				answerText := ""
				startChar := 0
				var answers []Answer
				if !qa.IsImpossible {
					if isTraining {
						// Training sets carry a single gold answer per question.
						if len(qa.Answers) > 0 {
							answerText = qa.Answers[0].Text
							startChar = qa.Answers[0].AnswerStart
						}
					} else {
						answers = qa.Answers
					}
				}

				ex := NewExample(qasID, qa.Question, paragraph.Context, answerText, startChar,
					entry.Title, answers, qa.IsImpossible, qa.IsChallenge)

				switch {
				case qa.Question == "":
					klog.Warningf("Skip example %s: question is empty", qasID)
					p.InvalidIDs = append(p.InvalidIDs, qasID)
				case isTraining && !ex.IsImpossible && !ex.answerSpanMatches():
					klog.Warningf("Skip example %s: could not find answer %q at character offset %d",
						qasID, ex.AnswerText, ex.StartPosition)
					p.InvalidIDs = append(p.InvalidIDs, qasID)
				default:
					examples = append(examples, ex)
					maxContextLen = max(maxContextLen, len([]rune(ex.ContextText)))
					maxQuestionLen = max(maxQuestionLen, len([]rune(ex.QuestionText)))
					if !ex.IsImpossible {
						if isTraining {
							maxAnswerLen = max(maxAnswerLen, len([]rune(ex.AnswerText)))
						} else {
							for _, answer := range ex.Answers {
								maxAnswerLen = max(maxAnswerLen, len([]rune(answer.Text)))
							}
						}
					}
				}
			}
		}
	}

	klog.Infof("Loaded %d examples: max question length %d, max context length %d, max answer length %d",
		len(examples), maxQuestionLen, maxContextLen, maxAnswerLen)
	klog.Infof("Invalid examples: %d", len(p.InvalidIDs))
	return examples
}
