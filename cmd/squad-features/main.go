// Command squad-features converts a SQuAD-format dataset JSON file into a
// parquet file of model-input feature records.
//
// Usage:
//
//	squad-features -input train-v2.0.json -vocab vocab.txt -output features.parquet -train
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"k8s.io/klog/v2"

	"github.com/gomlx/go-squad/squad"
	"github.com/gomlx/go-squad/tokenizers/encode"
	"github.com/gomlx/go-squad/tokenizers/wordpiece"
)

var (
	flagInput  = flag.String("input", "", "Input dataset JSON file")
	flagOutput = flag.String("output", "features.parquet", "Output parquet file")
	flagVocab  = flag.String("vocab", "vocab.txt", "WordPiece vocabulary file")

	flagMaxSeqLength   = flag.Int("max-seq-length", 384, "Maximum model input length, special tokens included")
	flagDocStride      = flag.Int("doc-stride", 128, "Token step between consecutive context windows")
	flagMaxQueryLength = flag.Int("max-query-length", 64, "Maximum encoded question length")
	flagTrain          = flag.Bool("train", false, "Build training features (align and relocate answer spans)")
	flagWorkers        = flag.Int("workers", 0, "Number of conversion workers, 0 for all CPUs")
	flagLowercase      = flag.Bool("lowercase", true, "Lowercase text before tokenization")
	flagPadLeft        = flag.Bool("pad-left", false, "Pad sequences on the left instead of the right")
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(18)
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagInput == "" {
		fmt.Fprintln(os.Stderr, errorStyle.Render("missing -input dataset file"))
		flag.Usage()
		os.Exit(2)
	}
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %+v\n", errorStyle.Render("squad-features failed:"), err)
		os.Exit(1)
	}
}

func run() error {
	start := time.Now()

	tok, err := wordpiece.NewFromFile(*flagVocab, wordpiece.Options{
		Lowercase:    *flagLowercase,
		StripAccents: *flagLowercase,
	})
	if err != nil {
		return err
	}
	enc, err := encode.New(tok)
	if err != nil {
		return err
	}
	if *flagPadLeft {
		enc = enc.WithPaddingSide(encode.PadLeft)
	}

	var processor squad.Processor
	var examples []*squad.Example
	if *flagTrain {
		examples, err = processor.ReadTrainExamples(*flagInput)
	} else {
		examples, err = processor.ReadDevExamples(*flagInput)
	}
	if err != nil {
		return err
	}

	features, err := squad.ConvertExamplesToFeatures(enc, examples, squad.ConvertOptions{
		MaxSeqLength:   *flagMaxSeqLength,
		DocStride:      *flagDocStride,
		MaxQueryLength: *flagMaxQueryLength,
		IsTraining:     *flagTrain,
		Workers:        *flagWorkers,
	})
	if err != nil {
		return err
	}
	if err := squad.WriteFeaturesFile(*flagOutput, features); err != nil {
		return err
	}

	fmt.Println(titleStyle.Render("squad-features"))
	fmt.Printf("%s %s\n", labelStyle.Render("input"), *flagInput)
	fmt.Printf("%s %s\n", labelStyle.Render("output"), *flagOutput)
	fmt.Printf("%s %d\n", labelStyle.Render("examples"), len(examples))
	fmt.Printf("%s %d\n", labelStyle.Render("skipped"), len(processor.InvalidIDs))
	fmt.Printf("%s %d\n", labelStyle.Render("features"), len(features))
	fmt.Printf("%s %s\n", labelStyle.Render("elapsed"), time.Since(start).Round(time.Millisecond))
	return nil
}
