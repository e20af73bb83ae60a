package squad

import (
	"math/rand"
	"os"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// featureRecord is the parquet row layout for one Feature. The two map fields
// are flattened into parallel index/value columns, sorted by index so files
// are deterministic for identical inputs.
type featureRecord struct {
	UniqueID     int64  `parquet:"unique_id"`
	ExampleIndex int64  `parquet:"example_index"`
	QasID        string `parquet:"qas_id"`

	InputIDs      []int64 `parquet:"input_ids"`
	AttentionMask []int64 `parquet:"attention_mask"`
	TokenTypeIDs  []int64 `parquet:"token_type_ids"`
	ClsIndex      int64   `parquet:"cls_index"`
	PMask         []int64 `parquet:"p_mask"`

	ParagraphLen int64    `parquet:"paragraph_len"`
	Tokens       []string `parquet:"tokens"`

	MaxContextIndex []int64 `parquet:"max_context_index"`
	MaxContextValue []bool  `parquet:"max_context_value"`
	OrigMapIndex    []int64 `parquet:"orig_map_index"`
	OrigMapValue    []int64 `parquet:"orig_map_value"`

	StartPosition int64 `parquet:"start_position"`
	EndPosition   int64 `parquet:"end_position"`
	IsImpossible  bool  `parquet:"is_impossible"`
}

// WriteFeaturesFile stores the ordered feature collection as a parquet file.
//
// The write goes to filePath+".tmp" and is atomically renamed into place; a
// filePath+".lock" flock coordinates multiple processes converting into the
// same cache path.
func WriteFeaturesFile(filePath string, features []*Feature) error {
	lockPath := filePath + ".lock"
	var mainErr error
	errLock := execOnFileLock(lockPath, func() {
		tmpPath := filePath + ".tmp"
		f, err := os.Create(tmpPath)
		if err != nil {
			mainErr = errors.Wrapf(err, "creating temporary features file %q", tmpPath)
			return
		}
		removeTmp := true
		defer func() {
			if removeTmp {
				_ = f.Close()
				if err := os.Remove(tmpPath); err != nil {
					klog.Warningf("Failed removing temporary features file %q: %v", tmpPath, err)
				}
			}
		}()

		writer := parquet.NewGenericWriter[featureRecord](f)
		records := make([]featureRecord, len(features))
		for i, feature := range features {
			records[i] = toFeatureRecord(feature)
		}
		if _, err := writer.Write(records); err != nil {
			mainErr = errors.Wrapf(err, "writing features to %q", tmpPath)
			return
		}
		if err := writer.Close(); err != nil {
			mainErr = errors.Wrapf(err, "closing parquet writer for %q", tmpPath)
			return
		}
		if err := f.Close(); err != nil {
			mainErr = errors.Wrapf(err, "closing temporary features file %q", tmpPath)
			return
		}
		if err := os.Rename(tmpPath, filePath); err != nil {
			mainErr = errors.Wrapf(err, "moving features file %q to %q", tmpPath, filePath)
			return
		}
		removeTmp = false
		if err := os.Remove(lockPath); err != nil {
			klog.Warningf("Failed removing lock file %q: %v", lockPath, err)
		}
	})
	if mainErr != nil {
		return mainErr
	}
	if errLock != nil {
		return errors.WithMessagef(errLock, "while locking %q to write features", lockPath)
	}
	return nil
}

// ReadFeaturesFile loads a feature collection written by WriteFeaturesFile,
// preserving order.
func ReadFeaturesFile(filePath string) ([]*Feature, error) {
	records, err := parquet.ReadFile[featureRecord](filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading features file %q", filePath)
	}
	features := make([]*Feature, len(records))
	for i := range records {
		features[i] = fromFeatureRecord(&records[i])
	}
	return features, nil
}

func toFeatureRecord(f *Feature) featureRecord {
	record := featureRecord{
		UniqueID:      int64(f.UniqueID),
		ExampleIndex:  int64(f.ExampleIndex),
		QasID:         f.QasID,
		InputIDs:      toInt64(f.InputIDs),
		AttentionMask: toInt64(f.AttentionMask),
		TokenTypeIDs:  toInt64(f.TokenTypeIDs),
		ClsIndex:      int64(f.ClsIndex),
		PMask:         toInt64(f.PMask),
		ParagraphLen:  int64(f.ParagraphLen),
		Tokens:        f.Tokens,
		StartPosition: int64(f.StartPosition),
		EndPosition:   int64(f.EndPosition),
		IsImpossible:  f.IsImpossible,
	}
	for _, key := range sortedKeys(f.TokenIsMaxContext) {
		record.MaxContextIndex = append(record.MaxContextIndex, int64(key))
		record.MaxContextValue = append(record.MaxContextValue, f.TokenIsMaxContext[key])
	}
	for _, key := range sortedKeys(f.TokenToOrigMap) {
		record.OrigMapIndex = append(record.OrigMapIndex, int64(key))
		record.OrigMapValue = append(record.OrigMapValue, int64(f.TokenToOrigMap[key]))
	}
	return record
}

func fromFeatureRecord(r *featureRecord) *Feature {
	f := &Feature{
		UniqueID:          int(r.UniqueID),
		ExampleIndex:      int(r.ExampleIndex),
		QasID:             r.QasID,
		InputIDs:          toInt(r.InputIDs),
		AttentionMask:     toInt(r.AttentionMask),
		TokenTypeIDs:      toInt(r.TokenTypeIDs),
		ClsIndex:          int(r.ClsIndex),
		PMask:             toInt(r.PMask),
		ParagraphLen:      int(r.ParagraphLen),
		Tokens:            r.Tokens,
		TokenIsMaxContext: make(map[int]bool, len(r.MaxContextIndex)),
		TokenToOrigMap:    make(map[int]int, len(r.OrigMapIndex)),
		StartPosition:     int(r.StartPosition),
		EndPosition:       int(r.EndPosition),
		IsImpossible:      r.IsImpossible,
	}
	for i, key := range r.MaxContextIndex {
		f.TokenIsMaxContext[int(key)] = r.MaxContextValue[i]
	}
	for i, key := range r.OrigMapIndex {
		f.TokenToOrigMap[int(key)] = int(r.OrigMapValue[i])
	}
	return f
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Ints(keys)
	return keys
}

func toInt(values []int64) []int {
	out := make([]int, len(values))
	for i, v := range values {
		out[i] = int(v)
	}
	return out
}

// execOnFileLock opens lockPath (creating it if needed), locks it, and runs
// fn. If the lock is held elsewhere it polls with a 1 to 2 second period
// until acquired. fn may remove lockPath once the protected file exists.
func execOnFileLock(lockPath string, fn func()) (err error) {
	fileLock := flock.New(lockPath)
	for {
		locked, err := fileLock.TryLock()
		if err != nil {
			return errors.Wrapf(err, "while trying to lock %q", lockPath)
		}
		if locked {
			break
		}
		time.Sleep(time.Millisecond * time.Duration(1000+rand.Intn(1000)))
	}
	defer func() {
		unlockErr := fileLock.Unlock()
		if unlockErr != nil && err == nil {
			err = errors.Wrapf(unlockErr, "unlocking file %q", lockPath)
		}
	}()
	fn()
	return
}
