package squad

import "strings"

// AlignAnswerSpan finds the tightest token span in docTokens whose
// separator-free concatenation equals the concatenation of answerTokens.
//
// The scan is exhaustive: earliest start first, and for each start the end
// positions are tried from the top down, so the first match keeps the
// earliest start and, for that start, the highest end that still matches.
// That scan order is part of the contract: downstream span-position
// arithmetic depends on it, so it must not be replaced by a shortest- or
// longest-span heuristic.
//
// When no match exists the fallback pair is returned unchanged. Worst case is
// O(n²·k) for pathological inputs with repeated substrings; in practice n is
// bounded by the sliding-window design.
func AlignAnswerSpan(docTokens, answerTokens []string, fallbackStart, fallbackEnd int) (int, int) {
	target := strings.Join(answerTokens, "")

	// Prefix sums of token lengths let us reject candidate spans by length
	// before building the concatenation.
	lengths := make([]int, len(docTokens)+1)
	for i, token := range docTokens {
		lengths[i+1] = lengths[i] + len(token)
	}

	for start := 0; start < len(docTokens); start++ {
		for end := len(docTokens) - 1; end >= start; end-- {
			if lengths[end+1]-lengths[start] != len(target) {
				continue
			}
			if strings.Join(docTokens[start:end+1], "") == target {
				return start, end
			}
		}
	}
	return fallbackStart, fallbackEnd
}
