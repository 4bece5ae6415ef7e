package index

import "unicode/utf8"

// maxEdits is the edit budget for a query token of n runes. Tokens under
// four runes never match fuzzily.
func maxEdits(n int) int {
	if n < 4 {
		return 0
	}
	d := n / 5
	if d > 2 {
		d = 2
	}
	return d
}

// withinDistance reports whether the Levenshtein distance between a and b
// is at most limit. It gives up as soon as a whole row exceeds limit.
func withinDistance(a, b []rune, limit int) bool {
	if abs(len(a)-len(b)) > limit {
		return false
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		rowMin := curr[0]
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
			if curr[j] < rowMin {
				rowMin = curr[j]
			}
		}
		if rowMin > limit {
			return false
		}
		prev, curr = curr, prev
	}
	return prev[len(b)] <= limit
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
