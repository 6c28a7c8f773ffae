package parser

import "strings"

// TitleSimilarity computes a case-insensitive sequence-similarity ratio
// between two strings: 2M/T, where M is the total size of the matching
// blocks and T the combined length. 1.0 means identical, 0.0 no overlap.
func TitleSimilarity(a, b string) float64 {
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))
	if len(ra) == 0 && len(rb) == 0 {
		return 1.0
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0.0
	}
	m := matchingSize(ra, rb)
	return 2.0 * float64(m) / float64(len(ra)+len(rb))
}

// matchingSize sums matching blocks: find the longest common substring,
// then recurse on the pieces to its left and right.
func matchingSize(a, b []rune) int {
	ai, bi, size := longestMatch(a, b)
	if size == 0 {
		return 0
	}
	total := size
	total += matchingSize(a[:ai], b[:bi])
	total += matchingSize(a[ai+size:], b[bi+size:])
	return total
}

// longestMatch returns the start offsets and length of the longest
// common substring of a and b.
func longestMatch(a, b []rune) (ai, bi, size int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0, 0
	}

	// Positions of each rune in b.
	b2j := make(map[rune][]int, len(b))
	for j, r := range b {
		b2j[r] = append(b2j[r], j)
	}

	// lengths[j] = length of match ending at a[i-1], b[j-1] from the
	// previous row.
	lengths := make(map[int]int)
	for i, r := range a {
		next := make(map[int]int, len(b2j[r]))
		for _, j := range b2j[r] {
			k := lengths[j-1] + 1
			next[j] = k
			if k > size {
				ai = i - k + 1
				bi = j - k + 1
				size = k
			}
		}
		lengths = next
	}
	return ai, bi, size
}
