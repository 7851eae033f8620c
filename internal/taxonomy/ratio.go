package taxonomy

// SequenceRatio returns the similarity ratio of two strings in [0,1] using
// the longest-matching-block method: 2*M / (len(a)+len(b)) where M is the
// total number of matched characters across recursively found longest common
// blocks. More character overlap always yields a higher score. This is a
// pure function with no side effects; runes are compared, not bytes.
func SequenceRatio(a, b string) float64 {
	runesA := []rune(a)
	runesB := []rune(b)
	lenA := len(runesA)
	lenB := len(runesB)
	if lenA == 0 && lenB == 0 {
		return 1
	}
	if lenA == 0 || lenB == 0 {
		return 0
	}
	matched := matchingBlocks(runesA, runesB, 0, lenA, 0, lenB)
	return 2 * float64(matched) / float64(lenA+lenB)
}

// matchingBlocks counts matched runes between a[aLo:aHi] and b[bLo:bHi]:
// the longest common block in the window, plus whatever matches recursively
// to its left and right.
func matchingBlocks(a, b []rune, aLo, aHi, bLo, bHi int) int {
	i, j, size := longestMatch(a, b, aLo, aHi, bLo, bHi)
	if size == 0 {
		return 0
	}
	total := size
	total += matchingBlocks(a, b, aLo, i, bLo, j)
	total += matchingBlocks(a, b, i+size, aHi, j+size, bHi)
	return total
}

// longestMatch finds the longest common block between a[aLo:aHi] and
// b[bLo:bHi], preferring the earliest start in a, then in b. Uses a rolling
// row so memory stays proportional to the b window.
func longestMatch(a, b []rune, aLo, aHi, bLo, bHi int) (bestI, bestJ, bestSize int) {
	bestI, bestJ = aLo, bLo
	// row[jj] = length of the common suffix ending at a[i], b[bLo+jj]
	row := make([]int, bHi-bLo)
	for i := aLo; i < aHi; i++ {
		prevDiag := 0
		for jj := 0; jj < bHi-bLo; jj++ {
			above := row[jj]
			if a[i] == b[bLo+jj] {
				row[jj] = prevDiag + 1
				if row[jj] > bestSize {
					bestSize = row[jj]
					bestI = i - bestSize + 1
					bestJ = bLo + jj - bestSize + 1
				}
			} else {
				row[jj] = 0
			}
			prevDiag = above
		}
	}
	return bestI, bestJ, bestSize
}
