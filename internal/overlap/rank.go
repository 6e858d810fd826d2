package overlap

import "sort"

// Rank orders the pair scores ascending. Equal scores fall back to source then
// target document order so repeated runs produce the same sequence.
func Rank(scores PairScore) RankedPairs {
	ranked := make(RankedPairs, 0, len(scores))
	for pair, score := range scores {
		ranked = append(ranked, RankedPair{Pair: pair, Score: score})
	}

	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score < b.Score
		}
		if a.Pair.Source != b.Pair.Source {
			return a.Pair.Source.Less(b.Pair.Source)
		}
		return a.Pair.Target.Less(b.Pair.Target)
	})

	return ranked
}

// Top returns the n highest scoring pairs, still in ascending order
func (r RankedPairs) Top(n int) RankedPairs {
	if n <= 0 || n >= len(r) {
		return r
	}
	return r[len(r)-n:]
}

// AtLeast returns the suffix of pairs scoring minScore or more
func (r RankedPairs) AtLeast(minScore int) RankedPairs {
	i := sort.Search(len(r), func(i int) bool {
		return r[i].Score >= minScore
	})
	return r[i:]
}
