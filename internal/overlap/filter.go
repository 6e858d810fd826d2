package overlap

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultUpperBound is the popularity at which a fingerprint stops being interesting
const DefaultUpperBound = 1000

// ErrIndexInvariant signals a corpus hash missing from the index built from that corpus
var ErrIndexInvariant = errors.New("inverted index invariant violated")

// PopularityScope selects which occurrences count towards a fingerprint's popularity
type PopularityScope string

const (
	// ScopeRepository counts occurrences inside the fingerprint's own repository
	ScopeRepository PopularityScope = "repository"
	// ScopeGlobal counts occurrences across the whole corpus
	ScopeGlobal PopularityScope = "global"
)

// ParsePopularityScope accepts "repository" or "global" (case-insensitive)
func ParsePopularityScope(s string) (PopularityScope, error) {
	switch scope := PopularityScope(strings.ToLower(strings.TrimSpace(s))); scope {
	case ScopeRepository, ScopeGlobal:
		return scope, nil
	case "":
		return ScopeRepository, nil
	default:
		return "", fmt.Errorf("unknown popularity scope: %q", s)
	}
}

// FilterOptions configures the match filter
type FilterOptions struct {
	UpperBound int
	Scope      PopularityScope
}

// DefaultFilterOptions returns the repository-scoped filter with bound 1000
func DefaultFilterOptions() FilterOptions {
	return FilterOptions{
		UpperBound: DefaultUpperBound,
		Scope:      ScopeRepository,
	}
}

// Interesting reports whether a fingerprint with the given popularity carries signal
func Interesting(popularity, upperBound int) bool {
	return popularity > 0 && popularity < upperBound
}

// Popularity counts the occurrences of f.Hash in repo (or everywhere, for ScopeGlobal).
// Panics with ErrIndexInvariant if the hash is absent from the index.
func Popularity(index InvertedIndex, repo string, f Fingerprint, scope PopularityScope) int {
	locations := lookup(index, f)
	if scope == ScopeGlobal {
		return len(locations)
	}

	count := 0
	for _, loc := range locations {
		if loc.Repository == repo {
			count++
		}
	}
	return count
}

func lookup(index InvertedIndex, f Fingerprint) []Location {
	locations, ok := index[f.Hash]
	if !ok {
		panic(fmt.Errorf("%w: hash %d from %s not indexed", ErrIndexInvariant, f.Hash, f.Location))
	}
	return locations
}

type popularityKey struct {
	repo string
	hash Hash
}

// popularityCache memoises popularity per (repository, hash); every
// occurrence of a hash inside one repository shares the same value.
type popularityCache struct {
	index  InvertedIndex
	scope  PopularityScope
	values map[popularityKey]int
}

func (c *popularityCache) get(repo string, f Fingerprint) int {
	key := popularityKey{repo: repo, hash: f.Hash}
	if p, ok := c.values[key]; ok {
		return p
	}
	p := Popularity(c.index, repo, f, c.scope)
	c.values[key] = p
	return p
}

// FilterMatches maps every interesting fingerprint's location to the
// locations sharing its hash that are interesting in their own repository,
// itself included. Locations whose fingerprints are all uninteresting get no
// entry.
func FilterMatches(index InvertedIndex, corpus Corpus, opts FilterOptions) MatchMap {
	matches, _ := filterMatches(index, corpus, opts)
	return matches
}

// filterMatches also returns the number of interesting fingerprint occurrences
func filterMatches(index InvertedIndex, corpus Corpus, opts FilterOptions) (MatchMap, int) {
	if opts.UpperBound <= 0 {
		opts.UpperBound = DefaultUpperBound
	}

	matches := make(MatchMap)
	cache := &popularityCache{
		index:  index,
		scope:  opts.Scope,
		values: make(map[popularityKey]int),
	}
	interesting := 0

	for repo, fingerprints := range corpus {
		for _, f := range fingerprints {
			if !Interesting(cache.get(repo, f), opts.UpperBound) {
				continue
			}
			interesting++

			for _, target := range lookup(index, f) {
				// suppressed occurrences on the target side carry no signal either
				if target.Repository != repo &&
					!Interesting(cache.get(target.Repository, Fingerprint{Hash: f.Hash, Location: target}), opts.UpperBound) {
					continue
				}
				matches[f.Location] = append(matches[f.Location], target)
			}
		}
	}

	return matches, interesting
}

// Size returns the total number of matched locations
func (m MatchMap) Size() int {
	n := 0
	for _, matched := range m {
		n += len(matched)
	}
	return n
}
