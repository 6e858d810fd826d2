package overlap

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// Hash is a fingerprint hash produced by the k-gram/winnowing front end
type Hash uint64

// Revision is a 20-byte content hash (e.g. a git commit id)
type Revision [20]byte

// ParseRevision decodes a 40 character hex string into a Revision
func ParseRevision(s string) (Revision, error) {
	var rev Revision
	if err := rev.UnmarshalText([]byte(s)); err != nil {
		return Revision{}, err
	}
	return rev, nil
}

func (r Revision) String() string {
	return hex.EncodeToString(r[:])
}

func (r Revision) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Revision) UnmarshalText(text []byte) error {
	if len(text) != hex.EncodedLen(len(r)) {
		return fmt.Errorf("invalid revision %q: want %d hex characters", text, hex.EncodedLen(len(r)))
	}
	if _, err := hex.Decode(r[:], text); err != nil {
		return fmt.Errorf("invalid revision %q: %w", text, err)
	}
	return nil
}

// Location is a single fingerprint occurrence. Comparable, used as a map key.
type Location struct {
	Repository string   `json:"repository"`
	Revision   Revision `json:"revision"`
	File       string   `json:"file"`
	Line       int      `json:"line"`
}

// Document returns the location with its line erased
func (l Location) Document() Document {
	return Document{
		Repository: l.Repository,
		Revision:   l.Revision,
		File:       l.File,
	}
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d", l.Document(), l.Line)
}

// Document identifies one versioned source file
type Document struct {
	Repository string   `json:"repository"`
	Revision   Revision `json:"revision"`
	File       string   `json:"file"`
}

func (d Document) String() string {
	return fmt.Sprintf("%s@%s:%s", d.Repository, d.Revision.String()[:12], d.File)
}

// Less orders documents by repository, revision, then file
func (d Document) Less(o Document) bool {
	if d.Repository != o.Repository {
		return d.Repository < o.Repository
	}
	if c := bytes.Compare(d.Revision[:], o.Revision[:]); c != 0 {
		return c < 0
	}
	return d.File < o.File
}

// Fingerprint is a hash tagged with the location that produced it
type Fingerprint struct {
	Hash     Hash     `json:"hash"`
	Location Location `json:"location"`
}

// Corpus maps a repository identifier to its fingerprints
type Corpus map[string][]Fingerprint

// Size returns the total number of fingerprints in the corpus
func (c Corpus) Size() int {
	n := 0
	for _, fps := range c {
		n += len(fps)
	}
	return n
}

// InvertedIndex maps a hash to every location carrying it
type InvertedIndex map[Hash][]Location

// MatchMap maps a source location to the locations it may match against
type MatchMap map[Location][]Location

// DocumentPair is an ordered pair of documents
type DocumentPair struct {
	Source Document `json:"source"`
	Target Document `json:"target"`
}

// IsSelf reports whether both sides are the same document
func (p DocumentPair) IsSelf() bool {
	return p.Source == p.Target
}

// PairScore counts shared interesting fingerprint occurrences per document pair
type PairScore map[DocumentPair]int

// RankedPair is one entry of the ranked output
type RankedPair struct {
	Pair  DocumentPair `json:"pair"`
	Score int          `json:"score"`
}

// RankedPairs is sorted ascending by score
type RankedPairs []RankedPair
