// Package corpusfile reads and writes fingerprint corpora as JSON documents,
// optionally wrapped in an LZ4 frame.
package corpusfile

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/RishiKendai/overlap/internal/models"
	"github.com/RishiKendai/overlap/internal/overlap"
	"github.com/pierrec/lz4/v4"
)

// lz4Suffix marks a corpus file as LZ4 framed
const lz4Suffix = ".lz4"

// File holds the fingerprints of one versioned source file
type File struct {
	Repository   string             `json:"repository"`
	Revision     string             `json:"revision"`
	File         string             `json:"file"`
	Fingerprints []models.HashEntry `json:"fingerprints"`
}

// Document is the on-disk corpus layout
type Document struct {
	Files []File `json:"files"`
}

// Compressed reports whether path names an LZ4 framed corpus
func Compressed(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), lz4Suffix)
}

// Load reads a corpus from path, decompressing it when the name ends in .lz4
func Load(path string) (overlap.Corpus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if Compressed(path) {
		r = lz4.NewReader(f)
	}

	corpus, err := Read(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return corpus, nil
}

// Save writes corpus to path, compressing it when the name ends in .lz4
func Save(path string, corpus overlap.Corpus) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create corpus file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close corpus file: %w", cerr)
		}
	}()

	if !Compressed(path) {
		return Write(f, corpus)
	}

	zw := lz4.NewWriter(f)
	if err := Write(zw, corpus); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to flush lz4 frame: %w", err)
	}
	return nil
}

// Read decodes a JSON corpus document
func Read(r io.Reader) (overlap.Corpus, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode corpus: %w", err)
	}
	return doc.Corpus()
}

// Write encodes corpus as a JSON document with files in document order
func Write(w io.Writer, corpus overlap.Corpus) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(FromCorpus(corpus)); err != nil {
		return fmt.Errorf("failed to encode corpus: %w", err)
	}
	return nil
}

// Corpus converts the document into engine input
func (d *Document) Corpus() (overlap.Corpus, error) {
	corpus := make(overlap.Corpus)
	for _, file := range d.Files {
		if file.Repository == "" || file.File == "" {
			return nil, fmt.Errorf("file entry requires repository and file")
		}
		revision, err := overlap.ParseRevision(file.Revision)
		if err != nil {
			return nil, fmt.Errorf("file %s in %s: %w", file.File, file.Repository, err)
		}

		fingerprints := corpus[file.Repository]
		for _, e := range file.Fingerprints {
			fingerprints = append(fingerprints, overlap.Fingerprint{
				Hash: overlap.Hash(e.Hash),
				Location: overlap.Location{
					Repository: file.Repository,
					Revision:   revision,
					File:       file.File,
					Line:       e.Line,
				},
			})
		}
		corpus[file.Repository] = fingerprints
	}
	return corpus, nil
}

// FromCorpus groups corpus fingerprints by document. Fingerprints keep their
// order within a document.
func FromCorpus(corpus overlap.Corpus) *Document {
	byDoc := make(map[overlap.Document]*File)
	for _, fingerprints := range corpus {
		for _, f := range fingerprints {
			doc := f.Location.Document()
			file, ok := byDoc[doc]
			if !ok {
				file = &File{
					Repository: doc.Repository,
					Revision:   doc.Revision.String(),
					File:       doc.File,
				}
				byDoc[doc] = file
			}
			file.Fingerprints = append(file.Fingerprints, models.HashEntry{
				Hash: uint64(f.Hash),
				Line: f.Location.Line,
			})
		}
	}

	docs := make([]overlap.Document, 0, len(byDoc))
	for doc := range byDoc {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Less(docs[j]) })

	out := &Document{Files: make([]File, 0, len(docs))}
	for _, doc := range docs {
		out.Files = append(out.Files, *byDoc[doc])
	}
	return out
}
