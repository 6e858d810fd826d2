package corpusfile

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RishiKendai/overlap/internal/overlap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loc(repo, rev, file string, line int) overlap.Location {
	revision, err := overlap.ParseRevision(strings.Repeat(rev, 40))
	if err != nil {
		panic(err)
	}
	return overlap.Location{Repository: repo, Revision: revision, File: file, Line: line}
}

func sampleCorpus() overlap.Corpus {
	return overlap.Corpus{
		"alpha": {
			{Hash: 1, Location: loc("alpha", "a", "x.go", 1)},
			{Hash: ^overlap.Hash(0), Location: loc("alpha", "a", "x.go", 4)},
			{Hash: 2, Location: loc("alpha", "a", "y.go", 2)},
		},
		"beta": {
			{Hash: 1, Location: loc("beta", "b", "z.go", 7)},
		},
	}
}

func TestWriteRead(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleCorpus()))

	corpus, err := Read(&buf)
	require.NoError(t, err)

	assert.Equal(t, sampleCorpus(), corpus)
}

func TestFromCorpus_SortedByDocument(t *testing.T) {
	doc := FromCorpus(sampleCorpus())

	require.Len(t, doc.Files, 3)
	assert.Equal(t, "x.go", doc.Files[0].File)
	assert.Equal(t, "y.go", doc.Files[1].File)
	assert.Equal(t, "beta", doc.Files[2].Repository)
	assert.Len(t, doc.Files[0].Fingerprints, 2)
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"corpus.json", "corpus.json.lz4"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, Save(path, sampleCorpus()))

			corpus, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, sampleCorpus(), corpus)
		})
	}
}

func TestSave_CompressedIsNotPlainJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.json.lz4")
	require.NoError(t, Save(path, sampleCorpus()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEqual(t, byte('{'), raw[0])
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"malformed", `{"files": [`},
		{"bad revision", `{"files":[{"repository":"r","revision":"xyz","file":"a.go"}]}`},
		{"missing repository", `{"files":[{"revision":"` + strings.Repeat("a", 40) + `","file":"a.go"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestCompressed(t *testing.T) {
	assert.True(t, Compressed("c.json.lz4"))
	assert.True(t, Compressed("C.JSON.LZ4"))
	assert.False(t, Compressed("c.json"))
}
