package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RishiKendai/overlap/internal/corpusfile"
	"github.com/RishiKendai/overlap/internal/overlap"
	"github.com/RishiKendai/overlap/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func location(repo, rev, file string, line int) overlap.Location {
	revision, err := overlap.ParseRevision(strings.Repeat(rev, 40))
	if err != nil {
		panic(err)
	}
	return overlap.Location{Repository: repo, Revision: revision, File: file, Line: line}
}

// alpha/x.go and beta/y.go share two hashes, beta/z.go shares one with x.go
func writeCorpus(t *testing.T, name string) string {
	t.Helper()
	corpus := overlap.Corpus{
		"alpha": {
			{Hash: 1, Location: location("alpha", "a", "x.go", 1)},
			{Hash: 2, Location: location("alpha", "a", "x.go", 2)},
		},
		"beta": {
			{Hash: 1, Location: location("beta", "b", "y.go", 1)},
			{Hash: 2, Location: location("beta", "b", "y.go", 2)},
			{Hash: 1, Location: location("beta", "b", "z.go", 5)},
		},
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, corpusfile.Save(path, corpus))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRank_JSON(t *testing.T) {
	path := writeCorpus(t, "corpus.json")

	stdout, stderr, err := execute(t, "rank", "--corpus", path, "--format", "json")
	require.NoError(t, err)

	var rows []report.Row
	require.NoError(t, json.Unmarshal([]byte(stdout), &rows))
	require.NotEmpty(t, rows)
	for i := 1; i < len(rows); i++ {
		assert.LessOrEqual(t, rows[i-1].Score, rows[i].Score)
	}
	assert.Contains(t, stderr, "Overlap summary")
}

func TestRank_TopAndMin(t *testing.T) {
	path := writeCorpus(t, "corpus.json.lz4")

	stdout, _, err := execute(t, "rank", "--corpus", path, "--format", "json", "--min", "2", "--top", "1", "--sequential", "--no-summary")
	require.NoError(t, err)

	var rows []report.Row
	require.NoError(t, json.Unmarshal([]byte(stdout), &rows))
	require.Len(t, rows, 1)
	assert.GreaterOrEqual(t, rows[0].Score, 2)
}

func TestRank_InvalidFlags(t *testing.T) {
	path := writeCorpus(t, "corpus.json")

	tests := [][]string{
		{"rank"},
		{"rank", "--corpus", path, "--format", "xml"},
		{"rank", "--corpus", path, "--scope", "planet"},
		{"rank", "--corpus", path, "--upper-bound", "1"},
		{"rank", "--corpus", path, "--top", "-1"},
		{"rank", "--corpus", filepath.Join(t.TempDir(), "missing.json")},
	}

	for _, args := range tests {
		t.Run(strings.Join(args[1:], " "), func(t *testing.T) {
			_, _, err := execute(t, args...)
			assert.Error(t, err)
		})
	}
}

func TestConvert(t *testing.T) {
	src := writeCorpus(t, "corpus.json")
	dst := filepath.Join(t.TempDir(), "corpus.json.lz4")

	stdout, _, err := execute(t, "convert", src, dst)
	require.NoError(t, err)
	assert.Contains(t, stdout, "wrote 5 fingerprints")

	original, err := corpusfile.Load(src)
	require.NoError(t, err)
	converted, err := corpusfile.Load(dst)
	require.NoError(t, err)
	assert.Equal(t, original, converted)
}
