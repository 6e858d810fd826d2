package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/RishiKendai/overlap/internal/overlap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(repo, rev, file string) overlap.Document {
	revision, err := overlap.ParseRevision(strings.Repeat(rev, 40))
	if err != nil {
		panic(err)
	}
	return overlap.Document{Repository: repo, Revision: revision, File: file}
}

func sampleRanked() overlap.RankedPairs {
	a, b := doc("alpha", "a", "x.go"), doc("beta", "b", "y.go")
	return overlap.RankedPairs{
		{Pair: overlap.DocumentPair{Source: b, Target: a}, Score: 3},
		{Pair: overlap.DocumentPair{Source: a, Target: b}, Score: 1500},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"table": FormatTable, "JSON": FormatJSON, " csv ": FormatCSV} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestRows(t *testing.T) {
	rows := Rows(sampleRanked())

	require.Len(t, rows, 2)
	assert.Equal(t, 0, rows[0].Rank)
	assert.Equal(t, 3, rows[0].Score)
	assert.Equal(t, "beta", rows[0].Source.Repository)
	assert.Equal(t, strings.Repeat("a", 40), rows[0].Target.Revision)
	assert.Equal(t, 1, rows[1].Rank)
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatTable, Rows(sampleRanked())))

	out := buf.String()
	assert.Contains(t, out, "alpha@aaaaaaaaaaaa:x.go")
	assert.Contains(t, out, "beta@bbbbbbbbbbbb:y.go")
	assert.Contains(t, out, "1,500")
	assert.Contains(t, strings.ToLower(out), "2 pairs")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, Rows(sampleRanked())))

	var rows []Row
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	assert.Equal(t, Rows(sampleRanked()), rows)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, Rows(sampleRanked())))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, []string{"1", "1500"}, records[2][:2])
	assert.Equal(t, "alpha", records[2][2])
	assert.Equal(t, "y.go", records[2][7])
}

func TestWrite_UnknownFormat(t *testing.T) {
	assert.Error(t, Write(&bytes.Buffer{}, Format("xml"), nil))
}

func TestSummary(t *testing.T) {
	out := Summary(overlap.Stats{
		Repositories:   3,
		Fingerprints:   12345,
		DistinctHashes: 4000,
		Pairs:          6,
	}, overlap.DefaultOptions(), 1500*time.Millisecond)

	assert.Contains(t, out, "Overlap summary")
	assert.Contains(t, out, "12,345")
	assert.Contains(t, out, "4,000")
	assert.Contains(t, out, "repository < 1,000")
	assert.Contains(t, out, "1.5s")
}
