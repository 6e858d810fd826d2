// Package report renders ranked document pairs for terminals and pipelines.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/RishiKendai/overlap/internal/models"
	"github.com/RishiKendai/overlap/internal/overlap"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
)

// Format selects the pair output encoding
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
)

// ParseFormat accepts table, json or csv (case-insensitive)
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatJSON, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (want table, json or csv)", s)
	}
}

// Theme is the colour scheme of the summary block
type Theme struct {
	Title lipgloss.Style
	Label lipgloss.Style
	Value lipgloss.Style
	Box   lipgloss.Style
}

var DefaultTheme = Theme{
	Title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
	Label: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	Value: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("82")),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("39")).
		Padding(0, 1),
}

// Row is the flattened form of one ranked pair
type Row struct {
	Rank   int                `json:"rank"`
	Score  int                `json:"score"`
	Source models.DocumentRef `json:"source"`
	Target models.DocumentRef `json:"target"`
}

// Rows flattens ranked pairs keeping their ascending order
func Rows(ranked overlap.RankedPairs) []Row {
	results := overlap.PairResults("", "", ranked)
	rows := make([]Row, len(results))
	for i, r := range results {
		rows[i] = Row{
			Rank:   r.Rank,
			Score:  r.Score,
			Source: r.Source,
			Target: r.Target,
		}
	}
	return rows
}

// Write renders rows in the given format
func Write(w io.Writer, format Format, rows []Row) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, rows)
	case FormatCSV:
		return WriteCSV(w, rows)
	case FormatTable, "":
		return WriteTable(w, rows)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func docLabel(d models.DocumentRef) string {
	rev := d.Revision
	if len(rev) > 12 {
		rev = rev[:12]
	}
	return fmt.Sprintf("%s@%s:%s", d.Repository, rev, d.File)
}

// WriteTable renders rows as a go-pretty table with a total footer
func WriteTable(w io.Writer, rows []Row) error {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false

	tbl.AppendHeader(table.Row{"#", "Score", "Source", "Target"})
	for _, r := range rows {
		tbl.AppendRow(table.Row{r.Rank, humanize.Comma(int64(r.Score)), docLabel(r.Source), docLabel(r.Target)})
	}
	tbl.AppendFooter(table.Row{"", "", "Total", fmt.Sprintf("%s pairs", humanize.Comma(int64(len(rows))))})

	tbl.Render()
	return nil
}

// WriteJSON encodes rows as an indented JSON array
func WriteJSON(w io.Writer, rows []Row) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("failed to encode pairs: %w", err)
	}
	return nil
}

var csvHeader = []string{
	"rank", "score",
	"source_repository", "source_revision", "source_file",
	"target_repository", "target_revision", "target_file",
}

// WriteCSV writes rows with a header line
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, r := range rows {
		record := []string{
			strconv.Itoa(r.Rank), strconv.Itoa(r.Score),
			r.Source.Repository, r.Source.Revision, r.Source.File,
			r.Target.Repository, r.Target.Revision, r.Target.File,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Summary renders the stage counts of a run as a bordered block
func Summary(stats overlap.Stats, opts overlap.Options, elapsed time.Duration) string {
	return DefaultTheme.summary(stats, opts, elapsed)
}

func (t Theme) summary(stats overlap.Stats, opts overlap.Options, elapsed time.Duration) string {
	lines := []struct {
		label string
		value string
	}{
		{"repositories", humanize.Comma(int64(stats.Repositories))},
		{"fingerprints", humanize.Comma(int64(stats.Fingerprints))},
		{"distinct hashes", humanize.Comma(int64(stats.DistinctHashes))},
		{"interesting", humanize.Comma(int64(stats.Interesting))},
		{"matches", humanize.Comma(int64(stats.Matches))},
		{"documents", humanize.Comma(int64(stats.Documents))},
		{"pairs", humanize.Comma(int64(stats.Pairs))},
		{"popularity", fmt.Sprintf("%s < %s", opts.Scope, humanize.Comma(int64(opts.UpperBound)))},
		{"elapsed", elapsed.Round(time.Millisecond).String()},
	}

	var b strings.Builder
	b.WriteString(t.Title.Render("Overlap summary"))
	for _, l := range lines {
		b.WriteString("\n")
		b.WriteString(t.Label.Render(fmt.Sprintf("%-16s", l.label)))
		b.WriteString(t.Value.Render(l.value))
	}

	return t.Box.Render(b.String())
}
