package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	dto "github.com/prometheus/client_model/go"

	"github.com/wbrown/janus-graphd/graphd"
	"github.com/wbrown/janus-graphd/graphd/iterator"
	"github.com/wbrown/janus-graphd/graphd/storage"
)

// TableFormatter renders command output as markdown tables
type TableFormatter struct {
	// MaxWidth is the maximum width for a column
	MaxWidth int
	// TruncateString is the string to append when truncating
	TruncateString string
}

// NewTableFormatter creates a new table formatter with default settings
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{
		MaxWidth:       50,
		TruncateString: "...",
	}
}

// FormatPrimitives formats result ids with their GUIDs and linkages.
// Ids the store cannot resolve are shown with empty columns.
func (tf *TableFormatter) FormatPrimitives(store storage.Store, ids []graphd.ID) string {
	headers := []string{"#", "id", "guid"}
	for l := graphd.Linkage(0); l < graphd.NLinkages; l++ {
		headers = append(headers, l.String())
	}
	if len(ids) == 0 {
		return "_No results_"
	}

	rows := make([][]string, 0, len(ids))
	for i, id := range ids {
		row := []string{fmt.Sprint(i + 1), id.String()}
		p, err := store.Primitive(id)
		if err != nil {
			row = append(row, make([]string, 1+int(graphd.NLinkages))...)
			rows = append(rows, row)
			continue
		}
		row = append(row, p.GUID.String())
		for l := graphd.Linkage(0); l < graphd.NLinkages; l++ {
			row = append(row, p.Links[l].String())
		}
		rows = append(rows, row)
	}
	return tf.formatTable(headers, rows, "results")
}

// FormatStats formats an iterator's estimates after Statistics, followed
// by its (possibly evolved) set.
func (tf *TableFormatter) FormatStats(it *iterator.Iterator, set string, slices int) string {
	st := it.Stats()
	ordering := it.Ordering()
	if ordering == "" {
		ordering = "-"
	}
	rows := [][]string{
		{"kind", it.Kind()},
		{"sorted", fmt.Sprint(it.Sorted())},
		{"ordering", ordering},
		{"n", fmt.Sprint(st.N)},
		{"next cost", fmt.Sprint(st.NextCost)},
		{"find cost", fmt.Sprint(st.FindCost)},
		{"check cost", fmt.Sprint(st.CheckCost)},
		{"slices", fmt.Sprint(slices)},
	}
	// the set is printed whole so it can be pasted back
	return tf.formatTable([]string{"statistic", "value"}, rows, "") + "\nset: " + set + "\n"
}

// FormatMetrics formats gathered prometheus metric families, one row per
// labeled series. Histograms show their sample count.
func (tf *TableFormatter) FormatMetrics(families []*dto.MetricFamily) string {
	var rows [][]string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			sort.Strings(labels)
			rows = append(rows, []string{mf.GetName(), strings.Join(labels, ","), metricValue(m)})
		}
	}
	if len(rows) == 0 {
		return "_No metrics_"
	}
	return tf.formatTable([]string{"metric", "labels", "value"}, rows, "series")
}

func metricValue(m *dto.Metric) string {
	switch {
	case m.GetCounter() != nil:
		return fmt.Sprintf("%.0f", m.GetCounter().GetValue())
	case m.GetGauge() != nil:
		return fmt.Sprintf("%.2f", m.GetGauge().GetValue())
	case m.GetHistogram() != nil:
		return fmt.Sprintf("%d samples", m.GetHistogram().GetSampleCount())
	}
	return "-"
}

// formatTable formats headers and rows as a markdown table, followed by
// a row count when noun is set.
func (tf *TableFormatter) formatTable(headers []string, rows [][]string, noun string) string {
	tableString := &strings.Builder{}

	alignment := make([]tw.Align, len(headers))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}

	table := tablewriter.NewTable(tableString,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(headers)
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = tf.truncate(cell)
		}
		table.Append(cells)
	}
	table.Render()

	if noun != "" {
		tableString.WriteString(fmt.Sprintf("\n_%d %s_\n", len(rows), noun))
	}
	return tableString.String()
}

func (tf *TableFormatter) truncate(s string) string {
	if tf.MaxWidth <= 0 || len(s) <= tf.MaxWidth {
		return s
	}
	cut := tf.MaxWidth - len(tf.TruncateString)
	if cut < 0 {
		cut = 0
	}
	return s[:cut] + tf.TruncateString
}
