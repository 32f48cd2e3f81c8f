package cli

import (
	"fmt"
	"io"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/jedib0t/go-pretty/v6/table"

	"go.viam.com/sift3d/vision/sift3d"
)

const histogramWidth = 40

// summaryTable renders the match statistics.
func summaryTable(n1, n2 int, summary sift3d.MatchSummary) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Descriptors 1", "Descriptors 2", "Matches", "Mean SSD", "Median SSD", "Mean Distance", "Max Distance"})
	t.AppendRow(table.Row{
		n1, n2, summary.Count,
		fmt.Sprintf("%.4f", summary.MeanSSD),
		fmt.Sprintf("%.4f", summary.MedianSSD),
		fmt.Sprintf("%.2f", summary.MeanDistance),
		fmt.Sprintf("%.2f", summary.MaxDistance),
	})
	return t.Render()
}

// printSummary writes the match table followed by a histogram of match SSDs.
func printSummary(w io.Writer, n1, n2 int, summary sift3d.MatchSummary, bins int) error {
	if _, err := fmt.Fprintln(w, summaryTable(n1, n2, summary)); err != nil {
		return err
	}
	if bins <= 0 || summary.Count == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w, "match SSD histogram:"); err != nil {
		return err
	}
	return histogram.Fprint(w, histogram.Hist(bins, summary.SSDs), histogram.Linear(histogramWidth))
}
